package formflow

import "errors"

var (
	ErrNoUsableControls    = errors.New("no usable controls on form page")
	ErrOptionNotResolved   = errors.New("filter value matches no option")
	ErrNoPostbackTarget    = errors.New("no postback target matches the requested action")
	ErrValidationRejected  = errors.New("server rejected the submitted values")
	ErrMaintenanceDetected = errors.New("portal reports itself unavailable")
)
