package formflow

import (
	"leadscout-backend/lib/restyutil"
	"leadscout-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("leadscout.lib.formflow")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables full request/response dumps for
// every session created afterwards. Used when debugging a portal
// whose markup changed.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
