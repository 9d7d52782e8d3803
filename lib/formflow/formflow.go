// Package formflow drives multi-step html forms on portals that
// expose no API: stateful postback pages with hidden session tokens,
// server-side view state and option lists rendered at runtime. One
// acquisition is a bounded sequence of form steps (discover controls,
// apply filters, trigger an export) ending in a payload whose format
// is only known after byte sniffing.
//
// every scraping method generally has this structure:
// 1. make assertions on input validity.
// 2. transform input into HTTP request object (method, headers, body)
// 3. make request.
// 4. make assertions on response validity.
// 5. transform HTTP response into output structure.
// formflow factors the repeated parts of that structure out of the
// per-portal scrapers.
package formflow

import (
	"leadscout-backend/lib/tabular"
)

// Well-known role names mapped from Criteria by the engine. Portal
// configs bind these to keyword sets.
const (
	RoleCounty         = "county"
	RoleClassification = "classification"
	RoleDateStart      = "date-start"
	RoleDateEnd        = "date-end"
)

type DateRange struct {
	Start string
	End   string
}

// Criteria enumerates the filter values recognized by Acquire.
type Criteria struct {
	County          string
	Classifications []string
	DateRange       *DateRange
}

type TerminalState int

const (
	// the run died before reaching a terminal state, see
	// Diagnostics.Failure
	TerminalIncomplete TerminalState = iota
	TerminalSuccess
	TerminalMaintenanceDetected
	TerminalNoUsableControls
	TerminalValidationRejected
	TerminalOptionNotResolved
	TerminalUnclassifiablePayload
)

func (s TerminalState) String() string {
	switch s {
	case TerminalSuccess:
		return "success"
	case TerminalMaintenanceDetected:
		return "maintenance-detected"
	case TerminalNoUsableControls:
		return "no-usable-controls"
	case TerminalValidationRejected:
		return "validation-rejected"
	case TerminalOptionNotResolved:
		return "option-not-resolved"
	case TerminalUnclassifiablePayload:
		return "unclassifiable-payload"
	}
	return "incomplete"
}

type Diagnostics struct {
	AttemptedStrategies []string
	TerminalState       TerminalState
	// state the machine had reached when the run ended
	LastState State
	// snippet of the offending response body, when one exists
	ResponseSnippet string
	Failure         string
}

// ExtractionResult is what Acquire hands back. Callers must branch on
// Diagnostics.TerminalState, not on record emptiness: an empty record
// set with TerminalSuccess means the portal genuinely had no matching
// rows.
type ExtractionResult struct {
	Records     tabular.RecordSet
	Diagnostics Diagnostics
}
