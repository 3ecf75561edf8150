package stage

// Stage is the canonical lifecycle position of a case. The set and the
// transition rules are fixed by business policy, not user-configurable.
type Stage string

const (
	New                Stage = "NEW"
	Lead               Stage = "LEAD"
	SiteVisit          Stage = "SITE_VISIT"
	Drawing            Stage = "DRAWING"
	BOQ                Stage = "BOQ"
	Quotation          Stage = "QUOTATION"
	WaitingForPlanning Stage = "WAITING_FOR_PLANNING"
	ExecutionActive    Stage = "EXECUTION_ACTIVE"
	Completed          Stage = "COMPLETED"
)

// All lists every canonical stage in flow order, NEW first as the non-flow
// placeholder.
var All = []Stage{New, Lead, SiteVisit, Drawing, BOQ, Quotation, WaitingForPlanning, ExecutionActive, Completed}

var valid = func() map[Stage]bool {
	m := make(map[Stage]bool, len(All))
	for _, s := range All {
		m[s] = true
	}
	return m
}()

// Valid reports whether s is a member of the canonical stage enum.
func Valid(s Stage) bool {
	return valid[s]
}

// legacyLabels maps the pre-unification pipeline vocabulary onto canonical
// stages. The table is total in effect: anything not listed resolves to LEAD.
var legacyLabels = map[string]Stage{
	"New":                  Lead,
	"New Lead":             Lead,
	"Contacted":            Lead,
	"Follow Up":            Lead,
	"Site Visit":           SiteVisit,
	"Site Visit Scheduled": SiteVisit,
	"Measurement Taken":    SiteVisit,
	"Design In Progress":   Drawing,
	"Design Shared":        Drawing,
	"BOQ In Progress":      BOQ,
	"Quotation Sent":       Quotation,
	"Negotiation":          Quotation,
	"Won":                  WaitingForPlanning,
	"Lost":                 Lead,
	"On Hold":              WaitingForPlanning,
	"In Execution":         ExecutionActive,
	"Closed":               Completed,
}

// Resolve normalizes a raw status value, which may arrive in either of the two
// legacy shapes, to one canonical stage. Resolution order: a value that is
// already canonical passes through unchanged; otherwise a non-empty legacy
// case-status hint wins; otherwise the legacy pipeline-label table applies,
// with unknown labels defaulting to LEAD. Resolve is pure and idempotent.
func Resolve(raw string, legacyHint Stage) Stage {
	if Valid(Stage(raw)) {
		return Stage(raw)
	}
	if legacyHint != "" && Valid(legacyHint) {
		return legacyHint
	}
	if s, ok := legacyLabels[raw]; ok {
		return s
	}
	return Lead
}
