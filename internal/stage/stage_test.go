package stage_test

import (
	"testing"

	"caseline/internal/stage"
)

var legacySamples = []string{
	"New", "New Lead", "Contacted", "Follow Up",
	"Site Visit", "Site Visit Scheduled", "Measurement Taken",
	"Design In Progress", "Design Shared", "BOQ In Progress",
	"Quotation Sent", "Negotiation", "Won", "Lost", "On Hold",
	"In Execution", "Closed",
	// unknown labels must still resolve
	"garbage", "", "quoted", "WON",
}

func TestResolveTotalAndCanonical(t *testing.T) {
	for _, label := range legacySamples {
		got := stage.Resolve(label, "")
		if !stage.Valid(got) {
			t.Fatalf("Resolve(%q) = %q, not a canonical stage", label, got)
		}
	}
}

func TestResolveIdempotent(t *testing.T) {
	for _, label := range legacySamples {
		once := stage.Resolve(label, "")
		twice := stage.Resolve(string(once), "")
		if once != twice {
			t.Fatalf("Resolve not idempotent for %q: %q then %q", label, once, twice)
		}
	}
}

func TestResolveCanonicalPassesThrough(t *testing.T) {
	for _, s := range stage.All {
		if got := stage.Resolve(string(s), ""); got != s {
			t.Fatalf("canonical %q changed to %q", s, got)
		}
	}
}

func TestResolveLegacyHintWins(t *testing.T) {
	if got := stage.Resolve("Quotation Sent", stage.Drawing); got != stage.Drawing {
		t.Fatalf("expected hint DRAWING to win, got %q", got)
	}
	// canonical raw still beats the hint
	if got := stage.Resolve("BOQ", stage.Drawing); got != stage.BOQ {
		t.Fatalf("expected canonical BOQ to win over hint, got %q", got)
	}
	// invalid hint is ignored
	if got := stage.Resolve("Won", stage.Stage("bogus")); got != stage.WaitingForPlanning {
		t.Fatalf("expected Won -> WAITING_FOR_PLANNING with bogus hint, got %q", got)
	}
}

func TestResolveKnownLabels(t *testing.T) {
	cases := map[string]stage.Stage{
		"Quotation Sent": stage.Quotation,
		"Negotiation":    stage.Quotation,
		"Won":            stage.WaitingForPlanning,
		"Lost":           stage.Lead,
		"In Execution":   stage.ExecutionActive,
		"Closed":         stage.Completed,
		"no such label":  stage.Lead,
	}
	for label, want := range cases {
		if got := stage.Resolve(label, ""); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", label, got, want)
		}
	}
}
