package stage_test

import (
	"testing"

	"caseline/internal/stage"
)

func TestNextStageKeywordRules(t *testing.T) {
	cases := map[string]stage.Stage{
		"Site Inspection":          stage.SiteVisit,
		"schedule site visit":      stage.SiteVisit,
		"SITE_VISIT":               stage.SiteVisit,
		"Prepare drawing set":      stage.Drawing,
		"Interior design revision": stage.Drawing,
		"DRAWING_TASK":             stage.Drawing,
		"Make Quotation":           stage.BOQ,
		"BOQ":                      stage.BOQ,
		"QUOTATION_TASK":           stage.BOQ,
		"boq review":               stage.BOQ,
		"Begin execution phase":    stage.ExecutionActive,
		"Install modular kitchen":  stage.ExecutionActive,
		"EXECUTION_TASK":           stage.ExecutionActive,
		"Call the client":          stage.Lead,
		"REMINDER":                 stage.Lead,
		"":                         stage.Lead,
	}
	for in, want := range cases {
		if got := stage.NextStage(in); got != want {
			t.Fatalf("NextStage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNextStageFirstRuleWins(t *testing.T) {
	// "site visit for design" matches the site rule before the design rule.
	if got := stage.NextStage("site visit for design discussion"); got != stage.SiteVisit {
		t.Fatalf("expected SITE_VISIT, got %q", got)
	}
}

func TestNextStageTotal(t *testing.T) {
	inputs := []string{"x", "視察", "quotation boq execution", "Site", "visit"}
	for _, in := range inputs {
		if got := stage.NextStage(in); !stage.Valid(got) {
			t.Fatalf("NextStage(%q) returned invalid stage %q", in, got)
		}
	}
	// bare "site" without visit/inspection falls through to LEAD
	if got := stage.NextStage("Site"); got != stage.Lead {
		t.Fatalf("bare site should fall back to LEAD, got %q", got)
	}
}
