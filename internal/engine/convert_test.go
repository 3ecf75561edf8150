package engine_test

import (
	"errors"
	"testing"

	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
	"caseline/internal/stage"
)

func mustCreateEnquiry(t *testing.T, env testEnv) domain.Enquiry {
	t.Helper()
	enq, err := env.Engine.CreateEnquiry(env.Ctx, engine.EnquiryInput{
		ClientName:  "Sharma Residence",
		ClientEmail: "sharma@example.com",
		Budget:      "15-20L",
		Timeline:    "3 months",
		Style:       "modern",
	})
	if err != nil {
		t.Fatalf("create enquiry: %v", err)
	}
	return enq
}

func TestCreateEnquiryStartsNew(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)
	if enq.Status != domain.EnquiryNew {
		t.Fatalf("status = %q, want NEW", enq.Status)
	}
	if enq.ConvertedCaseID != nil {
		t.Fatal("fresh enquiry must not carry a converted case id")
	}
}

func TestConvertEnquiryCreatesLead(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	c, err := env.Engine.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{}, tester)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if c.Status != string(stage.Lead) {
		t.Fatalf("case status = %q, want LEAD", c.Status)
	}
	if c.AssignedSales == nil || *c.AssignedSales != tester.ID {
		t.Fatalf("assigned sales = %v, want acting user %s", c.AssignedSales, tester.ID)
	}
	if c.IsProject {
		t.Fatal("converted case must start as sales-side")
	}
	if c.ClientName != enq.ClientName || c.ClientEmail != enq.ClientEmail {
		t.Fatalf("contact snapshot not copied: %+v", c)
	}
	if c.SourceEnquiryID == nil || *c.SourceEnquiryID != enq.ID {
		t.Fatalf("source enquiry = %v", c.SourceEnquiryID)
	}

	after, err := env.Engine.Repo.GetEnquiry(env.Ctx, enq.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != domain.EnquiryConverted {
		t.Fatalf("enquiry status = %q, want CONVERTED_TO_LEAD", after.Status)
	}
	if after.ConvertedCaseID == nil || *after.ConvertedCaseID != c.ID {
		t.Fatalf("converted case id = %v, want %s", after.ConvertedCaseID, c.ID)
	}
}

// Lead overrides land on the created case: an explicit sales assignment wins
// over the acting user, and the budget goes into the financial block.
func TestConvertEnquiryAppliesLeadOverrides(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	budget := 1_800_000.0
	c, err := env.Engine.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{
		AssignedSales: "u-priya",
		TotalBudget:   &budget,
	}, tester)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if c.AssignedSales == nil || *c.AssignedSales != "u-priya" {
		t.Fatalf("assigned sales = %v, want u-priya", c.AssignedSales)
	}
	if c.TotalBudget == nil || *c.TotalBudget != budget {
		t.Fatalf("total budget = %v, want %v", c.TotalBudget, budget)
	}
}

func TestConvertEnquiryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	first, err := env.Engine.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{}, tester)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{}, tester)
	if err != nil {
		t.Fatalf("second convert must succeed, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second convert returned %s, want %s", second.ID, first.ID)
	}
	cases, err := env.Engine.Repo.ListCases(env.Ctx, repo.CaseFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 1 {
		t.Fatalf("second convert created a case: %d total", len(cases))
	}
}

func TestConvertEnquiryPartialFailureCarriesCaseID(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	broken := env.Engine
	broken.Store = &failingStore{DocStore: env.Store, failSet: map[string]bool{"enquiries": true}}

	_, err := broken.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{}, tester)
	var pf *engine.PartialPipelineFailure
	if !errors.As(err, &pf) {
		t.Fatalf("err = %v, want PartialPipelineFailure", err)
	}
	if pf.Step != "mark_enquiry" || pf.CreatedID == "" {
		t.Fatalf("partial failure = %+v", pf)
	}
	// The orphan case exists and is readable for reconciliation.
	if _, err := env.Engine.GetCase(env.Ctx, pf.CreatedID); err != nil {
		t.Fatalf("created case not readable: %v", err)
	}
}

func TestConvertEnquiryClientMirrorIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	broken := env.Engine
	broken.Store = &failingStore{DocStore: env.Store, failAdd: map[string]bool{"client_projects": true}}
	broken.Ledger.Store = env.Store

	c, err := broken.ConvertEnquiry(env.Ctx, enq.ID, engine.LeadFields{}, tester)
	if err != nil {
		t.Fatalf("mirror failure must not fail the conversion: %v", err)
	}
	if c.Status != string(stage.Lead) {
		t.Fatalf("case status = %q", c.Status)
	}
}

func TestMarkViewedGrowsSetOnce(t *testing.T) {
	env := newTestEnv(t)
	enq := mustCreateEnquiry(t, env)

	if err := env.Engine.MarkViewed(env.Ctx, enq.ID, tester); err != nil {
		t.Fatalf("first view: %v", err)
	}
	if err := env.Engine.MarkViewed(env.Ctx, enq.ID, tester); err != nil {
		t.Fatalf("repeat view must be a no-op, got %v", err)
	}
	got, err := env.Engine.Repo.GetEnquiry(env.Ctx, enq.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ViewedBy) != 1 || got.ViewedBy[0] != tester.ID {
		t.Fatalf("viewed_by = %v, want exactly one entry", got.ViewedBy)
	}

	other := domain.Actor{ID: "u-designer", Name: "Dee"}
	if err := env.Engine.MarkViewed(env.Ctx, enq.ID, other); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Engine.Repo.GetEnquiry(env.Ctx, enq.ID)
	if len(got.ViewedBy) != 2 {
		t.Fatalf("viewed_by = %v, want two entries", got.ViewedBy)
	}
}

func TestMarkViewedMissingEnquiry(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.MarkViewed(env.Ctx, "missing", tester); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
