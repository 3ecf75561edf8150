package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"caseline/internal/db"
	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/stage"
)

type testEnv struct {
	Engine engine.Engine
	Store  *docstore.Store
	Ctx    context.Context
}

var tester = domain.Actor{ID: "u-tester", Name: "Tester", Role: "sales"}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := docstore.New(conn)
	store.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng := engine.New(store, conn, nil)
	return testEnv{Engine: eng, Store: store, Ctx: context.Background()}
}

func mustCreateCase(t *testing.T, env testEnv) domain.Case {
	t.Helper()
	c, err := env.Engine.CreateCase(env.Ctx, engine.CaseInput{ClientName: "Acme Interiors"}, tester)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func activity(t *testing.T, env testEnv, caseID string) []domain.ActivityRecord {
	t.Helper()
	recs, err := env.Engine.Ledger.List(env.Ctx, caseID, 0, 0, false)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	return recs
}

func TestCreateCaseStartsAtLead(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)
	if c.Status != string(stage.Lead) {
		t.Fatalf("status = %q, want %q", c.Status, stage.Lead)
	}
	if c.IsProject {
		t.Fatal("new case must not be a project")
	}
	recs := activity(t, env, c.ID)
	if len(recs) != 1 || recs[0].Action != "case_created" {
		t.Fatalf("expected single case_created record, got %+v", recs)
	}
}

func TestUpdateStatusRecordsOldAndNew(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	updated, err := env.Engine.UpdateStatus(env.Ctx, c.ID, string(stage.Drawing), tester)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != string(stage.Drawing) {
		t.Fatalf("status = %q, want %q", updated.Status, stage.Drawing)
	}
	recs := activity(t, env, c.ID)
	last := recs[len(recs)-1]
	if last.Type != domain.ActivityStatusChange {
		t.Fatalf("type = %q, want status_change", last.Type)
	}
	if last.Metadata["oldStatus"] != string(stage.Lead) || last.Metadata["newStatus"] != string(stage.Drawing) {
		t.Fatalf("metadata = %v", last.Metadata)
	}
	if last.UserID != tester.ID || last.UserName != tester.Name {
		t.Fatalf("actor snapshot = %s/%s", last.UserID, last.UserName)
	}
}

func TestUpdateStatusRejectsUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	_, err := env.Engine.UpdateStatus(env.Ctx, c.ID, "Quotation Sent", tester)
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	// Rejected update must not have written anything.
	got, err := env.Engine.GetCase(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(stage.Lead) {
		t.Fatalf("status changed to %q after rejected update", got.Status)
	}
}

func TestUpdateStatusMissingCase(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateStatus(env.Ctx, "missing", string(stage.Lead), tester)
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Sales assigns a site inspection on a fresh lead: the task lands, the ledger
// gets task_created plus the stage change, and the case moves to SITE_VISIT.
func TestAssignSiteInspectionAdvancesCase(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	task, err := env.Engine.AssignTask(env.Ctx, engine.TaskInput{
		CaseID:     c.ID,
		Title:      "Site Inspection at Baner office",
		AssignedTo: "u-engineer",
	}, tester)
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}
	if task.Type != domain.TaskSiteVisit {
		t.Fatalf("task type = %q, want %q", task.Type, domain.TaskSiteVisit)
	}
	if task.Status != domain.TaskStatusAssigned {
		t.Fatalf("task status = %q", task.Status)
	}

	got, err := env.Engine.GetCase(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(stage.SiteVisit) {
		t.Fatalf("case status = %q, want %q", got.Status, stage.SiteVisit)
	}

	recs := activity(t, env, c.ID)
	var sawTask, sawChange bool
	for _, r := range recs {
		if r.Type == domain.ActivityTaskCreated && r.Metadata["taskId"] == task.ID {
			sawTask = true
		}
		if r.Type == domain.ActivityStatusChange &&
			r.Metadata["oldStatus"] == string(stage.Lead) &&
			r.Metadata["newStatus"] == string(stage.SiteVisit) {
			sawChange = true
		}
	}
	if !sawTask || !sawChange {
		t.Fatalf("missing records: task=%v change=%v in %+v", sawTask, sawChange, recs)
	}
}

// A quotation task assigned on an executing case regresses the case to BOQ.
// The policy is intentionally unguarded.
func TestQuotationTaskRegressesExecutingCase(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)
	if _, err := env.Engine.UpdateStatus(env.Ctx, c.ID, string(stage.ExecutionActive), tester); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.AssignTask(env.Ctx, engine.TaskInput{
		CaseID:     c.ID,
		Title:      "Make Quotation for phase 2",
		AssignedTo: "u-sales2",
	}, tester); err != nil {
		t.Fatalf("assign task: %v", err)
	}

	got, err := env.Engine.GetCase(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(stage.BOQ) {
		t.Fatalf("case status = %q, want regression to %q", got.Status, stage.BOQ)
	}
}

// A task whose title derives the stage the case is already in records
// task_created only; no same-to-same status_change lands in the ledger.
func TestAssignTaskSameStageSkipsStatusChange(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	task, err := env.Engine.AssignTask(env.Ctx, engine.TaskInput{
		CaseID:     c.ID,
		Title:      "Call client about fabric samples",
		AssignedTo: "u-sales2",
	}, tester)
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}
	if task.Type != domain.TaskSalesContact {
		t.Fatalf("task type = %q, want %q", task.Type, domain.TaskSalesContact)
	}

	got, err := env.Engine.GetCase(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(stage.Lead) {
		t.Fatalf("case status = %q, want unchanged %q", got.Status, stage.Lead)
	}
	var sawTask bool
	for _, r := range activity(t, env, c.ID) {
		if r.Type == domain.ActivityStatusChange {
			t.Fatalf("unexpected status_change record: %+v", r)
		}
		if r.Type == domain.ActivityTaskCreated && r.Metadata["taskId"] == task.ID {
			sawTask = true
		}
	}
	if !sawTask {
		t.Fatal("task_created record missing")
	}
}

func TestAssignTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)
	cases := []engine.TaskInput{
		{Title: "x", AssignedTo: "u"},            // no case
		{CaseID: c.ID, AssignedTo: "u"},          // no title
		{CaseID: c.ID, Title: "x"},               // no assignee
		{CaseID: c.ID, Title: "x", AssignedTo: "u", Deadline: "tomorrow"}, // bad deadline
	}
	for i, in := range cases {
		_, err := env.Engine.AssignTask(env.Ctx, in, tester)
		var verr *engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: err = %v, want ValidationError", i, err)
		}
	}
}

// Two concurrent status updates race on last-write-wins. The final status is
// one of the two, and both changes land in the ledger.
func TestConcurrentStatusUpdatesBothRecorded(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	var wg sync.WaitGroup
	for _, s := range []stage.Stage{stage.Drawing, stage.BOQ} {
		wg.Add(1)
		go func(s stage.Stage) {
			defer wg.Done()
			if _, err := env.Engine.UpdateStatus(env.Ctx, c.ID, string(s), tester); err != nil {
				t.Errorf("update to %s: %v", s, err)
			}
		}(s)
	}
	wg.Wait()

	got, err := env.Engine.GetCase(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(stage.Drawing) && got.Status != string(stage.BOQ) {
		t.Fatalf("final status = %q, want one of the two writes", got.Status)
	}

	var toDrawing, toBOQ bool
	for _, r := range activity(t, env, c.ID) {
		if r.Type != domain.ActivityStatusChange {
			continue
		}
		switch r.Metadata["newStatus"] {
		case string(stage.Drawing):
			toDrawing = true
		case string(stage.BOQ):
			toBOQ = true
		}
	}
	if !toDrawing || !toBOQ {
		t.Fatalf("ledger missing a concurrent change: drawing=%v boq=%v", toDrawing, toBOQ)
	}
}

func TestLogNoteNeverTouchesStatus(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	id, err := env.Engine.LogNote(env.Ctx, c.ID, "client prefers teak veneer", nil, tester)
	if err != nil {
		t.Fatalf("log note: %v", err)
	}
	if id == "" {
		t.Fatal("expected record id")
	}
	got, _ := env.Engine.GetCase(env.Ctx, c.ID)
	if got.Status != string(stage.Lead) {
		t.Fatalf("note changed status to %q", got.Status)
	}
}

func TestLogNoteWithAttachmentsIsFileUpload(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	_, err := env.Engine.LogNote(env.Ctx, c.ID, "floor plan", []domain.Attachment{
		{URL: "/files/plan.pdf", Name: "plan.pdf", Size: 120_000, ContentType: "application/pdf"},
	}, tester)
	if err != nil {
		t.Fatalf("log note: %v", err)
	}
	recs := activity(t, env, c.ID)
	last := recs[len(recs)-1]
	if last.Type != domain.ActivityFileUpload {
		t.Fatalf("type = %q, want file_upload", last.Type)
	}
	atts, ok := last.Metadata["attachments"].([]any)
	if !ok || len(atts) != 1 {
		t.Fatalf("attachments metadata = %v", last.Metadata)
	}
}

func TestFlipToProjectIsOneWayAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	flipped, err := env.Engine.FlipToProject(env.Ctx, c.ID, tester)
	if err != nil {
		t.Fatalf("first flip: %v", err)
	}
	if !flipped.IsProject {
		t.Fatal("case not flipped")
	}
	before := len(activity(t, env, c.ID))

	again, err := env.Engine.FlipToProject(env.Ctx, c.ID, tester)
	if err != nil {
		t.Fatalf("second flip must be a no-error no-op, got %v", err)
	}
	if !again.IsProject {
		t.Fatal("flip must be one-way")
	}
	if got := len(activity(t, env, c.ID)); got != before {
		t.Fatalf("second flip wrote %d new records", got-before)
	}
}

// failingStore wraps the real store and fails writes to chosen collections,
// exercising the partial-failure surface without touching SQLite internals.
type failingStore struct {
	engine.DocStore
	failAdd map[string]bool
	failSet map[string]bool
}

func (f *failingStore) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if f.failAdd[collection] {
		return "", errors.New("injected add failure")
	}
	return f.DocStore.Add(ctx, collection, fields)
}

func (f *failingStore) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if f.failSet[collection] {
		return errors.New("injected set failure")
	}
	return f.DocStore.Set(ctx, collection, id, fields)
}

func TestAssignTaskPartialFailureCarriesTaskID(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	// The task document lands, then the stage write fails.
	broken := env.Engine
	broken.Store = &failingStore{DocStore: env.Store, failSet: map[string]bool{"cases": true}}
	broken.Repo.Store = env.Store
	broken.Ledger.Store = env.Store

	_, err := broken.AssignTask(env.Ctx, engine.TaskInput{
		CaseID:     c.ID,
		Title:      "Site Visit for kickoff",
		AssignedTo: "u-engineer",
	}, tester)
	var pf *engine.PartialPipelineFailure
	if !errors.As(err, &pf) {
		t.Fatalf("err = %v, want PartialPipelineFailure", err)
	}
	if pf.CreatedID == "" {
		t.Fatal("partial failure must carry the created task id")
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, pf.CreatedID); err != nil {
		t.Fatalf("created task not readable: %v", err)
	}
}

func TestStoreFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)

	broken := env.Engine
	broken.Store = &failingStore{DocStore: env.Store, failAdd: map[string]bool{"cases": true}}

	_, err := broken.CreateCase(env.Ctx, engine.CaseInput{ClientName: "Acme"}, tester)
	var se *engine.StoreUnavailableError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StoreUnavailableError", err)
	}
}
