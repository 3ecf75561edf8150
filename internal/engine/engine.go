package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/repo"
	"caseline/internal/stage"
)

// DocStore is the write surface the engine needs from the document store.
type DocStore interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	Add(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	Set(ctx context.Context, collection, id string, fields docstore.Fields) error
	List(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
}

type Engine struct {
	Store  DocStore
	Repo   repo.Repo
	Ledger ledger.Ledger
	Log    *zap.Logger
}

func New(store *docstore.Store, db *sql.DB, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		Store:  store,
		Repo:   repo.Repo{Store: store, DB: db},
		Ledger: ledger.Ledger{Store: store},
		Log:    log,
	}
}

// storeErr classifies a store failure: ErrNotFound passes through untouched,
// everything else becomes a retryable StoreUnavailableError.
func storeErr(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// CaseInput are the caller-supplied fields for a new case.
type CaseInput struct {
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	TotalBudget   *float64
	AssignedSales string
}

// CreateCase opens a case at LEAD, the first stage of the pipeline, and
// records the creation in its ledger.
func (e Engine) CreateCase(ctx context.Context, in CaseInput, actor domain.Actor) (domain.Case, error) {
	if in.ClientName == "" {
		return domain.Case{}, &ValidationError{Field: "client_name", Reason: "required"}
	}
	fields := docstore.Fields{
		"client_name":  in.ClientName,
		"client_email": in.ClientEmail,
		"client_phone": in.ClientPhone,
		"status":       string(stage.Lead),
		"is_project":   false,
		"created_at":   docstore.ServerTimestamp,
		"updated_at":   docstore.ServerTimestamp,
	}
	if in.AssignedSales != "" {
		fields["assigned_sales"] = in.AssignedSales
	}
	if in.TotalBudget != nil {
		fields["financial.totalBudget"] = *in.TotalBudget
	}
	id, err := e.Store.Add(ctx, repo.CollectionCases, fields)
	if err != nil {
		return domain.Case{}, storeErr("create case", err)
	}
	if _, err := e.Ledger.Append(ctx, id, ledger.Record{
		Type:   domain.ActivityOther,
		Action: "case_created",
		Actor:  actor,
	}); err != nil {
		return domain.Case{}, &PartialPipelineFailure{Step: "activity", CreatedID: id, Err: err}
	}
	e.Log.Info("case created", zap.String("case_id", id), zap.String("actor", actor.ID))
	return e.Repo.GetCase(ctx, id)
}

func (e Engine) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return e.Repo.GetCase(ctx, id)
}

// UpdateStatus moves a case to newStage and appends the status_change record
// with the old and new values. Writes are last-write-wins; concurrent updates
// both land in the ledger even though only one final status survives.
func (e Engine) UpdateStatus(ctx context.Context, caseID, newStage string, actor domain.Actor) (domain.Case, error) {
	if !stage.Valid(stage.Stage(newStage)) {
		return domain.Case{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown stage %q", newStage)}
	}
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.Case{}, storeErr("load case", err)
	}
	old := c.Status
	if err := e.Store.Set(ctx, repo.CollectionCases, caseID, docstore.Fields{
		"status":     newStage,
		"updated_at": docstore.ServerTimestamp,
	}); err != nil {
		return domain.Case{}, storeErr("set status", err)
	}
	if _, err := e.Ledger.Append(ctx, caseID, ledger.Record{
		Type:   domain.ActivityStatusChange,
		Action: fmt.Sprintf("status %s to %s", old, newStage),
		Actor:  actor,
		Metadata: map[string]any{
			"oldStatus": old,
			"newStatus": newStage,
		},
	}); err != nil {
		return domain.Case{}, &PartialPipelineFailure{Step: "activity", CreatedID: caseID, Err: err}
	}
	e.Log.Info("status updated",
		zap.String("case_id", caseID),
		zap.String("old", old),
		zap.String("new", newStage),
		zap.String("actor", actor.ID))
	c.Status = newStage
	return c, nil
}

// TaskInput are the caller-supplied fields for AssignTask. Type is derived
// from the title when empty.
type TaskInput struct {
	CaseID     string
	Title      string
	Type       string
	AssignedTo string
	Priority   *int
	Deadline   string
	Notes      string
}

// AssignTask creates the task, records task_created, then drives the case
// stage through the transition policy. When the title derives the stage the
// case is already in, the update and its status_change record are skipped.
// A failure before the task document lands aborts cleanly; a failure after
// it surfaces the created task id and rolls nothing back.
func (e Engine) AssignTask(ctx context.Context, in TaskInput, actor domain.Actor) (domain.Task, error) {
	if in.CaseID == "" {
		return domain.Task{}, &ValidationError{Field: "case_id", Reason: "required"}
	}
	if in.Title == "" {
		return domain.Task{}, &ValidationError{Field: "title", Reason: "required"}
	}
	if in.AssignedTo == "" {
		return domain.Task{}, &ValidationError{Field: "assigned_to", Reason: "required"}
	}
	if in.Deadline != "" {
		if _, err := time.Parse(time.RFC3339, in.Deadline); err != nil {
			return domain.Task{}, &ValidationError{Field: "deadline", Reason: "must be RFC3339"}
		}
	}
	c, err := e.Repo.GetCase(ctx, in.CaseID)
	if err != nil {
		return domain.Task{}, storeErr("load case", err)
	}
	taskType := in.Type
	if taskType == "" {
		taskType = deriveTaskType(in.Title)
	}
	fields := docstore.Fields{
		"case_id":     in.CaseID,
		"type":        taskType,
		"title":       in.Title,
		"assigned_to": in.AssignedTo,
		"assigned_by": actor.ID,
		"status":      domain.TaskStatusAssigned,
		"created_at":  docstore.ServerTimestamp,
		"updated_at":  docstore.ServerTimestamp,
	}
	if in.Priority != nil {
		fields["priority"] = *in.Priority
	}
	if in.Deadline != "" {
		fields["deadline"] = in.Deadline
	}
	if in.Notes != "" {
		fields["notes"] = in.Notes
	}
	taskID, err := e.Store.Add(ctx, repo.CollectionTasks, fields)
	if err != nil {
		return domain.Task{}, storeErr("create task", err)
	}
	if _, err := e.Ledger.Append(ctx, in.CaseID, ledger.Record{
		Type:   domain.ActivityTaskCreated,
		Action: fmt.Sprintf("task %q assigned to %s", in.Title, in.AssignedTo),
		Actor:  actor,
		Metadata: map[string]any{
			"taskId":     taskID,
			"taskType":   taskType,
			"assignedTo": in.AssignedTo,
		},
	}); err != nil {
		return domain.Task{}, &PartialPipelineFailure{Step: "activity", CreatedID: taskID, Err: err}
	}
	next := stage.NextStage(in.Title)
	if string(next) != c.Status {
		if _, err := e.UpdateStatus(ctx, in.CaseID, string(next), actor); err != nil {
			return domain.Task{}, &PartialPipelineFailure{Step: "transition", CreatedID: taskID, Err: err}
		}
	}
	return e.Repo.GetTask(ctx, taskID)
}

// deriveTaskType mirrors the transition policy's keyword rules so a task's
// stored type and the stage it drives the case to stay consistent.
func deriveTaskType(title string) string {
	switch stage.NextStage(title) {
	case stage.SiteVisit:
		return domain.TaskSiteVisit
	case stage.Drawing:
		return domain.TaskDrawing
	case stage.BOQ:
		return domain.TaskBOQ
	case stage.ExecutionActive:
		return domain.TaskExecution
	default:
		return domain.TaskSalesContact
	}
}

// LogNote appends a note, or a file_upload when attachments are present. It
// never touches the case status.
func (e Engine) LogNote(ctx context.Context, caseID, text string, attachments []domain.Attachment, actor domain.Actor) (string, error) {
	if caseID == "" {
		return "", &ValidationError{Field: "case_id", Reason: "required"}
	}
	if text == "" && len(attachments) == 0 {
		return "", &ValidationError{Field: "notes", Reason: "text or attachments required"}
	}
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return "", storeErr("load case", err)
	}
	rec := ledger.Record{
		Type:   domain.ActivityNote,
		Action: "note_added",
		Actor:  actor,
		Notes:  text,
	}
	if len(attachments) > 0 {
		rec.Type = domain.ActivityFileUpload
		rec.Action = "file_uploaded"
		list := make([]map[string]any, 0, len(attachments))
		for _, a := range attachments {
			list = append(list, map[string]any{
				"url":          a.URL,
				"name":         a.Name,
				"size":         a.Size,
				"content_type": a.ContentType,
			})
		}
		rec.Metadata = map[string]any{"attachments": list}
	}
	id, err := e.Ledger.Append(ctx, caseID, rec)
	if err != nil {
		return "", storeErr("append note", err)
	}
	return id, nil
}

// FlipToProject is the one-way sales-to-delivery handoff. Flipping an already
// flipped case is an observable no-error no-op: nothing is written, no
// activity is recorded.
func (e Engine) FlipToProject(ctx context.Context, caseID string, actor domain.Actor) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.Case{}, storeErr("load case", err)
	}
	if c.IsProject {
		return c, nil
	}
	if err := e.Store.Set(ctx, repo.CollectionCases, caseID, docstore.Fields{
		"is_project": true,
		"updated_at": docstore.ServerTimestamp,
	}); err != nil {
		return domain.Case{}, storeErr("flip to project", err)
	}
	if _, err := e.Ledger.Append(ctx, caseID, ledger.Record{
		Type:   domain.ActivityOther,
		Action: "converted_to_project",
		Actor:  actor,
	}); err != nil {
		return domain.Case{}, &PartialPipelineFailure{Step: "activity", CreatedID: caseID, Err: err}
	}
	e.Log.Info("case flipped to project", zap.String("case_id", caseID), zap.String("actor", actor.ID))
	c.IsProject = true
	return c, nil
}
