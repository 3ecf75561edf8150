package repo

import (
	"context"
	"database/sql"

	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/stage"
)

// Document collections. Activity records live under the per-case child
// collection owned by the ledger package.
const (
	CollectionCases          = "cases"
	CollectionTasks          = "tasks"
	CollectionEnquiries      = "enquiries"
	CollectionRfqs           = "rfqs"
	CollectionClientProjects = "client_projects"
)

// Store is the read slice of the document store the repo needs.
type Store interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	List(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
}

// Repo reads typed domain entities out of the document store. DB is only used
// for the API key table, which sits outside the document collections.
type Repo struct {
	Store Store
	DB    *sql.DB
}

// ErrNotFound aliases the store's sentinel so callers need only one check.
var ErrNotFound = docstore.ErrNotFound

// DecodeCase normalizes a raw case document into the canonical shape. This is
// the single point where the two legacy status representations are resolved;
// raw pipeline labels never leak past it. A deprecated `case_status` field, if
// present, acts as the resolver hint, and `financial.totalBudget` wins over
// the legacy flat `budget` field.
func DecodeCase(doc docstore.Document) (domain.Case, error) {
	var c domain.Case
	if err := doc.Decode(&c); err != nil {
		return c, err
	}
	c.ID = doc.ID
	raw, _ := doc.Data["status"].(string)
	var hint stage.Stage
	if h, ok := doc.Data["case_status"].(string); ok {
		hint = stage.Stage(h)
	}
	c.Status = string(stage.Resolve(raw, hint))
	if c.TotalBudget == nil {
		if fin, ok := doc.Data["financial"].(map[string]any); ok {
			if v, ok := fin["totalBudget"].(float64); ok {
				c.TotalBudget = &v
			}
		}
	}
	if c.TotalBudget == nil {
		if v, ok := doc.Data["budget"].(float64); ok {
			c.TotalBudget = &v
		}
	}
	if c.CreatedAt == "" {
		c.CreatedAt = doc.CreatedAt
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = doc.UpdatedAt
	}
	return c, nil
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	doc, err := r.Store.Get(ctx, CollectionCases, id)
	if err != nil {
		return domain.Case{}, err
	}
	return DecodeCase(doc)
}

type CaseFilters struct {
	Status    string
	IsProject *bool
	Sales     string
	Limit     int
}

// ListCases filters on the RESOLVED status, so cases still carrying legacy
// labels are matched by their canonical stage. Filtering happens after decode
// for that reason.
func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	docs, err := r.Store.List(ctx, docstore.Query{Collection: CollectionCases, Descending: true})
	if err != nil {
		return nil, err
	}
	var res []domain.Case
	for _, doc := range docs {
		c, err := DecodeCase(doc)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.IsProject != nil && c.IsProject != *f.IsProject {
			continue
		}
		if f.Sales != "" && (c.AssignedSales == nil || *c.AssignedSales != f.Sales) {
			continue
		}
		res = append(res, c)
		if f.Limit > 0 && len(res) >= f.Limit {
			break
		}
	}
	return res, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	doc, err := r.Store.Get(ctx, CollectionTasks, id)
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(doc)
}

type TaskFilters struct {
	CaseID     string
	Status     string
	AssignedTo string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	q := docstore.Query{Collection: CollectionTasks, Descending: true, Limit: f.Limit}
	if f.CaseID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Path: "case_id", Value: f.CaseID})
	}
	if f.Status != "" {
		q.Filters = append(q.Filters, docstore.Filter{Path: "status", Value: f.Status})
	}
	if f.AssignedTo != "" {
		q.Filters = append(q.Filters, docstore.Filter{Path: "assigned_to", Value: f.AssignedTo})
	}
	docs, err := r.Store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for _, doc := range docs {
		t, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) GetEnquiry(ctx context.Context, id string) (domain.Enquiry, error) {
	doc, err := r.Store.Get(ctx, CollectionEnquiries, id)
	if err != nil {
		return domain.Enquiry{}, err
	}
	return decodeEnquiry(doc)
}

func (r Repo) ListEnquiries(ctx context.Context, status string, limit int) ([]domain.Enquiry, error) {
	q := docstore.Query{Collection: CollectionEnquiries, Descending: true, Limit: limit}
	if status != "" {
		q.Filters = append(q.Filters, docstore.Filter{Path: "status", Value: status})
	}
	docs, err := r.Store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	var res []domain.Enquiry
	for _, doc := range docs {
		e, err := decodeEnquiry(doc)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func (r Repo) GetRfq(ctx context.Context, id string) (domain.Rfq, error) {
	doc, err := r.Store.Get(ctx, CollectionRfqs, id)
	if err != nil {
		return domain.Rfq{}, err
	}
	return decodeRfq(doc)
}

func (r Repo) ListRfqs(ctx context.Context, caseID string, limit int) ([]domain.Rfq, error) {
	q := docstore.Query{Collection: CollectionRfqs, Descending: true, Limit: limit}
	if caseID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Path: "case_id", Value: caseID})
	}
	docs, err := r.Store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	var res []domain.Rfq
	for _, doc := range docs {
		rfq, err := decodeRfq(doc)
		if err != nil {
			return nil, err
		}
		res = append(res, rfq)
	}
	return res, nil
}

// RfqInviteCollection is the child collection of per-vendor invites.
func RfqInviteCollection(rfqID string) string {
	return CollectionRfqs + "/" + rfqID + "/invites"
}

func (r Repo) ListRfqInvites(ctx context.Context, rfqID string) ([]domain.RfqInvite, error) {
	docs, err := r.Store.List(ctx, docstore.Query{Collection: RfqInviteCollection(rfqID)})
	if err != nil {
		return nil, err
	}
	var res []domain.RfqInvite
	for _, doc := range docs {
		var inv domain.RfqInvite
		if err := doc.Decode(&inv); err != nil {
			return nil, err
		}
		inv.ID = doc.ID
		inv.RfqID = rfqID
		res = append(res, inv)
	}
	return res, nil
}

// CountCasesByStage summarizes the pipeline, again on resolved stages.
func (r Repo) CountCasesByStage(ctx context.Context) (map[string]int, error) {
	docs, err := r.Store.List(ctx, docstore.Query{Collection: CollectionCases})
	if err != nil {
		return nil, err
	}
	res := map[string]int{}
	for _, doc := range docs {
		c, err := DecodeCase(doc)
		if err != nil {
			return nil, err
		}
		res[c.Status]++
	}
	return res, nil
}

func decodeTask(doc docstore.Document) (domain.Task, error) {
	var t domain.Task
	if err := doc.Decode(&t); err != nil {
		return t, err
	}
	t.ID = doc.ID
	if t.CreatedAt == "" {
		t.CreatedAt = doc.CreatedAt
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = doc.UpdatedAt
	}
	return t, nil
}

func decodeEnquiry(doc docstore.Document) (domain.Enquiry, error) {
	var e domain.Enquiry
	if err := doc.Decode(&e); err != nil {
		return e, err
	}
	e.ID = doc.ID
	if e.Status == "" {
		e.Status = domain.EnquiryNew
	}
	if e.CreatedAt == "" {
		e.CreatedAt = doc.CreatedAt
	}
	if e.UpdatedAt == "" {
		e.UpdatedAt = doc.UpdatedAt
	}
	return e, nil
}

func decodeRfq(doc docstore.Document) (domain.Rfq, error) {
	var q domain.Rfq
	if err := doc.Decode(&q); err != nil {
		return q, err
	}
	q.ID = doc.ID
	if q.CreatedAt == "" {
		q.CreatedAt = doc.CreatedAt
	}
	return q, nil
}
