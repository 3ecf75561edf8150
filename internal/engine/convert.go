package engine

import (
	"context"

	"go.uber.org/zap"

	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/repo"
	"caseline/internal/stage"
)

// EnquiryInput are the caller-supplied fields for a new enquiry.
type EnquiryInput struct {
	ClientName  string
	ClientEmail string
	ClientPhone string
	Budget      string
	Timeline    string
	Style       string
}

func (e Engine) CreateEnquiry(ctx context.Context, in EnquiryInput) (domain.Enquiry, error) {
	if in.ClientName == "" {
		return domain.Enquiry{}, &ValidationError{Field: "client_name", Reason: "required"}
	}
	fields := docstore.Fields{
		"client_name":  in.ClientName,
		"client_email": in.ClientEmail,
		"client_phone": in.ClientPhone,
		"status":       domain.EnquiryNew,
		"created_at":   docstore.ServerTimestamp,
		"updated_at":   docstore.ServerTimestamp,
	}
	if in.Budget != "" {
		fields["budget"] = in.Budget
	}
	if in.Timeline != "" {
		fields["timeline"] = in.Timeline
	}
	if in.Style != "" {
		fields["style"] = in.Style
	}
	id, err := e.Store.Add(ctx, repo.CollectionEnquiries, fields)
	if err != nil {
		return domain.Enquiry{}, storeErr("create enquiry", err)
	}
	return e.Repo.GetEnquiry(ctx, id)
}

// MarkViewed adds the actor to the enquiry's viewedBy set. The set only
// grows; a repeat view by the same actor writes nothing and succeeds.
func (e Engine) MarkViewed(ctx context.Context, enquiryID string, actor domain.Actor) error {
	enq, err := e.Repo.GetEnquiry(ctx, enquiryID)
	if err != nil {
		return storeErr("load enquiry", err)
	}
	for _, id := range enq.ViewedBy {
		if id == actor.ID {
			return nil
		}
	}
	viewed := append(enq.ViewedBy, actor.ID)
	if err := e.Store.Set(ctx, repo.CollectionEnquiries, enquiryID, docstore.Fields{
		"viewed_by":  viewed,
		"updated_at": docstore.ServerTimestamp,
	}); err != nil {
		return storeErr("mark viewed", err)
	}
	return nil
}

// LeadFields are caller overrides applied to the case a conversion creates.
// Zero values fall back to the enquiry and the acting user.
type LeadFields struct {
	AssignedSales string
	TotalBudget   *float64
}

// ConvertEnquiry runs the sales handoff pipeline: create the case in LEAD
// with the lead overrides merged in, mark the enquiry converted, then mirror
// a client-facing record. It is idempotent on the enquiry's convertedCaseId;
// a second call returns the same case and creates nothing.
func (e Engine) ConvertEnquiry(ctx context.Context, enquiryID string, lead LeadFields, actor domain.Actor) (domain.Case, error) {
	enq, err := e.Repo.GetEnquiry(ctx, enquiryID)
	if err != nil {
		return domain.Case{}, storeErr("load enquiry", err)
	}
	if enq.ConvertedCaseID != nil && *enq.ConvertedCaseID != "" {
		return e.Repo.GetCase(ctx, *enq.ConvertedCaseID)
	}

	assigned := lead.AssignedSales
	if assigned == "" {
		assigned = actor.ID
	}
	fields := docstore.Fields{
		"client_name":       enq.ClientName,
		"client_email":      enq.ClientEmail,
		"client_phone":      enq.ClientPhone,
		"status":            string(stage.Lead),
		"is_project":        false,
		"assigned_sales":    assigned,
		"source_enquiry_id": enquiryID,
		"created_at":        docstore.ServerTimestamp,
		"updated_at":        docstore.ServerTimestamp,
	}
	if lead.TotalBudget != nil {
		fields["financial.totalBudget"] = *lead.TotalBudget
	}
	caseID, err := e.Store.Add(ctx, repo.CollectionCases, fields)
	if err != nil {
		return domain.Case{}, storeErr("create case", err)
	}

	if err := e.Store.Set(ctx, repo.CollectionEnquiries, enquiryID, docstore.Fields{
		"status":            domain.EnquiryConverted,
		"converted_case_id": caseID,
		"updated_at":        docstore.ServerTimestamp,
	}); err != nil {
		return domain.Case{}, &PartialPipelineFailure{Step: "mark_enquiry", CreatedID: caseID, Err: err}
	}

	if _, err := e.Ledger.Append(ctx, caseID, ledger.Record{
		Type:   domain.ActivityOther,
		Action: "created_from_enquiry",
		Actor:  actor,
		Metadata: map[string]any{
			"enquiryId": enquiryID,
		},
	}); err != nil {
		return domain.Case{}, &PartialPipelineFailure{Step: "activity", CreatedID: caseID, Err: err}
	}

	// Client-facing mirror is best effort; the conversion stands without it.
	if _, err := e.Store.Add(ctx, repo.CollectionClientProjects, docstore.Fields{
		"case_id":     caseID,
		"client_name": enq.ClientName,
		"created_at":  docstore.ServerTimestamp,
	}); err != nil {
		e.Log.Warn("client project mirror failed",
			zap.String("case_id", caseID),
			zap.String("enquiry_id", enquiryID),
			zap.Error(err))
	}

	e.Log.Info("enquiry converted",
		zap.String("enquiry_id", enquiryID),
		zap.String("case_id", caseID),
		zap.String("actor", actor.ID))
	return e.Repo.GetCase(ctx, caseID)
}
