package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/repo"
)

// RfqInput are the caller-supplied fields for OpenRfq.
type RfqInput struct {
	CaseID          string
	Items           []domain.RfqItem
	VendorIDs       []string
	BiddingDeadline string
}

// OpenRfq creates an OPEN request-for-quotation with an item price snapshot
// and one invite document per vendor. The deadline is stored, not enforced.
// An invite failure after the RFQ document lands surfaces the created rfq id.
func (e Engine) OpenRfq(ctx context.Context, in RfqInput, actor domain.Actor) (domain.Rfq, error) {
	if in.CaseID == "" {
		return domain.Rfq{}, &ValidationError{Field: "case_id", Reason: "required"}
	}
	if len(in.Items) == 0 {
		return domain.Rfq{}, &ValidationError{Field: "items", Reason: "at least one item required"}
	}
	for i, item := range in.Items {
		if item.ItemID == "" {
			return domain.Rfq{}, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %d missing item_id", i)}
		}
		if item.Quantity <= 0 {
			return domain.Rfq{}, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %s quantity must be positive", item.ItemID)}
		}
	}
	if len(in.VendorIDs) == 0 {
		return domain.Rfq{}, &ValidationError{Field: "vendor_ids", Reason: "at least one vendor required"}
	}
	if _, err := time.Parse(time.RFC3339, in.BiddingDeadline); err != nil {
		return domain.Rfq{}, &ValidationError{Field: "bidding_deadline", Reason: "must be RFC3339"}
	}
	if _, err := e.Repo.GetCase(ctx, in.CaseID); err != nil {
		return domain.Rfq{}, storeErr("load case", err)
	}

	items := make([]map[string]any, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, map[string]any{
			"item_id":     item.ItemID,
			"description": item.Description,
			"price":       item.Price,
			"quantity":    item.Quantity,
		})
	}
	rfqID, err := e.Store.Add(ctx, repo.CollectionRfqs, docstore.Fields{
		"case_id":          in.CaseID,
		"items":            items,
		"vendor_ids":       in.VendorIDs,
		"status":           domain.RfqOpen,
		"bidding_deadline": in.BiddingDeadline,
		"created_by":       actor.ID,
		"created_at":       docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.Rfq{}, storeErr("create rfq", err)
	}

	for _, vendorID := range in.VendorIDs {
		if _, err := e.Store.Add(ctx, repo.RfqInviteCollection(rfqID), docstore.Fields{
			"vendor_id": vendorID,
			"sent_at":   docstore.ServerTimestamp,
		}); err != nil {
			return domain.Rfq{}, &PartialPipelineFailure{Step: "invite", CreatedID: rfqID, Err: err}
		}
	}

	if _, err := e.Ledger.Append(ctx, in.CaseID, ledger.Record{
		Type:   domain.ActivityOther,
		Action: "rfq_opened",
		Actor:  actor,
		Metadata: map[string]any{
			"rfqId":   rfqID,
			"vendors": len(in.VendorIDs),
		},
	}); err != nil {
		return domain.Rfq{}, &PartialPipelineFailure{Step: "activity", CreatedID: rfqID, Err: err}
	}

	e.Log.Info("rfq opened",
		zap.String("case_id", in.CaseID),
		zap.String("rfq_id", rfqID),
		zap.Int("vendors", len(in.VendorIDs)))
	return e.Repo.GetRfq(ctx, rfqID)
}
