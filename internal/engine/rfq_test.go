package engine_test

import (
	"errors"
	"testing"

	"caseline/internal/domain"
	"caseline/internal/engine"
)

func TestOpenRfqFansOutInvites(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	rfq, err := env.Engine.OpenRfq(env.Ctx, engine.RfqInput{
		CaseID: c.ID,
		Items: []domain.RfqItem{
			{ItemID: "wardrobe-01", Description: "sliding wardrobe", Price: 85000, Quantity: 2},
			{ItemID: "tv-unit-01", Price: 42000, Quantity: 1},
		},
		VendorIDs:       []string{"v-alpha", "v-beta", "v-gamma"},
		BiddingDeadline: "2024-02-01T00:00:00Z",
	}, tester)
	if err != nil {
		t.Fatalf("open rfq: %v", err)
	}
	if rfq.Status != domain.RfqOpen {
		t.Fatalf("status = %q, want OPEN", rfq.Status)
	}
	if len(rfq.Items) != 2 || rfq.Items[0].Price != 85000 {
		t.Fatalf("item snapshot = %+v", rfq.Items)
	}
	if rfq.CreatedBy != tester.ID {
		t.Fatalf("created_by = %q", rfq.CreatedBy)
	}

	invites, err := env.Engine.Repo.ListRfqInvites(env.Ctx, rfq.ID)
	if err != nil {
		t.Fatalf("list invites: %v", err)
	}
	if len(invites) != 3 {
		t.Fatalf("got %d invites, want 3", len(invites))
	}
	seen := map[string]bool{}
	for _, inv := range invites {
		if inv.SentAt == "" {
			t.Fatalf("invite %s missing sent_at", inv.ID)
		}
		seen[inv.VendorID] = true
	}
	for _, v := range []string{"v-alpha", "v-beta", "v-gamma"} {
		if !seen[v] {
			t.Fatalf("vendor %s not invited", v)
		}
	}
}

func TestOpenRfqValidation(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)
	item := domain.RfqItem{ItemID: "x", Price: 1, Quantity: 1}

	cases := []engine.RfqInput{
		{Items: []domain.RfqItem{item}, VendorIDs: []string{"v"}, BiddingDeadline: "2024-02-01T00:00:00Z"},
		{CaseID: c.ID, VendorIDs: []string{"v"}, BiddingDeadline: "2024-02-01T00:00:00Z"},
		{CaseID: c.ID, Items: []domain.RfqItem{{ItemID: "x", Quantity: 0}}, VendorIDs: []string{"v"}, BiddingDeadline: "2024-02-01T00:00:00Z"},
		{CaseID: c.ID, Items: []domain.RfqItem{item}, BiddingDeadline: "2024-02-01T00:00:00Z"},
		{CaseID: c.ID, Items: []domain.RfqItem{item}, VendorIDs: []string{"v"}, BiddingDeadline: "next friday"},
	}
	for i, in := range cases {
		_, err := env.Engine.OpenRfq(env.Ctx, in, tester)
		var verr *engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: err = %v, want ValidationError", i, err)
		}
	}
}

func TestOpenRfqDeadlineNotEnforced(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreateCase(t, env)

	// A deadline in the past is stored as-is; closing is a convention.
	rfq, err := env.Engine.OpenRfq(env.Ctx, engine.RfqInput{
		CaseID:          c.ID,
		Items:           []domain.RfqItem{{ItemID: "x", Price: 1, Quantity: 1}},
		VendorIDs:       []string{"v"},
		BiddingDeadline: "2020-01-01T00:00:00Z",
	}, tester)
	if err != nil {
		t.Fatalf("open rfq: %v", err)
	}
	if rfq.Status != domain.RfqOpen {
		t.Fatalf("status = %q", rfq.Status)
	}
}
