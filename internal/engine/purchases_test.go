package engine_test

import (
	"errors"
	"testing"

	"clubline/internal/domain"
	"clubline/internal/engine"
)

func createPurchase(t *testing.T, env testEnv) domain.Purchase {
	t.Helper()
	p, err := env.Engine.CreatePurchase(env.Ctx, engine.PurchaseCreateOptions{
		ClubID:      "club-1",
		EquipmentID: "glider-1",
		Title:       "New main wheel",
		AmountCents: 25000,
		ActorID:     "worker",
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return p
}

func TestCreatePurchaseValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreatePurchase(env.Ctx, engine.PurchaseCreateOptions{ClubID: "club-1", ActorID: "worker"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
	if _, err := env.Engine.CreatePurchase(env.Ctx, engine.PurchaseCreateOptions{ClubID: "club-1", Title: "x", AmountCents: -1, ActorID: "worker"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}
	if _, err := env.Engine.CreatePurchase(env.Ctx, engine.PurchaseCreateOptions{ClubID: "other-club", EquipmentID: "glider-1", Title: "x", ActorID: "worker"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for club mismatch, got %v", err)
	}
}

func TestPurchaseWorkflow(t *testing.T) {
	env := newTestEnv(t)
	p := createPurchase(t, env)
	if p.Status != domain.PurchaseOpen {
		t.Fatalf("status = %s, want open", p.Status)
	}

	p, err := env.Engine.ApprovePurchase(env.Ctx, p.ID, "manager")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.Status != domain.PurchaseApproved || p.ApprovedBy == nil || *p.ApprovedBy != "manager" {
		t.Fatalf("after approve: %+v", p)
	}

	p, err = env.Engine.MarkPurchasePurchased(env.Ctx, p.ID, "worker")
	if err != nil {
		t.Fatalf("purchased: %v", err)
	}
	if p.Status != domain.PurchasePurchased || p.PurchasedBy == nil || *p.PurchasedBy != "worker" {
		t.Fatalf("after purchased: %+v", p)
	}

	p, err = env.Engine.MarkPurchaseDelivered(env.Ctx, p.ID, "worker")
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	p, err = env.Engine.MarkPurchaseReimbursed(env.Ctx, p.ID, "manager")
	if err != nil {
		t.Fatalf("reimbursed: %v", err)
	}
	if p.Status != domain.PurchaseReimbursed || p.ReimbursedBy == nil || *p.ReimbursedBy != "manager" {
		t.Fatalf("after reimbursed: %+v", p)
	}

	// reimbursed is final
	if _, err := env.Engine.CancelPurchase(env.Ctx, p.ID, "manager", ""); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error on cancel, got %v", err)
	}
	if _, err := env.Engine.RevertPurchase(env.Ctx, p.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error on revert, got %v", err)
	}

	events, err := env.Engine.Repo.ListPurchaseEvents(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"created", "approved", "purchased", "delivered", "reimbursed"}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, evt := range events {
		if evt.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, evt.Type, want[i])
		}
	}
}

func TestPurchaseSkippingStepsFails(t *testing.T) {
	env := newTestEnv(t)
	p := createPurchase(t, env)
	if _, err := env.Engine.MarkPurchasePurchased(env.Ctx, p.ID, "worker"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if _, err := env.Engine.MarkPurchaseReimbursed(env.Ctx, p.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestRevertPurchaseStepsBack(t *testing.T) {
	env := newTestEnv(t)
	p := createPurchase(t, env)

	// open has nothing to revert
	if _, err := env.Engine.RevertPurchase(env.Ctx, p.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	if _, err := env.Engine.ApprovePurchase(env.Ctx, p.ID, "manager"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.MarkPurchasePurchased(env.Ctx, p.ID, "worker"); err != nil {
		t.Fatalf("purchased: %v", err)
	}

	p, err := env.Engine.RevertPurchase(env.Ctx, p.ID, "manager")
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if p.Status != domain.PurchaseApproved {
		t.Fatalf("status = %s, want approved", p.Status)
	}
	if p.PurchasedBy != nil {
		t.Fatalf("purchased_by not cleared: %v", *p.PurchasedBy)
	}
	if p.ApprovedBy == nil || *p.ApprovedBy != "manager" {
		t.Fatalf("approved_by lost on revert: %v", p.ApprovedBy)
	}

	p, err = env.Engine.RevertPurchase(env.Ctx, p.ID, "manager")
	if err != nil {
		t.Fatalf("revert to open: %v", err)
	}
	if p.Status != domain.PurchaseOpen || p.ApprovedBy != nil {
		t.Fatalf("after second revert: %+v", p)
	}
}

func TestCancelPurchase(t *testing.T) {
	env := newTestEnv(t)
	p := createPurchase(t, env)
	if _, err := env.Engine.ApprovePurchase(env.Ctx, p.ID, "manager"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	p, err := env.Engine.CancelPurchase(env.Ctx, p.ID, "manager", "supplier out of stock")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if p.Status != domain.PurchaseCancelled {
		t.Fatalf("status = %s, want cancelled", p.Status)
	}
	if p.CancelledBy == nil || *p.CancelledBy != "manager" || p.CancelledAt == nil {
		t.Fatalf("cancel bookkeeping: %+v", p)
	}

	// cancelled is final
	if _, err := env.Engine.ApprovePurchase(env.Ctx, p.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	events, err := env.Engine.Repo.ListPurchaseEvents(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := events[len(events)-1]
	if last.Type != "cancelled" || last.Message == nil || *last.Message != "supplier out of stock" {
		t.Fatalf("last event = %+v", last)
	}
}
