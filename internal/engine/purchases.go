package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clubline/internal/domain"
)

func ensurePurchaseTransition(oldStatus, newStatus domain.PurchaseStatus) error {
	switch oldStatus {
	case domain.PurchaseOpen:
		if newStatus == domain.PurchaseApproved || newStatus == domain.PurchaseCancelled {
			return nil
		}
	case domain.PurchaseApproved:
		if newStatus == domain.PurchasePurchased || newStatus == domain.PurchaseOpen || newStatus == domain.PurchaseCancelled {
			return nil
		}
	case domain.PurchasePurchased:
		if newStatus == domain.PurchaseDelivered || newStatus == domain.PurchaseApproved || newStatus == domain.PurchaseCancelled {
			return nil
		}
	case domain.PurchaseDelivered:
		if newStatus == domain.PurchaseReimbursed || newStatus == domain.PurchasePurchased || newStatus == domain.PurchaseCancelled {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid purchase status transition %s -> %s", ErrPrecondition, oldStatus, newStatus)
}

// PurchaseCreateOptions are parameters for opening a purchase request.
type PurchaseCreateOptions struct {
	ID          string
	ClubID      string
	EquipmentID string
	Title       string
	Description string
	AmountCents int
	ActorID     string
}

func (e Engine) CreatePurchase(ctx context.Context, opts PurchaseCreateOptions) (domain.Purchase, error) {
	if opts.Title == "" {
		return domain.Purchase{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if opts.AmountCents < 0 {
		return domain.Purchase{}, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if opts.EquipmentID != "" {
		eq, err := e.Repo.GetEquipment(ctx, opts.EquipmentID)
		if err != nil {
			return domain.Purchase{}, err
		}
		if eq.ClubID != opts.ClubID {
			return domain.Purchase{}, fmt.Errorf("%w: equipment %s not in club %s", ErrValidation, eq.ID, opts.ClubID)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	p := domain.Purchase{
		ID:          id,
		ClubID:      opts.ClubID,
		EquipmentID: optionalString(opts.EquipmentID),
		Title:       opts.Title,
		Description: opts.Description,
		AmountCents: opts.AmountCents,
		Status:      domain.PurchaseOpen,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPurchase(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Activity.AppendPurchase(ctx, tx, p.ID, "created", opts.ActorID, ""); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// transitionPurchase moves a purchase one step along the workflow and records
// the step; mutate sets the per-step actor field.
func (e Engine) transitionPurchase(ctx context.Context, purchaseID, actorID, message string, target domain.PurchaseStatus, event string, mutate func(*domain.Purchase)) (domain.Purchase, error) {
	p, err := e.Repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return p, err
	}
	if err := ensurePurchaseTransition(p.Status, target); err != nil {
		return p, err
	}
	p.Status = target
	p.UpdatedAt = e.nowString()
	if mutate != nil {
		mutate(&p)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdatePurchase(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Activity.AppendPurchase(ctx, tx, p.ID, event, actorID, message); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) ApprovePurchase(ctx context.Context, purchaseID, actorID string) (domain.Purchase, error) {
	return e.transitionPurchase(ctx, purchaseID, actorID, "", domain.PurchaseApproved, "approved", func(p *domain.Purchase) {
		p.ApprovedBy = &actorID
	})
}

func (e Engine) MarkPurchasePurchased(ctx context.Context, purchaseID, actorID string) (domain.Purchase, error) {
	return e.transitionPurchase(ctx, purchaseID, actorID, "", domain.PurchasePurchased, "purchased", func(p *domain.Purchase) {
		p.PurchasedBy = &actorID
	})
}

func (e Engine) MarkPurchaseDelivered(ctx context.Context, purchaseID, actorID string) (domain.Purchase, error) {
	return e.transitionPurchase(ctx, purchaseID, actorID, "", domain.PurchaseDelivered, "delivered", func(p *domain.Purchase) {
		p.DeliveredBy = &actorID
	})
}

func (e Engine) MarkPurchaseReimbursed(ctx context.Context, purchaseID, actorID string) (domain.Purchase, error) {
	return e.transitionPurchase(ctx, purchaseID, actorID, "", domain.PurchaseReimbursed, "reimbursed", func(p *domain.Purchase) {
		p.ReimbursedBy = &actorID
	})
}

func (e Engine) CancelPurchase(ctx context.Context, purchaseID, actorID, reason string) (domain.Purchase, error) {
	now := e.nowString()
	return e.transitionPurchase(ctx, purchaseID, actorID, reason, domain.PurchaseCancelled, "cancelled", func(p *domain.Purchase) {
		p.CancelledBy = &actorID
		p.CancelledAt = &now
	})
}

// RevertPurchase undoes the most recent workflow step, clearing the actor
// field the step had set. Reimbursed and cancelled purchases are final.
func (e Engine) RevertPurchase(ctx context.Context, purchaseID, actorID string) (domain.Purchase, error) {
	p, err := e.Repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return p, err
	}
	var target domain.PurchaseStatus
	var clear func(*domain.Purchase)
	switch p.Status {
	case domain.PurchaseApproved:
		target = domain.PurchaseOpen
		clear = func(p *domain.Purchase) { p.ApprovedBy = nil }
	case domain.PurchasePurchased:
		target = domain.PurchaseApproved
		clear = func(p *domain.Purchase) { p.PurchasedBy = nil }
	case domain.PurchaseDelivered:
		target = domain.PurchasePurchased
		clear = func(p *domain.Purchase) { p.DeliveredBy = nil }
	default:
		return p, fmt.Errorf("%w: purchase %s is %s, nothing to revert", ErrPrecondition, p.ID, p.Status)
	}
	return e.transitionPurchase(ctx, purchaseID, actorID, "", target, "reverted", clear)
}
