// Package authz decides whether an acting user may perform an action on an
// entity, given resolved membership facts. Decisions are plain booleans;
// absence of permission is never an error.
package authz

import "clubline/internal/domain"

type Action string

const (
	ActionView          Action = "view"
	ActionManage        Action = "manage"
	ActionInspect       Action = "inspect"
	ActionReject        Action = "reject"
	ActionEdit          Action = "edit"
	ActionDelete        Action = "delete"
	ActionClose         Action = "close"
	ActionCancel        Action = "cancel"
	ActionComment       Action = "comment"
	ActionCreateSubTask Action = "create_subtask"
	ActionDo            Action = "do"

	ActionApprove        Action = "approve"
	ActionMarkPurchased  Action = "mark_purchased"
	ActionMarkDelivered  Action = "mark_delivered"
	ActionMarkReimbursed Action = "mark_reimbursed"
	ActionRevertStatus   Action = "revert_status"
)

// allowed applies the shared policy ahead of any type-specific rule:
// unauthenticated actors are denied, global admins are allowed everything,
// and non-members are denied everything in the subject's club.
// The bool result reports whether the shared policy already decided.
func allowed(actor *domain.User, facts domain.MembershipFacts) (decided, verdict bool) {
	if actor == nil {
		return true, false
	}
	if actor.Admin {
		return true, true
	}
	if !facts.IsMember {
		return true, false
	}
	return false, false
}

// CanActOnClub decides club-level actions.
func CanActOnClub(actor *domain.User, facts domain.MembershipFacts, action Action) bool {
	if decided, verdict := allowed(actor, facts); decided {
		return verdict
	}
	switch action {
	case ActionView:
		return true
	case ActionManage:
		return facts.IsManager
	case ActionInspect:
		return facts.IsManager || facts.IsInspector
	default:
		return false
	}
}

// TaskContext carries the resolved facts a task or subtask decision needs.
type TaskContext struct {
	Facts              domain.MembershipFacts
	EquipmentPrivate   bool
	ActorOwnsEquipment bool
	// RequiresInspection holds the item's own flag for a subtask, or whether
	// any subtask requires inspection for a task.
	RequiresInspection bool
	Terminal           bool // item is closed or cancelled
	AwaitingInspection bool // item is done and not yet inspected
	Completed          bool // a completion is recorded: item is done or closed
}

// CanActOnTask decides task and subtask actions; both share one policy.
func CanActOnTask(actor *domain.User, tc TaskContext, action Action) bool {
	if decided, verdict := allowed(actor, tc.Facts); decided {
		return verdict
	}
	switch action {
	case ActionView:
		if !tc.EquipmentPrivate {
			return true
		}
		if tc.Facts.IsManager {
			return true
		}
		if tc.Facts.IsInspector && tc.RequiresInspection {
			return true
		}
		return tc.ActorOwnsEquipment
	case ActionEdit, ActionDelete, ActionClose, ActionCancel:
		return tc.Facts.IsManager
	case ActionComment, ActionCreateSubTask:
		return true
	case ActionDo:
		return !tc.Terminal
	case ActionInspect:
		return tc.Facts.IsInspector && tc.RequiresInspection && tc.AwaitingInspection
	case ActionReject:
		// rejection also undoes an approval, so closed completions qualify
		return tc.Facts.IsInspector && tc.RequiresInspection && tc.Completed
	default:
		return false
	}
}

// CanActOnPurchase decides purchase-request actions.
func CanActOnPurchase(actor *domain.User, facts domain.MembershipFacts, p domain.Purchase, action Action) bool {
	if decided, verdict := allowed(actor, facts); decided {
		return verdict
	}
	switch action {
	case ActionView:
		return true
	case ActionEdit:
		if p.Status == domain.PurchaseCancelled || p.Status == domain.PurchaseReimbursed {
			return false
		}
		return facts.IsManager || isParticipant(actor.ID, p)
	case ActionCancel:
		if p.Status == domain.PurchaseReimbursed || p.Status == domain.PurchaseCancelled {
			return false
		}
		return facts.IsManager || p.CreatedBy == actor.ID
	case ActionApprove:
		return facts.IsManager && p.Status == domain.PurchaseOpen
	case ActionMarkReimbursed:
		return facts.IsManager && p.Status == domain.PurchaseDelivered
	case ActionMarkPurchased:
		return p.Status == domain.PurchaseApproved
	case ActionMarkDelivered:
		return p.Status == domain.PurchasePurchased
	case ActionRevertStatus:
		return canRevertPurchase(actor.ID, facts.IsManager, p)
	default:
		return false
	}
}

func isParticipant(actorID string, p domain.Purchase) bool {
	if p.CreatedBy == actorID {
		return true
	}
	if p.PurchasedBy != nil && *p.PurchasedBy == actorID {
		return true
	}
	if p.DeliveredBy != nil && *p.DeliveredBy == actorID {
		return true
	}
	return false
}

// canRevertPurchase is the status-specific revert predicate: undoing the most
// recent transition depends on where the purchase currently stands.
func canRevertPurchase(actorID string, isManager bool, p domain.Purchase) bool {
	switch p.Status {
	case domain.PurchaseApproved, domain.PurchasePurchased:
		return isManager
	case domain.PurchaseDelivered:
		return isManager || (p.DeliveredBy != nil && *p.DeliveredBy == actorID)
	default:
		// open has nothing to revert; reimbursed and cancelled are final.
		return false
	}
}
