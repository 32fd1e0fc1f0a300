package authz

import (
	"testing"

	"clubline/internal/domain"
)

var (
	member    = domain.MembershipFacts{IsMember: true}
	manager   = domain.MembershipFacts{IsMember: true, IsManager: true}
	inspector = domain.MembershipFacts{IsMember: true, IsInspector: true}
	outsider  = domain.MembershipFacts{}
)

func user(id string) *domain.User  { return &domain.User{ID: id, Active: true} }
func admin(id string) *domain.User { return &domain.User{ID: id, Admin: true, Active: true} }

func TestCanActOnClub(t *testing.T) {
	cases := []struct {
		name   string
		actor  *domain.User
		facts  domain.MembershipFacts
		action Action
		want   bool
	}{
		{"nil actor denied", nil, manager, ActionView, false},
		{"admin bypasses membership", admin("root"), outsider, ActionManage, true},
		{"non-member denied view", user("u"), outsider, ActionView, false},
		{"member can view", user("u"), member, ActionView, true},
		{"member cannot manage", user("u"), member, ActionManage, false},
		{"manager can manage", user("u"), manager, ActionManage, true},
		{"inspector can inspect", user("u"), inspector, ActionInspect, true},
		{"member cannot inspect", user("u"), member, ActionInspect, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanActOnClub(tc.actor, tc.facts, tc.action); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanActOnTask(t *testing.T) {
	cases := []struct {
		name   string
		actor  *domain.User
		tc     TaskContext
		action Action
		want   bool
	}{
		{"member views club equipment task", user("u"), TaskContext{Facts: member}, ActionView, true},
		{"member cannot view private equipment task", user("u"), TaskContext{Facts: member, EquipmentPrivate: true}, ActionView, false},
		{"owner views own private task", user("u"), TaskContext{Facts: member, EquipmentPrivate: true, ActorOwnsEquipment: true}, ActionView, true},
		{"manager views private task", user("u"), TaskContext{Facts: manager, EquipmentPrivate: true}, ActionView, true},
		{"inspector views private task needing inspection", user("u"), TaskContext{Facts: inspector, EquipmentPrivate: true, RequiresInspection: true}, ActionView, true},
		{"inspector cannot view private task without inspection", user("u"), TaskContext{Facts: inspector, EquipmentPrivate: true}, ActionView, false},
		{"member cannot close", user("u"), TaskContext{Facts: member}, ActionClose, false},
		{"manager can close", user("u"), TaskContext{Facts: manager}, ActionClose, true},
		{"member can comment", user("u"), TaskContext{Facts: member}, ActionComment, true},
		{"member can create subtask", user("u"), TaskContext{Facts: member}, ActionCreateSubTask, true},
		{"member can do open work", user("u"), TaskContext{Facts: member}, ActionDo, true},
		{"nobody does terminal work", user("u"), TaskContext{Facts: manager, Terminal: true}, ActionDo, false},
		{"inspector inspects awaiting subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true, AwaitingInspection: true}, ActionInspect, true},
		{"inspector cannot inspect open subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true}, ActionInspect, false},
		{"member cannot inspect", user("u"), TaskContext{Facts: member, RequiresInspection: true, AwaitingInspection: true}, ActionInspect, false},
		{"inspector rejects awaiting subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true, AwaitingInspection: true, Completed: true}, ActionReject, true},
		{"inspector rejects approved subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true, Terminal: true, Completed: true}, ActionReject, true},
		{"inspector cannot reject open subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true}, ActionReject, false},
		{"inspector cannot reject cancelled subtask", user("u"), TaskContext{Facts: inspector, RequiresInspection: true, Terminal: true}, ActionReject, false},
		{"member cannot reject", user("u"), TaskContext{Facts: member, RequiresInspection: true, Completed: true}, ActionReject, false},
		{"non-member denied everything", user("u"), TaskContext{Facts: outsider}, ActionComment, false},
		{"admin allowed everything", admin("root"), TaskContext{Facts: outsider, Terminal: true}, ActionDo, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanActOnTask(tc.actor, tc.tc, tc.action); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanActOnPurchase(t *testing.T) {
	deliveredBy := "courier"
	openP := domain.Purchase{Status: domain.PurchaseOpen, CreatedBy: "buyer"}
	approvedP := domain.Purchase{Status: domain.PurchaseApproved, CreatedBy: "buyer"}
	purchasedP := domain.Purchase{Status: domain.PurchasePurchased, CreatedBy: "buyer"}
	deliveredP := domain.Purchase{Status: domain.PurchaseDelivered, CreatedBy: "buyer", DeliveredBy: &deliveredBy}
	reimbursedP := domain.Purchase{Status: domain.PurchaseReimbursed, CreatedBy: "buyer"}
	cancelledP := domain.Purchase{Status: domain.PurchaseCancelled, CreatedBy: "buyer"}

	cases := []struct {
		name   string
		actor  *domain.User
		facts  domain.MembershipFacts
		p      domain.Purchase
		action Action
		want   bool
	}{
		{"member can view", user("u"), member, openP, ActionView, true},
		{"outsider cannot view", user("u"), outsider, openP, ActionView, false},
		{"member cannot approve", user("u"), member, openP, ActionApprove, false},
		{"manager approves open", user("u"), manager, openP, ActionApprove, true},
		{"manager cannot approve approved", user("u"), manager, approvedP, ActionApprove, false},
		{"any member marks purchased when approved", user("u"), member, approvedP, ActionMarkPurchased, true},
		{"cannot mark purchased when open", user("u"), member, openP, ActionMarkPurchased, false},
		{"any member marks delivered when purchased", user("u"), member, purchasedP, ActionMarkDelivered, true},
		{"member cannot reimburse", user("u"), member, deliveredP, ActionMarkReimbursed, false},
		{"manager reimburses delivered", user("u"), manager, deliveredP, ActionMarkReimbursed, true},
		{"creator cancels own request", user("buyer"), member, openP, ActionCancel, true},
		{"other member cannot cancel", user("u"), member, openP, ActionCancel, false},
		{"manager cancels any", user("u"), manager, purchasedP, ActionCancel, true},
		{"nobody cancels reimbursed", user("u"), manager, reimbursedP, ActionCancel, false},
		{"manager reverts approved", user("u"), manager, approvedP, ActionRevertStatus, true},
		{"member cannot revert approved", user("u"), member, approvedP, ActionRevertStatus, false},
		{"deliverer reverts own delivery", user("courier"), member, deliveredP, ActionRevertStatus, true},
		{"other member cannot revert delivery", user("u"), member, deliveredP, ActionRevertStatus, false},
		{"nothing to revert when open", user("u"), manager, openP, ActionRevertStatus, false},
		{"cancelled is final", user("u"), manager, cancelledP, ActionRevertStatus, false},
		{"admin allowed everything", admin("root"), outsider, reimbursedP, ActionCancel, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanActOnPurchase(tc.actor, tc.facts, tc.p, tc.action); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
