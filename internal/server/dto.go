package server

import (
	"clubline/internal/domain"
)

// Request payloads

type CreateClubRequest struct {
	ID        *string `json:"id,omitempty"`
	Name      string  `json:"name"`
	Subdomain string  `json:"subdomain"`
}

type UpsertMemberRequest struct {
	UserID      string `json:"user_id"`
	IsManager   bool   `json:"is_manager"`
	IsInspector bool   `json:"is_inspector"`
}

type CreateEquipmentRequest struct {
	ID        *string  `json:"id,omitempty"`
	Name      string   `json:"name"`
	Type      string   `json:"type" enum:"GLIDER,FACILITY"`
	Ownership string   `json:"ownership,omitempty" enum:"CLUB,PRIVATE"`
	OwnerIDs  []string `json:"owner_ids,omitempty"`
}

type CreatePlanSubTaskRequest struct {
	Title              string `json:"title"`
	Description        *string `json:"description,omitempty"`
	Difficulty         *int    `json:"difficulty,omitempty" minimum:"1" maximum:"5"`
	RequiresInspection bool    `json:"requires_inspection,omitempty"`
	Documentation      *string `json:"documentation,omitempty"`
}

type CreatePlanTaskRequest struct {
	Title         string                     `json:"title"`
	Description   *string                    `json:"description,omitempty"`
	Documentation *string                    `json:"documentation,omitempty"`
	SubTasks      []CreatePlanSubTaskRequest `json:"subtasks,omitempty"`
}

type CreatePlanRequest struct {
	ID            *string                 `json:"id,omitempty"`
	Name          string                  `json:"name"`
	EquipmentType string                  `json:"equipment_type" enum:"GLIDER,FACILITY"`
	Tasks         []CreatePlanTaskRequest `json:"tasks,omitempty"`
}

type ApplyPlanRequest struct {
	PlanID      string  `json:"plan_id"`
	EquipmentID string  `json:"equipment_id"`
	DueAt       *string `json:"due_at,omitempty" format:"date-time"`
}

type CreateTaskRequest struct {
	ID            *string `json:"id,omitempty"`
	EquipmentID   string  `json:"equipment_id"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Documentation *string `json:"documentation,omitempty"`
	DueAt         *string `json:"due_at,omitempty" format:"date-time"`
}

type CreateSubTaskRequest struct {
	ID                 *string `json:"id,omitempty"`
	Title              string  `json:"title"`
	Description        *string `json:"description,omitempty"`
	Difficulty         *int    `json:"difficulty,omitempty" minimum:"1" maximum:"5"`
	RequiresInspection bool    `json:"requires_inspection,omitempty"`
	Documentation      *string `json:"documentation,omitempty"`
}

type DoneRequest struct {
	CompletedBy *string `json:"completed_by,omitempty"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type CommentRequest struct {
	Message   string  `json:"message"`
	SubTaskID *string `json:"subtask_id,omitempty"`
}

type CreatePurchaseRequest struct {
	ID          *string `json:"id,omitempty"`
	EquipmentID *string `json:"equipment_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	AmountCents int     `json:"amount_cents" minimum:"0"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

// TaskDetailResponse bundles a task with its subtasks, audit log and
// progress percentage.
type TaskDetailResponse struct {
	Task     domain.Task       `json:"task"`
	SubTasks []domain.SubTask  `json:"subtasks"`
	Log      []domain.Activity `json:"log,omitempty"`
	Progress float64           `json:"progress"`
}

type ClubStatusResponse struct {
	ClubID     string         `json:"club_id"`
	Active     bool           `json:"active"`
	TaskCounts map[string]int `json:"task_counts"`
}

type WhoAmIResponse struct {
	UserID string               `json:"user_id"`
	Admin  bool                 `json:"admin"`
	Source string               `json:"source"`
	Facts  *domain.MembershipFacts `json:"facts,omitempty"`
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func intOrZero(ptr *int) int {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func nonNilSubTasks(in []domain.SubTask) []domain.SubTask {
	if in == nil {
		return []domain.SubTask{}
	}
	return in
}
