package domain

// Status enums. Transitions are validated at the engine boundary; the
// constants here are the only legal values in the store.

type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskClosed    TaskStatus = "closed"
	TaskCancelled TaskStatus = "cancelled"

	// TaskInProgress is reserved; no transition produces or consumes it.
	TaskInProgress TaskStatus = "in_progress"
	// TaskDone is reserved for the same reason.
	TaskDone TaskStatus = "done"
)

type SubTaskStatus string

const (
	SubTaskOpen      SubTaskStatus = "open"
	SubTaskDone      SubTaskStatus = "done"
	SubTaskClosed    SubTaskStatus = "closed"
	SubTaskCancelled SubTaskStatus = "cancelled"
)

type PurchaseStatus string

const (
	PurchaseOpen       PurchaseStatus = "open"
	PurchaseApproved   PurchaseStatus = "approved"
	PurchasePurchased  PurchaseStatus = "purchased"
	PurchaseDelivered  PurchaseStatus = "delivered"
	PurchaseReimbursed PurchaseStatus = "reimbursed"
	PurchaseCancelled  PurchaseStatus = "cancelled"
)

type EquipmentType string

const (
	EquipmentGlider   EquipmentType = "GLIDER"
	EquipmentFacility EquipmentType = "FACILITY"
)

type Ownership string

const (
	OwnershipClub    Ownership = "CLUB"
	OwnershipPrivate Ownership = "PRIVATE"
)

// ActivityType enumerates the audit-log row kinds.
type ActivityType string

const (
	ActivityComment              ActivityType = "comment"
	ActivityCreated              ActivityType = "created"
	ActivityEdited               ActivityType = "edited"
	ActivityDone                 ActivityType = "done"
	ActivityUndone               ActivityType = "undone"
	ActivityClosed               ActivityType = "closed"
	ActivityCancelled            ActivityType = "cancelled"
	ActivityInspectedApproved    ActivityType = "inspected_approved"
	ActivityInspectedRejected    ActivityType = "inspected_rejected"
	ActivityApplicationCancelled ActivityType = "application_cancelled"
)

type Club struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Admin     bool   `json:"admin"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Membership links a user to a club. At most one row per (user, club).
type Membership struct {
	UserID      string `json:"user_id"`
	ClubID      string `json:"club_id"`
	IsManager   bool   `json:"is_manager"`
	IsInspector bool   `json:"is_inspector"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// MembershipFacts are the per-(user, club) booleans consumed by the
// authorization engine and the state machine.
type MembershipFacts struct {
	IsMember    bool `json:"is_member"`
	IsManager   bool `json:"is_manager"`
	IsInspector bool `json:"is_inspector"`
}

type Equipment struct {
	ID        string        `json:"id"`
	ClubID    string        `json:"club_id"`
	Name      string        `json:"name"`
	Type      EquipmentType `json:"type" enum:"GLIDER,FACILITY"`
	Ownership Ownership     `json:"ownership" enum:"CLUB,PRIVATE"`
	OwnerIDs  []string      `json:"owner_ids,omitempty"`
	CreatedAt string        `json:"created_at" format:"date-time"`
}

// Private reports whether the equipment is privately owned; privacy is
// derived from ownership, never stored separately.
func (e Equipment) Private() bool {
	return e.Ownership == OwnershipPrivate
}

// OwnedBy reports whether userID is a registered owner.
func (e Equipment) OwnedBy(userID string) bool {
	for _, id := range e.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Plan is a reusable maintenance template.
type Plan struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	EquipmentType EquipmentType `json:"equipment_type" enum:"GLIDER,FACILITY"`
	CreatedAt     string        `json:"created_at" format:"date-time"`
}

type PlanTask struct {
	ID            string `json:"id"`
	PlanID        string `json:"plan_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Position      int    `json:"position"`
}

type PlanSubTask struct {
	ID                 string `json:"id"`
	PlanTaskID         string `json:"plan_task_id"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Difficulty         int    `json:"difficulty" minimum:"1" maximum:"5"`
	RequiresInspection bool   `json:"requires_inspection"`
	Documentation      string `json:"documentation,omitempty"`
	Position           int    `json:"position"`
}

// PlanApplication is one instantiation of a Plan against an Equipment.
// The link to its source plan is immutable after creation.
type PlanApplication struct {
	ID          string  `json:"id"`
	PlanID      string  `json:"plan_id"`
	EquipmentID string  `json:"equipment_id"`
	AppliedBy   string  `json:"applied_by"`
	DueAt       *string `json:"due_at,omitempty" format:"date-time"`
	CancelledBy *string `json:"cancelled_by,omitempty"`
	CancelledAt *string `json:"cancelled_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

func (a PlanApplication) Cancelled() bool { return a.CancelledAt != nil }

type Task struct {
	ID            string     `json:"id"`
	ClubID        string     `json:"club_id"`
	EquipmentID   string     `json:"equipment_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Documentation string     `json:"documentation,omitempty"`
	Status        TaskStatus `json:"status" enum:"open,in_progress,done,closed,cancelled"`
	CreatedBy     string     `json:"created_by"`
	DueAt         *string    `json:"due_at,omitempty" format:"date-time"`
	ApplicationID *string    `json:"application_id,omitempty"`
	PlanPosition  *int       `json:"plan_position,omitempty"`
	CancelledBy   *string    `json:"cancelled_by,omitempty"`
	CancelledAt   *string    `json:"cancelled_at,omitempty" format:"date-time"`
	CreatedAt     string     `json:"created_at" format:"date-time"`
	UpdatedAt     string     `json:"updated_at" format:"date-time"`
}

type SubTask struct {
	ID                 string        `json:"id"`
	TaskID             string        `json:"task_id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Difficulty         int           `json:"difficulty" minimum:"1" maximum:"5"`
	RequiresInspection bool          `json:"requires_inspection"`
	Documentation      string        `json:"documentation,omitempty"`
	Position           int           `json:"position"`
	PlanPosition       *int          `json:"plan_position,omitempty"`
	Status             SubTaskStatus `json:"status" enum:"open,done,closed,cancelled"`
	DoneBy             *string       `json:"done_by,omitempty"`
	DoneAt             *string       `json:"done_at,omitempty" format:"date-time"`
	CompletedBy        *string       `json:"completed_by,omitempty"`
	InspectedBy        *string       `json:"inspected_by,omitempty"`
	InspectedAt        *string       `json:"inspected_at,omitempty" format:"date-time"`
	CancelledBy        *string       `json:"cancelled_by,omitempty"`
	CancelledAt        *string       `json:"cancelled_at,omitempty" format:"date-time"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
	UpdatedAt          string        `json:"updated_at" format:"date-time"`
}

// Activity is an immutable audit-log row. Rows are only ever appended.
type Activity struct {
	ID        int64        `json:"id"`
	TaskID    string       `json:"task_id"`
	SubTaskID *string      `json:"subtask_id,omitempty"`
	Type      ActivityType `json:"type"`
	ActorID   string       `json:"actor_id"`
	Message   *string      `json:"message,omitempty"`
	TS        string       `json:"ts" format:"date-time"`
}

type Purchase struct {
	ID           string         `json:"id"`
	ClubID       string         `json:"club_id"`
	EquipmentID  *string        `json:"equipment_id,omitempty"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	AmountCents  int            `json:"amount_cents"`
	Status       PurchaseStatus `json:"status" enum:"open,approved,purchased,delivered,reimbursed,cancelled"`
	CreatedBy    string         `json:"created_by"`
	ApprovedBy   *string        `json:"approved_by,omitempty"`
	PurchasedBy  *string        `json:"purchased_by,omitempty"`
	DeliveredBy  *string        `json:"delivered_by,omitempty"`
	ReimbursedBy *string        `json:"reimbursed_by,omitempty"`
	CancelledBy  *string        `json:"cancelled_by,omitempty"`
	CancelledAt  *string        `json:"cancelled_at,omitempty" format:"date-time"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

// PurchaseEvent mirrors Activity for the purchase workflow.
type PurchaseEvent struct {
	ID         int64   `json:"id"`
	PurchaseID string  `json:"purchase_id"`
	Type       string  `json:"type"`
	ActorID    string  `json:"actor_id"`
	Message    *string `json:"message,omitempty"`
	TS         string  `json:"ts" format:"date-time"`
}
