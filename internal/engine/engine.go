package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"clubline/internal/activity"
	"clubline/internal/authz"
	"clubline/internal/config"
	"clubline/internal/domain"
	"clubline/internal/repo"
)

// ErrValidation marks rejected input (e.g. plan/equipment type mismatch).
var ErrValidation = errors.New("validation failed")

// ErrPrecondition marks an operation whose entity state forbids it.
var ErrPrecondition = errors.New("precondition failed")

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Writer
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Activity: activity.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) cascadeMessage() string {
	if e.Config != nil && e.Config.Workflow.CascadeCancelMessage != "" {
		return e.Config.Workflow.CascadeCancelMessage
	}
	return "Cancelled due to task cancellation"
}

func (e Engine) applicationCancelMessage() string {
	if e.Config != nil && e.Config.Workflow.ApplicationCancelMessage != "" {
		return e.Config.Workflow.ApplicationCancelMessage
	}
	return "Maintenance plan application cancelled"
}

func (e Engine) autoValidatedMessage() string {
	if e.Config != nil && e.Config.Workflow.AutoValidatedMessage != "" {
		return e.Config.Workflow.AutoValidatedMessage
	}
	return "auto-validated"
}

func ensureTaskTransition(oldStatus, newStatus domain.TaskStatus) error {
	if oldStatus == domain.TaskOpen && (newStatus == domain.TaskClosed || newStatus == domain.TaskCancelled) {
		return nil
	}
	return fmt.Errorf("%w: invalid task status transition %s -> %s", ErrPrecondition, oldStatus, newStatus)
}

func ensureSubTaskTransition(oldStatus, newStatus domain.SubTaskStatus) error {
	switch oldStatus {
	case domain.SubTaskOpen:
		if newStatus == domain.SubTaskDone || newStatus == domain.SubTaskClosed || newStatus == domain.SubTaskCancelled {
			return nil
		}
	case domain.SubTaskDone:
		if newStatus == domain.SubTaskClosed || newStatus == domain.SubTaskOpen || newStatus == domain.SubTaskCancelled {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid subtask status transition %s -> %s", ErrPrecondition, oldStatus, newStatus)
}

// TaskCreateOptions are parameters for creating an ad hoc task.
type TaskCreateOptions struct {
	ID            string
	ClubID        string
	EquipmentID   string
	Title         string
	Description   string
	Documentation string
	DueAt         string
	ActorID       string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	eq, err := e.Repo.GetEquipment(ctx, opts.EquipmentID)
	if err != nil {
		return domain.Task{}, err
	}
	clubID := opts.ClubID
	if clubID == "" {
		clubID = eq.ClubID
	}
	if clubID != eq.ClubID {
		return domain.Task{}, fmt.Errorf("%w: equipment %s not in club %s", ErrValidation, eq.ID, clubID)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	t := domain.Task{
		ID:            id,
		ClubID:        clubID,
		EquipmentID:   eq.ID,
		Title:         opts.Title,
		Description:   opts.Description,
		Documentation: opts.Documentation,
		Status:        domain.TaskOpen,
		CreatedBy:     opts.ActorID,
		DueAt:         optionalString(opts.DueAt),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Activity.Append(ctx, tx, t.ID, "", domain.ActivityCreated, opts.ActorID, ""); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// SubTaskCreateOptions are parameters for creating an ad hoc subtask.
type SubTaskCreateOptions struct {
	ID                 string
	TaskID             string
	Title              string
	Description        string
	Difficulty         int
	RequiresInspection bool
	Documentation      string
	ActorID            string
}

func (e Engine) CreateSubTask(ctx context.Context, opts SubTaskCreateOptions) (domain.SubTask, error) {
	if opts.Title == "" {
		return domain.SubTask{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if opts.Difficulty == 0 {
		opts.Difficulty = 1
	}
	if opts.Difficulty < 1 || opts.Difficulty > 5 {
		return domain.SubTask{}, fmt.Errorf("%w: difficulty must be between 1 and 5", ErrValidation)
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	if t.Status != domain.TaskOpen {
		return domain.SubTask{}, fmt.Errorf("%w: task %s is %s", ErrPrecondition, t.ID, t.Status)
	}
	maxPos, err := e.Repo.MaxSubTaskPosition(ctx, t.ID)
	if err != nil {
		return domain.SubTask{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	st := domain.SubTask{
		ID:                 id,
		TaskID:             t.ID,
		Title:              opts.Title,
		Description:        opts.Description,
		Difficulty:         opts.Difficulty,
		RequiresInspection: opts.RequiresInspection,
		Documentation:      opts.Documentation,
		Position:           maxPos + 1,
		Status:             domain.SubTaskOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubTask(ctx, tx, st); err != nil {
		return domain.SubTask{}, err
	}
	if err := e.Activity.Append(ctx, tx, t.ID, st.ID, domain.ActivityCreated, opts.ActorID, ""); err != nil {
		return domain.SubTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubTask{}, err
	}
	return st, nil
}

// MarkSubTaskDone records a completion. Subtasks without an inspection
// requirement close immediately. When the actor holds inspector
// qualification at the moment of completion the inspection is auto-approved;
// otherwise the subtask waits in done for a separate inspection.
func (e Engine) MarkSubTaskDone(ctx context.Context, subTaskID, actorID, completedBy string, actorIsInspector bool) (domain.SubTask, error) {
	st, err := e.Repo.GetSubTask(ctx, subTaskID)
	if err != nil {
		return st, err
	}
	if st.Status != domain.SubTaskOpen {
		return st, fmt.Errorf("%w: subtask %s is %s", ErrPrecondition, st.ID, st.Status)
	}
	now := e.nowString()
	if completedBy == "" {
		completedBy = actorID
	}
	st.DoneBy = &actorID
	st.DoneAt = &now
	st.CompletedBy = &completedBy

	doneMessage := ""
	if completedBy != actorID {
		doneMessage = fmt.Sprintf("Completed on behalf of %s", completedBy)
	}

	autoApproved := false
	switch {
	case !st.RequiresInspection:
		st.Status = domain.SubTaskClosed
	case actorIsInspector:
		st.Status = domain.SubTaskClosed
		st.InspectedBy = &actorID
		st.InspectedAt = &now
		autoApproved = true
	default:
		st.Status = domain.SubTaskDone
	}
	st.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return st, err
	}
	if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityDone, actorID, doneMessage); err != nil {
		return st, err
	}
	if autoApproved {
		if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityInspectedApproved, actorID, e.autoValidatedMessage()); err != nil {
			return st, err
		}
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

// UndoSubTaskDone reopens a completed subtask, clearing completion and
// inspection bookkeeping.
func (e Engine) UndoSubTaskDone(ctx context.Context, subTaskID, actorID string) (domain.SubTask, error) {
	st, err := e.Repo.GetSubTask(ctx, subTaskID)
	if err != nil {
		return st, err
	}
	if st.Status != domain.SubTaskDone && st.Status != domain.SubTaskClosed {
		return st, fmt.Errorf("%w: subtask %s is %s", ErrPrecondition, st.ID, st.Status)
	}
	st.Status = domain.SubTaskOpen
	st.DoneBy = nil
	st.DoneAt = nil
	st.CompletedBy = nil
	st.InspectedBy = nil
	st.InspectedAt = nil
	st.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return st, err
	}
	if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityUndone, actorID, ""); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

// InspectApprove closes a subtask that awaits inspection.
func (e Engine) InspectApprove(ctx context.Context, subTaskID, inspectorID string) (domain.SubTask, error) {
	st, err := e.Repo.GetSubTask(ctx, subTaskID)
	if err != nil {
		return st, err
	}
	if st.Status != domain.SubTaskDone {
		return st, fmt.Errorf("%w: subtask %s is %s, expected done", ErrPrecondition, st.ID, st.Status)
	}
	now := e.nowString()
	st.Status = domain.SubTaskClosed
	st.InspectedBy = &inspectorID
	st.InspectedAt = &now
	st.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return st, err
	}
	if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityInspectedApproved, inspectorID, ""); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

// InspectReject reverts a subtask to open, clearing completion and
// inspection bookkeeping entirely, as if the attempt never happened.
// Closed subtasks may also be rejected; the correction shows up as a new
// activity row, never as a mutation of earlier ones.
func (e Engine) InspectReject(ctx context.Context, subTaskID, inspectorID, reason string) (domain.SubTask, error) {
	st, err := e.Repo.GetSubTask(ctx, subTaskID)
	if err != nil {
		return st, err
	}
	if st.Status != domain.SubTaskDone && st.Status != domain.SubTaskClosed {
		return st, fmt.Errorf("%w: subtask %s is %s", ErrPrecondition, st.ID, st.Status)
	}
	st.Status = domain.SubTaskOpen
	st.DoneBy = nil
	st.DoneAt = nil
	st.CompletedBy = nil
	st.InspectedBy = nil
	st.InspectedAt = nil
	st.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return st, err
	}
	if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityInspectedRejected, inspectorID, reason); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

// CloseTask closes a task once every subtask is terminal. A task with no
// subtasks can never be closed.
func (e Engine) CloseTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if err := ensureTaskTransition(t.Status, domain.TaskClosed); err != nil {
		return t, err
	}
	subtasks, err := e.Repo.ListSubTasks(ctx, t.ID)
	if err != nil {
		return t, err
	}
	if len(subtasks) == 0 {
		return t, fmt.Errorf("%w: task %s has no subtasks", ErrPrecondition, t.ID)
	}
	for _, st := range subtasks {
		if st.Status != domain.SubTaskClosed && st.Status != domain.SubTaskCancelled {
			return t, fmt.Errorf("%w: not all subtasks closed", ErrPrecondition)
		}
	}
	t.Status = domain.TaskClosed
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Activity.Append(ctx, tx, t.ID, "", domain.ActivityClosed, actorID, ""); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// CancelTask cancels a task and cascades to its still-open subtasks.
func (e Engine) CancelTask(ctx context.Context, taskID, actorID, reason string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	t, err = e.cancelTaskTx(ctx, tx, t, actorID, reason, domain.ActivityCancelled)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// cancelTaskTx performs the cancellation cascade inside the caller's
// transaction: the task itself, then every subtask still open. Closed and
// cancelled subtasks are left untouched.
func (e Engine) cancelTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task, actorID, reason string, actType domain.ActivityType) (domain.Task, error) {
	if err := ensureTaskTransition(t.Status, domain.TaskCancelled); err != nil {
		return t, err
	}
	now := e.nowString()
	t.Status = domain.TaskCancelled
	t.CancelledBy = &actorID
	t.CancelledAt = &now
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Activity.Append(ctx, tx, t.ID, "", actType, actorID, reason); err != nil {
		return t, err
	}
	subtasks, err := e.Repo.ListSubTasks(ctx, t.ID)
	if err != nil {
		return t, err
	}
	for _, st := range subtasks {
		if st.Status != domain.SubTaskOpen {
			continue
		}
		st.Status = domain.SubTaskCancelled
		st.CancelledBy = &actorID
		st.CancelledAt = &now
		st.UpdatedAt = now
		if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
			return t, err
		}
		if err := e.Activity.Append(ctx, tx, t.ID, st.ID, domain.ActivityCancelled, actorID, e.cascadeMessage()); err != nil {
			return t, err
		}
	}
	return t, nil
}

// CancelSubTask cancels a single subtask. No cascade; a subtask has no
// children.
func (e Engine) CancelSubTask(ctx context.Context, subTaskID, actorID, reason string) (domain.SubTask, error) {
	st, err := e.Repo.GetSubTask(ctx, subTaskID)
	if err != nil {
		return st, err
	}
	if err := ensureSubTaskTransition(st.Status, domain.SubTaskCancelled); err != nil {
		return st, err
	}
	now := e.nowString()
	st.Status = domain.SubTaskCancelled
	st.CancelledBy = &actorID
	st.CancelledAt = &now
	st.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubTask(ctx, tx, st); err != nil {
		return st, err
	}
	if err := e.Activity.Append(ctx, tx, st.TaskID, st.ID, domain.ActivityCancelled, actorID, reason); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

// CancelPlanApplication cancels an application and every task it generated
// that is still open, in one transaction.
func (e Engine) CancelPlanApplication(ctx context.Context, applicationID, actorID, reason string) (domain.PlanApplication, error) {
	app, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return app, err
	}
	if app.Cancelled() {
		return app, fmt.Errorf("%w: application %s already cancelled", ErrPrecondition, app.ID)
	}
	if reason == "" {
		reason = e.applicationCancelMessage()
	}
	now := e.nowString()
	app.CancelledBy = &actorID
	app.CancelledAt = &now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return app, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateApplication(ctx, tx, app); err != nil {
		return app, err
	}
	tasks, err := e.Repo.ListTasksByApplication(ctx, app.ID)
	if err != nil {
		return app, err
	}
	for _, t := range tasks {
		if t.Status != domain.TaskOpen {
			continue
		}
		if _, err := e.cancelTaskTx(ctx, tx, t, actorID, reason, domain.ActivityApplicationCancelled); err != nil {
			return app, err
		}
	}
	if err := tx.Commit(); err != nil {
		return app, err
	}
	return app, nil
}

// Comment appends a free-text activity row without touching entity state.
func (e Engine) Comment(ctx context.Context, taskID, subTaskID, actorID, message string) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Activity.Append(ctx, tx, taskID, subTaskID, domain.ActivityComment, actorID, message); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskProgress reports the share of closed subtasks as a percentage with one
// decimal place. A task with no subtasks reports zero.
func (e Engine) TaskProgress(ctx context.Context, taskID string) (float64, error) {
	subtasks, err := e.Repo.ListSubTasks(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if len(subtasks) == 0 {
		return 0, nil
	}
	closed := 0
	for _, st := range subtasks {
		if st.Status == domain.SubTaskClosed {
			closed++
		}
	}
	pct := 100 * float64(closed) / float64(len(subtasks))
	return math.Round(pct*10) / 10, nil
}

// TaskRequiresInspection reports whether any subtask of the task carries an
// inspection requirement; consumed by the view policy for private equipment.
func (e Engine) TaskRequiresInspection(ctx context.Context, taskID string) (bool, error) {
	subtasks, err := e.Repo.ListSubTasks(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, st := range subtasks {
		if st.RequiresInspection {
			return true, nil
		}
	}
	return false, nil
}

// TaskAuthzContext assembles the policy inputs for a task decision.
func (e Engine) TaskAuthzContext(ctx context.Context, actorID string, t domain.Task) (authz.TaskContext, error) {
	facts, err := e.Repo.MembershipFacts(ctx, actorID, t.ClubID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	eq, err := e.Repo.GetEquipment(ctx, t.EquipmentID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	requires, err := e.TaskRequiresInspection(ctx, t.ID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	return authz.TaskContext{
		Facts:              facts,
		EquipmentPrivate:   eq.Private(),
		ActorOwnsEquipment: eq.OwnedBy(actorID),
		RequiresInspection: requires,
		Terminal:           t.Status == domain.TaskClosed || t.Status == domain.TaskCancelled,
	}, nil
}

// SubTaskAuthzContext assembles the policy inputs for a subtask decision.
func (e Engine) SubTaskAuthzContext(ctx context.Context, actorID string, st domain.SubTask) (authz.TaskContext, error) {
	t, err := e.Repo.GetTask(ctx, st.TaskID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	facts, err := e.Repo.MembershipFacts(ctx, actorID, t.ClubID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	eq, err := e.Repo.GetEquipment(ctx, t.EquipmentID)
	if err != nil {
		return authz.TaskContext{}, err
	}
	return authz.TaskContext{
		Facts:              facts,
		EquipmentPrivate:   eq.Private(),
		ActorOwnsEquipment: eq.OwnedBy(actorID),
		RequiresInspection: st.RequiresInspection,
		Terminal:           st.Status == domain.SubTaskClosed || st.Status == domain.SubTaskCancelled,
		AwaitingInspection: st.Status == domain.SubTaskDone && st.InspectedAt == nil,
		Completed:          st.Status == domain.SubTaskDone || st.Status == domain.SubTaskClosed,
	}, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
