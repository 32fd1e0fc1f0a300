package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubline/internal/config"
	"clubline/internal/db"
	"clubline/internal/domain"
	"clubline/internal/engine"
	"clubline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test-club"))
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return frozen }
	eng.Activity.Now = eng.Now
	ctx := context.Background()
	seed(t, ctx, eng)
	return testEnv{Engine: eng, Ctx: ctx}
}

// seed creates one club with a manager, a worker, an inspector and two pieces
// of club equipment.
func seed(t *testing.T, ctx context.Context, eng engine.Engine) {
	t.Helper()
	now := "2024-01-01T00:00:00Z"
	r := eng.Repo
	if err := r.InsertClub(ctx, domain.Club{ID: "club-1", Name: "Test Club", Subdomain: "test-club", Active: true, CreatedAt: now}); err != nil {
		t.Fatalf("seed club: %v", err)
	}
	for _, u := range []string{"manager", "worker", "inspector"} {
		if err := r.InsertUser(ctx, domain.User{ID: u, Email: u + "@local", Active: true, CreatedAt: now}); err != nil {
			t.Fatalf("seed user %s: %v", u, err)
		}
	}
	memberships := []domain.Membership{
		{UserID: "manager", ClubID: "club-1", IsManager: true, CreatedAt: now},
		{UserID: "worker", ClubID: "club-1", CreatedAt: now},
		{UserID: "inspector", ClubID: "club-1", IsInspector: true, CreatedAt: now},
	}
	for _, m := range memberships {
		if err := r.UpsertMembership(ctx, m); err != nil {
			t.Fatalf("seed membership %s: %v", m.UserID, err)
		}
	}
	if err := r.InsertEquipment(ctx, domain.Equipment{ID: "glider-1", ClubID: "club-1", Name: "ASK 21", Type: domain.EquipmentGlider, Ownership: domain.OwnershipClub, CreatedAt: now}); err != nil {
		t.Fatalf("seed glider: %v", err)
	}
	if err := r.InsertEquipment(ctx, domain.Equipment{ID: "hangar-1", ClubID: "club-1", Name: "Hangar", Type: domain.EquipmentFacility, Ownership: domain.OwnershipClub, CreatedAt: now}); err != nil {
		t.Fatalf("seed hangar: %v", err)
	}
}

func createTask(t *testing.T, env testEnv, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		EquipmentID: "glider-1",
		Title:       title,
		ActorID:     "manager",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func createSubTask(t *testing.T, env testEnv, taskID, title string, requiresInspection bool) domain.SubTask {
	t.Helper()
	st, err := env.Engine.CreateSubTask(env.Ctx, engine.SubTaskCreateOptions{
		TaskID:             taskID,
		Title:              title,
		RequiresInspection: requiresInspection,
		ActorID:            "manager",
	})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	return st
}

func TestCreateTaskRejectsUnknownEquipment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{EquipmentID: "nope", Title: "x", ActorID: "manager"})
	if err == nil {
		t.Fatalf("expected error for unknown equipment")
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ClubID: "other-club", EquipmentID: "glider-1", Title: "x", ActorID: "manager"})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for club mismatch, got %v", err)
	}
}

func TestCreateSubTaskDifficultyBounds(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Annual check")
	st, err := env.Engine.CreateSubTask(env.Ctx, engine.SubTaskCreateOptions{TaskID: task.ID, Title: "default", ActorID: "manager"})
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	if st.Difficulty != 1 {
		t.Fatalf("difficulty default = %d, want 1", st.Difficulty)
	}
	if st.Position != 0 {
		t.Fatalf("first position = %d, want 0", st.Position)
	}
	_, err = env.Engine.CreateSubTask(env.Ctx, engine.SubTaskCreateOptions{TaskID: task.ID, Title: "too hard", Difficulty: 6, ActorID: "manager"})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	second := createSubTask(t, env, task.ID, "second", false)
	if second.Position != 1 {
		t.Fatalf("second position = %d, want 1", second.Position)
	}
}

func TestMarkSubTaskDoneWithoutInspectionCloses(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Wash glider")
	st := createSubTask(t, env, task.ID, "wash", false)

	st, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if st.Status != domain.SubTaskClosed {
		t.Fatalf("status = %s, want closed", st.Status)
	}
	if st.DoneBy == nil || *st.DoneBy != "worker" {
		t.Fatalf("done_by = %v, want worker", st.DoneBy)
	}
	if st.CompletedBy == nil || *st.CompletedBy != "worker" {
		t.Fatalf("completed_by = %v, want worker", st.CompletedBy)
	}
	if st.InspectedBy != nil {
		t.Fatalf("inspected_by should stay empty without an inspection requirement")
	}
}

func TestMarkSubTaskDoneAwaitsInspection(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Control surfaces")
	st := createSubTask(t, env, task.ID, "check cables", true)

	st, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if st.Status != domain.SubTaskDone {
		t.Fatalf("status = %s, want done", st.Status)
	}

	// second completion attempt must fail
	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestInspectorSelfApproval(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Control surfaces")
	st := createSubTask(t, env, task.ID, "check cables", true)

	st, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "inspector", "", true)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if st.Status != domain.SubTaskClosed {
		t.Fatalf("status = %s, want closed", st.Status)
	}
	if st.InspectedBy == nil || *st.InspectedBy != "inspector" {
		t.Fatalf("inspected_by = %v, want inspector", st.InspectedBy)
	}

	log, err := env.Engine.Repo.ListActivities(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	// created(task), created(subtask), done, inspected_approved
	if len(log) != 4 {
		t.Fatalf("activity rows = %d, want 4", len(log))
	}
	last := log[len(log)-1]
	if last.Type != domain.ActivityInspectedApproved {
		t.Fatalf("last activity = %s, want inspected_approved", last.Type)
	}
	if last.Message == nil || *last.Message != "auto-validated" {
		t.Fatalf("auto-approval message = %v", last.Message)
	}
}

func TestMarkSubTaskDoneOnBehalf(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Wash glider")
	st := createSubTask(t, env, task.ID, "wash", false)

	st, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "manager", "worker", false)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if st.DoneBy == nil || *st.DoneBy != "manager" {
		t.Fatalf("done_by = %v, want manager", st.DoneBy)
	}
	if st.CompletedBy == nil || *st.CompletedBy != "worker" {
		t.Fatalf("completed_by = %v, want worker", st.CompletedBy)
	}

	log, err := env.Engine.Repo.ListActivities(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	last := log[len(log)-1]
	if last.Message == nil || *last.Message != "Completed on behalf of worker" {
		t.Fatalf("delegation note = %v", last.Message)
	}
}

func TestUndoSubTaskDone(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Wash glider")
	st := createSubTask(t, env, task.ID, "wash", false)

	st, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	st, err = env.Engine.UndoSubTaskDone(env.Ctx, st.ID, "worker")
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if st.Status != domain.SubTaskOpen {
		t.Fatalf("status = %s, want open", st.Status)
	}
	if st.DoneBy != nil || st.DoneAt != nil || st.CompletedBy != nil || st.InspectedBy != nil || st.InspectedAt != nil {
		t.Fatalf("completion bookkeeping not cleared: %+v", st)
	}

	// undo of an open subtask must fail
	if _, err := env.Engine.UndoSubTaskDone(env.Ctx, st.ID, "worker"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestInspectApprove(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Control surfaces")
	st := createSubTask(t, env, task.ID, "check cables", true)

	// approving an open subtask must fail
	if _, err := env.Engine.InspectApprove(env.Ctx, st.ID, "inspector"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}
	st, err := env.Engine.InspectApprove(env.Ctx, st.ID, "inspector")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if st.Status != domain.SubTaskClosed {
		t.Fatalf("status = %s, want closed", st.Status)
	}
	if st.InspectedBy == nil || *st.InspectedBy != "inspector" {
		t.Fatalf("inspected_by = %v, want inspector", st.InspectedBy)
	}
	if st.DoneBy == nil || *st.DoneBy != "worker" {
		t.Fatalf("done_by = %v, want worker", st.DoneBy)
	}
}

func TestInspectRejectResetsSubTask(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Control surfaces")
	st := createSubTask(t, env, task.ID, "check cables", true)

	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}
	st, err := env.Engine.InspectReject(env.Ctx, st.ID, "inspector", "turnbuckle not secured")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if st.Status != domain.SubTaskOpen {
		t.Fatalf("status = %s, want open", st.Status)
	}
	if st.DoneBy != nil || st.DoneAt != nil || st.CompletedBy != nil || st.InspectedBy != nil || st.InspectedAt != nil {
		t.Fatalf("completion bookkeeping not cleared: %+v", st)
	}

	log, err := env.Engine.Repo.ListActivities(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	last := log[len(log)-1]
	if last.Type != domain.ActivityInspectedRejected {
		t.Fatalf("last activity = %s, want inspected_rejected", last.Type)
	}
	if last.Message == nil || *last.Message != "turnbuckle not secured" {
		t.Fatalf("rejection reason = %v", last.Message)
	}
}

func TestInspectRejectUndoesApproval(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Control surfaces")
	st := createSubTask(t, env, task.ID, "check cables", true)

	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, st.ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := env.Engine.InspectApprove(env.Ctx, st.ID, "inspector"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	st, err := env.Engine.InspectReject(env.Ctx, st.ID, "inspector", "approved the wrong glider")
	if err != nil {
		t.Fatalf("reject closed: %v", err)
	}
	if st.Status != domain.SubTaskOpen {
		t.Fatalf("status = %s, want open", st.Status)
	}
	if st.DoneBy != nil || st.InspectedBy != nil {
		t.Fatalf("completion bookkeeping not cleared: %+v", st)
	}

	// rejecting an open or cancelled subtask must fail
	if _, err := env.Engine.InspectReject(env.Ctx, st.ID, "inspector", "nope"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestCloseTaskPreconditions(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Annual check")

	// a task without subtasks can never be closed
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error for empty task, got %v", err)
	}

	first := createSubTask(t, env, task.ID, "first", false)
	second := createSubTask(t, env, task.ID, "second", false)

	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, first.ID, "worker", "", false); err != nil {
		t.Fatalf("done first: %v", err)
	}
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error with open subtask, got %v", err)
	}

	if _, err := env.Engine.CancelSubTask(env.Ctx, second.ID, "manager", "not needed"); err != nil {
		t.Fatalf("cancel second: %v", err)
	}
	task, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if task.Status != domain.TaskClosed {
		t.Fatalf("status = %s, want closed", task.Status)
	}

	// closing twice must fail
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error on re-close, got %v", err)
	}
}

func TestCancelTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Annual check")
	open := createSubTask(t, env, task.ID, "still open", false)
	finished := createSubTask(t, env, task.ID, "finished", false)
	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, finished.ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}

	task, err := env.Engine.CancelTask(env.Ctx, task.ID, "manager", "glider sold")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.Status != domain.TaskCancelled {
		t.Fatalf("status = %s, want cancelled", task.Status)
	}
	if task.CancelledBy == nil || *task.CancelledBy != "manager" {
		t.Fatalf("cancelled_by = %v, want manager", task.CancelledBy)
	}

	got, err := env.Engine.Repo.GetSubTask(env.Ctx, open.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.SubTaskCancelled {
		t.Fatalf("open subtask status = %s, want cancelled", got.Status)
	}
	got, err = env.Engine.Repo.GetSubTask(env.Ctx, finished.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.SubTaskClosed {
		t.Fatalf("closed subtask status = %s, cascade must not touch it", got.Status)
	}

	log, err := env.Engine.Repo.ListActivities(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	var cascadeNote *domain.Activity
	for i := range log {
		if log[i].SubTaskID != nil && *log[i].SubTaskID == open.ID && log[i].Type == domain.ActivityCancelled {
			cascadeNote = &log[i]
		}
	}
	if cascadeNote == nil {
		t.Fatalf("no cascade activity for open subtask")
	}
	if cascadeNote.Message == nil || *cascadeNote.Message != "Cancelled due to task cancellation" {
		t.Fatalf("cascade message = %v", cascadeNote.Message)
	}
}

func TestCommentRequiresMessage(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Annual check")
	if err := env.Engine.Comment(env.Ctx, task.ID, "", "worker", ""); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.Engine.Comment(env.Ctx, task.ID, "", "worker", "parts ordered"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	log, err := env.Engine.Repo.ListActivities(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := log[len(log)-1]
	if last.Type != domain.ActivityComment || last.Message == nil || *last.Message != "parts ordered" {
		t.Fatalf("comment row = %+v", last)
	}
}

func TestTaskProgressRounding(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "Annual check")

	pct, err := env.Engine.TaskProgress(env.Ctx, task.ID)
	if err != nil || pct != 0 {
		t.Fatalf("empty task progress = %v (%v), want 0", pct, err)
	}

	first := createSubTask(t, env, task.ID, "a", false)
	createSubTask(t, env, task.ID, "b", false)
	createSubTask(t, env, task.ID, "c", false)
	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, first.ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}

	pct, err = env.Engine.TaskProgress(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if pct != 33.3 {
		t.Fatalf("progress = %v, want 33.3", pct)
	}
}

// Full workflow: a worker completes two checks, the inspector approves the
// one requiring inspection, and the manager closes the task.
func TestInspectionWorkflow(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "100h inspection")
	checkA := createSubTask(t, env, task.ID, "Check A", true)
	checkB := createSubTask(t, env, task.ID, "Check B", false)

	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, checkA.ID, "worker", "", false); err != nil {
		t.Fatalf("done A: %v", err)
	}
	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, checkB.ID, "worker", "", false); err != nil {
		t.Fatalf("done B: %v", err)
	}

	// Check A still awaits inspection
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager"); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error before inspection, got %v", err)
	}

	if _, err := env.Engine.InspectApprove(env.Ctx, checkA.ID, "inspector"); err != nil {
		t.Fatalf("approve A: %v", err)
	}
	task, err := env.Engine.CloseTask(env.Ctx, task.ID, "manager")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if task.Status != domain.TaskClosed {
		t.Fatalf("status = %s, want closed", task.Status)
	}
	pct, err := env.Engine.TaskProgress(env.Ctx, task.ID)
	if err != nil || pct != 100 {
		t.Fatalf("progress = %v (%v), want 100", pct, err)
	}
}
