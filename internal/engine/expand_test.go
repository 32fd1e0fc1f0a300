package engine_test

import (
	"errors"
	"testing"

	"clubline/internal/domain"
	"clubline/internal/engine"
)

func createInspectionPlan(t *testing.T, env testEnv) domain.Plan {
	t.Helper()
	plan, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{
		Name:          "100h inspection",
		EquipmentType: domain.EquipmentGlider,
		Tasks: []engine.PlanTaskTemplate{
			{
				Title: "Airframe",
				SubTasks: []engine.PlanSubTaskTemplate{
					{Title: "Check skin", Difficulty: 2},
					{Title: "Check control cables", Difficulty: 4, RequiresInspection: true},
				},
			},
			{
				Title: "Instruments",
				SubTasks: []engine.PlanSubTaskTemplate{
					{Title: "Calibrate altimeter", Difficulty: 3},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func TestCreatePlanValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{EquipmentType: domain.EquipmentGlider}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
	if _, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{Name: "x", EquipmentType: "TRACTOR"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{
		Name:          "x",
		EquipmentType: domain.EquipmentGlider,
		Tasks: []engine.PlanTaskTemplate{
			{Title: "t", SubTasks: []engine.PlanSubTaskTemplate{{Title: "s", Difficulty: 9}}},
		},
	}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for difficulty, got %v", err)
	}
}

func TestApplyPlanExpandsTemplate(t *testing.T) {
	env := newTestEnv(t)
	plan := createInspectionPlan(t, env)

	res, err := env.Engine.ApplyPlan(env.Ctx, engine.ApplyOptions{
		PlanID:      plan.ID,
		EquipmentID: "glider-1",
		DueAt:       "2024-03-01T00:00:00Z",
		ActorID:     "manager",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Application.PlanID != plan.ID || res.Application.EquipmentID != "glider-1" {
		t.Fatalf("application = %+v", res.Application)
	}
	if res.Application.DueAt == nil || *res.Application.DueAt != "2024-03-01T00:00:00Z" {
		t.Fatalf("application due_at = %v", res.Application.DueAt)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(res.Tasks))
	}
	if len(res.SubTasks) != 3 {
		t.Fatalf("subtasks = %d, want 3", len(res.SubTasks))
	}

	// template order survives through plan_position
	for i, task := range res.Tasks {
		if task.Status != domain.TaskOpen {
			t.Fatalf("task %d status = %s, want open", i, task.Status)
		}
		if task.PlanPosition == nil || *task.PlanPosition != i {
			t.Fatalf("task %d plan_position = %v", i, task.PlanPosition)
		}
		if task.ApplicationID == nil || *task.ApplicationID != res.Application.ID {
			t.Fatalf("task %d application link = %v", i, task.ApplicationID)
		}
		if task.DueAt == nil || *task.DueAt != "2024-03-01T00:00:00Z" {
			t.Fatalf("task %d due_at = %v", i, task.DueAt)
		}
	}

	// subtask positions restart at zero for each task
	airframe, err := env.Engine.Repo.ListSubTasks(env.Ctx, res.Tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(airframe) != 2 || airframe[0].Title != "Check skin" || airframe[1].Title != "Check control cables" {
		t.Fatalf("airframe subtasks = %+v", airframe)
	}
	if airframe[0].Position != 0 || airframe[1].Position != 1 {
		t.Fatalf("airframe positions = %d, %d", airframe[0].Position, airframe[1].Position)
	}
	if !airframe[1].RequiresInspection {
		t.Fatalf("control cables must require inspection")
	}
	instruments, err := env.Engine.Repo.ListSubTasks(env.Ctx, res.Tasks[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(instruments) != 1 || instruments[0].Position != 0 {
		t.Fatalf("instruments subtasks = %+v", instruments)
	}

	// every generated entity gets its own created activity: one per task and
	// one per subtask
	wantSubTaskRows := map[string]int{res.Tasks[0].ID: 2, res.Tasks[1].ID: 1}
	for taskID, want := range wantSubTaskRows {
		log, err := env.Engine.Repo.ListActivities(env.Ctx, taskID)
		if err != nil {
			t.Fatal(err)
		}
		taskRows, subTaskRows := 0, 0
		for _, a := range log {
			if a.Type != domain.ActivityCreated {
				t.Fatalf("unexpected activity %s on fresh task", a.Type)
			}
			if a.SubTaskID == nil {
				taskRows++
			} else {
				subTaskRows++
			}
		}
		if taskRows != 1 {
			t.Fatalf("task %s created rows = %d, want 1", taskID, taskRows)
		}
		if subTaskRows != want {
			t.Fatalf("task %s subtask created rows = %d, want %d", taskID, subTaskRows, want)
		}
	}
}

func TestCreatePlanIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{
		Name:          "broken",
		EquipmentType: domain.EquipmentGlider,
		Tasks: []engine.PlanTaskTemplate{
			{Title: "fine", SubTasks: []engine.PlanSubTaskTemplate{{Title: "ok", Difficulty: 2}}},
			{Title: "broken", SubTasks: []engine.PlanSubTaskTemplate{{Title: "bad", Difficulty: 9}}},
		},
	})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	plans, err := env.Engine.Repo.ListPlans(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 0 {
		t.Fatalf("plans after failed create = %d, want 0", len(plans))
	}
}

func TestApplyPlanTypeMismatch(t *testing.T) {
	env := newTestEnv(t)
	plan := createInspectionPlan(t, env)

	_, err := env.Engine.ApplyPlan(env.Ctx, engine.ApplyOptions{
		PlanID:      plan.ID,
		EquipmentID: "hangar-1",
		ActorID:     "manager",
	})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// nothing must have been created
	tasks, err := env.Engine.Repo.ListTasksByClub(env.Ctx, "club-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks after failed apply = %d, want 0", len(tasks))
	}
}

func TestCancelPlanApplication(t *testing.T) {
	env := newTestEnv(t)
	plan := createInspectionPlan(t, env)
	res, err := env.Engine.ApplyPlan(env.Ctx, engine.ApplyOptions{PlanID: plan.ID, EquipmentID: "glider-1", ActorID: "manager"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// close the instruments task first; the cancellation must not touch it
	instruments := res.Tasks[1]
	sts, err := env.Engine.Repo.ListSubTasks(env.Ctx, instruments.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkSubTaskDone(env.Ctx, sts[0].ID, "worker", "", false); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := env.Engine.CloseTask(env.Ctx, instruments.ID, "manager"); err != nil {
		t.Fatalf("close: %v", err)
	}

	app, err := env.Engine.CancelPlanApplication(env.Ctx, res.Application.ID, "manager", "")
	if err != nil {
		t.Fatalf("cancel application: %v", err)
	}
	if !app.Cancelled() {
		t.Fatalf("application not marked cancelled: %+v", app)
	}

	airframe, err := env.Engine.Repo.GetTask(env.Ctx, res.Tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if airframe.Status != domain.TaskCancelled {
		t.Fatalf("open task status = %s, want cancelled", airframe.Status)
	}
	closedTask, err := env.Engine.Repo.GetTask(env.Ctx, instruments.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closedTask.Status != domain.TaskClosed {
		t.Fatalf("closed task status = %s, cancellation must not touch it", closedTask.Status)
	}

	// the cascaded cancellation uses its own activity type and the default reason
	log, err := env.Engine.Repo.ListActivities(env.Ctx, airframe.ID)
	if err != nil {
		t.Fatal(err)
	}
	var row *domain.Activity
	for i := range log {
		if log[i].Type == domain.ActivityApplicationCancelled {
			row = &log[i]
		}
	}
	if row == nil {
		t.Fatalf("no application_cancelled activity on cascaded task")
	}
	if row.Message == nil || *row.Message != "Maintenance plan application cancelled" {
		t.Fatalf("default reason = %v", row.Message)
	}

	// cancelling twice must fail
	if _, err := env.Engine.CancelPlanApplication(env.Ctx, res.Application.ID, "manager", ""); !errors.Is(err, engine.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}
