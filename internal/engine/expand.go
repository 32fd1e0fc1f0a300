package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clubline/internal/domain"
)

// ApplyOptions are parameters for applying a plan to an equipment.
type ApplyOptions struct {
	PlanID      string
	EquipmentID string
	DueAt       string
	ActorID     string
}

// ApplyResult is the tree created by one application.
type ApplyResult struct {
	Application domain.PlanApplication `json:"application"`
	Tasks       []domain.Task          `json:"tasks"`
	SubTasks    []domain.SubTask       `json:"subtasks"`
}

// ApplyPlan expands a plan template against an equipment: one application
// row, one task per template task and one subtask per template subtask, all
// created open in a single transaction. Template order is preserved through
// plan_position; subtask positions restart at zero per task.
func (e Engine) ApplyPlan(ctx context.Context, opts ApplyOptions) (ApplyResult, error) {
	var res ApplyResult
	plan, err := e.Repo.GetPlan(ctx, opts.PlanID)
	if err != nil {
		return res, err
	}
	eq, err := e.Repo.GetEquipment(ctx, opts.EquipmentID)
	if err != nil {
		return res, err
	}
	if plan.EquipmentType != eq.Type {
		return res, fmt.Errorf("%w: plan %s targets %s equipment, %s is %s",
			ErrValidation, plan.ID, plan.EquipmentType, eq.ID, eq.Type)
	}
	planTasks, err := e.Repo.ListPlanTasks(ctx, plan.ID)
	if err != nil {
		return res, err
	}
	now := e.nowString()
	res.Application = domain.PlanApplication{
		ID:          uuid.New().String(),
		PlanID:      plan.ID,
		EquipmentID: eq.ID,
		AppliedBy:   opts.ActorID,
		DueAt:       optionalString(opts.DueAt),
		CreatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertApplication(ctx, tx, res.Application); err != nil {
		return res, err
	}
	for _, pt := range planTasks {
		planPos := pt.Position
		t := domain.Task{
			ID:            uuid.New().String(),
			ClubID:        eq.ClubID,
			EquipmentID:   eq.ID,
			Title:         pt.Title,
			Description:   pt.Description,
			Documentation: pt.Documentation,
			Status:        domain.TaskOpen,
			CreatedBy:     opts.ActorID,
			DueAt:         res.Application.DueAt,
			ApplicationID: &res.Application.ID,
			PlanPosition:  &planPos,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return res, err
		}
		if err := e.Activity.Append(ctx, tx, t.ID, "", domain.ActivityCreated, opts.ActorID, ""); err != nil {
			return res, err
		}
		res.Tasks = append(res.Tasks, t)

		planSubTasks, err := e.Repo.ListPlanSubTasks(ctx, pt.ID)
		if err != nil {
			return res, err
		}
		for i, pst := range planSubTasks {
			subPlanPos := pst.Position
			st := domain.SubTask{
				ID:                 uuid.New().String(),
				TaskID:             t.ID,
				Title:              pst.Title,
				Description:        pst.Description,
				Difficulty:         pst.Difficulty,
				RequiresInspection: pst.RequiresInspection,
				Documentation:      pst.Documentation,
				Position:           i,
				PlanPosition:       &subPlanPos,
				Status:             domain.SubTaskOpen,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := e.Repo.InsertSubTask(ctx, tx, st); err != nil {
				return res, err
			}
			if err := e.Activity.Append(ctx, tx, t.ID, st.ID, domain.ActivityCreated, opts.ActorID, ""); err != nil {
				return res, err
			}
			res.SubTasks = append(res.SubTasks, st)
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// PlanCreateOptions describe a template and its nested task/subtask rows.
type PlanCreateOptions struct {
	ID            string
	Name          string
	EquipmentType domain.EquipmentType
	Tasks         []PlanTaskTemplate
}

type PlanTaskTemplate struct {
	Title         string
	Description   string
	Documentation string
	SubTasks      []PlanSubTaskTemplate
}

type PlanSubTaskTemplate struct {
	Title              string
	Description        string
	Difficulty         int
	RequiresInspection bool
	Documentation      string
}

// CreatePlan stores a template. Templates are immutable once applied, so no
// update path exists; a changed plan is a new plan. Every template row is
// validated before anything is written, and all rows commit together.
func (e Engine) CreatePlan(ctx context.Context, opts PlanCreateOptions) (domain.Plan, error) {
	if opts.Name == "" {
		return domain.Plan{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if opts.EquipmentType != domain.EquipmentGlider && opts.EquipmentType != domain.EquipmentFacility {
		return domain.Plan{}, fmt.Errorf("%w: unknown equipment type %q", ErrValidation, opts.EquipmentType)
	}
	for _, tt := range opts.Tasks {
		for _, stt := range tt.SubTasks {
			if stt.Difficulty != 0 && (stt.Difficulty < 1 || stt.Difficulty > 5) {
				return domain.Plan{}, fmt.Errorf("%w: difficulty must be between 1 and 5", ErrValidation)
			}
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Plan{
		ID:            id,
		Name:          opts.Name,
		EquipmentType: opts.EquipmentType,
		CreatedAt:     e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPlan(ctx, tx, p); err != nil {
		return p, err
	}
	for ti, tt := range opts.Tasks {
		pt := domain.PlanTask{
			ID:            uuid.New().String(),
			PlanID:        p.ID,
			Title:         tt.Title,
			Description:   tt.Description,
			Documentation: tt.Documentation,
			Position:      ti,
		}
		if err := e.Repo.InsertPlanTask(ctx, tx, pt); err != nil {
			return p, err
		}
		for si, stt := range tt.SubTasks {
			difficulty := stt.Difficulty
			if difficulty == 0 {
				difficulty = 1
			}
			pst := domain.PlanSubTask{
				ID:                 uuid.New().String(),
				PlanTaskID:         pt.ID,
				Title:              stt.Title,
				Description:        stt.Description,
				Difficulty:         difficulty,
				RequiresInspection: stt.RequiresInspection,
				Documentation:      stt.Documentation,
				Position:           si,
			}
			if err := e.Repo.InsertPlanSubTask(ctx, tx, pst); err != nil {
				return p, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}
