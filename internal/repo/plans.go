package repo

import (
	"context"
	"database/sql"

	"clubline/internal/domain"
)

func (r Repo) InsertPlan(ctx context.Context, tx *sql.Tx, p domain.Plan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plans(id,name,equipment_type,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, string(p.EquipmentType), p.CreatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	var p domain.Plan
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,equipment_type,created_at FROM plans WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.EquipmentType, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,equipment_type,created_at FROM plans ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.EquipmentType, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertPlanTask(ctx context.Context, tx *sql.Tx, t domain.PlanTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plan_tasks(id,plan_id,title,description,documentation,position) VALUES (?,?,?,?,?,?)`,
		t.ID, t.PlanID, t.Title, nullable(t.Description), nullable(t.Documentation), t.Position)
	return err
}

// ListPlanTasks returns the task templates in template order.
func (r Repo) ListPlanTasks(ctx context.Context, planID string) ([]domain.PlanTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,title,description,documentation,position FROM plan_tasks WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanTask
	for rows.Next() {
		var t domain.PlanTask
		var desc, doc sql.NullString
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Title, &desc, &doc, &t.Position); err != nil {
			return nil, err
		}
		t.Description = desc.String
		t.Documentation = doc.String
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertPlanSubTask(ctx context.Context, tx *sql.Tx, s domain.PlanSubTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plan_subtasks(id,plan_task_id,title,description,difficulty,requires_inspection,documentation,position) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.PlanTaskID, s.Title, nullable(s.Description), s.Difficulty, s.RequiresInspection, nullable(s.Documentation), s.Position)
	return err
}

// ListPlanSubTasks returns the subtask templates in template order.
func (r Repo) ListPlanSubTasks(ctx context.Context, planTaskID string) ([]domain.PlanSubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_task_id,title,description,difficulty,requires_inspection,documentation,position FROM plan_subtasks WHERE plan_task_id=? ORDER BY position ASC, id ASC`, planTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanSubTask
	for rows.Next() {
		var s domain.PlanSubTask
		var desc, doc sql.NullString
		if err := rows.Scan(&s.ID, &s.PlanTaskID, &s.Title, &desc, &s.Difficulty, &s.RequiresInspection, &doc, &s.Position); err != nil {
			return nil, err
		}
		s.Description = desc.String
		s.Documentation = doc.String
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- plan applications ---

const applicationCols = `id,plan_id,equipment_id,applied_by,due_at,cancelled_by,cancelled_at,created_at`

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.PlanApplication) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plan_applications(`+applicationCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.PlanID, a.EquipmentID, a.AppliedBy, nullString(a.DueAt), nullString(a.CancelledBy), nullString(a.CancelledAt), a.CreatedAt)
	return err
}

func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, a domain.PlanApplication) error {
	res, err := tx.ExecContext(ctx, `UPDATE plan_applications SET due_at=?, cancelled_by=?, cancelled_at=? WHERE id=?`,
		nullString(a.DueAt), nullString(a.CancelledBy), nullString(a.CancelledAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanApplication(scan func(...any) error) (domain.PlanApplication, error) {
	var a domain.PlanApplication
	var dueAt, cancelledBy, cancelledAt sql.NullString
	err := scan(&a.ID, &a.PlanID, &a.EquipmentID, &a.AppliedBy, &dueAt, &cancelledBy, &cancelledAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.DueAt = fromNull(dueAt)
	a.CancelledBy = fromNull(cancelledBy)
	a.CancelledAt = fromNull(cancelledAt)
	return a, nil
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.PlanApplication, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationCols+` FROM plan_applications WHERE id=?`, id)
	return scanApplication(row.Scan)
}

// ListApplications returns non-cancelled applications for an equipment,
// ordered ascending by due date.
func (r Repo) ListApplications(ctx context.Context, equipmentID string) ([]domain.PlanApplication, error) {
	return r.listApplications(ctx,
		`SELECT `+applicationCols+` FROM plan_applications WHERE equipment_id=? AND cancelled_at IS NULL ORDER BY due_at ASC, id ASC`,
		equipmentID)
}

// ListApplicationsInRange returns non-cancelled applications for an equipment
// with a due date inside [start, end], ordered ascending by due date.
// RFC3339 UTC strings compare lexicographically in timestamp order.
func (r Repo) ListApplicationsInRange(ctx context.Context, equipmentID, start, end string) ([]domain.PlanApplication, error) {
	return r.listApplications(ctx,
		`SELECT `+applicationCols+` FROM plan_applications WHERE equipment_id=? AND cancelled_at IS NULL AND due_at>=? AND due_at<=? ORDER BY due_at ASC, id ASC`,
		equipmentID, start, end)
}

func (r Repo) listApplications(ctx context.Context, query string, args ...any) ([]domain.PlanApplication, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanApplication
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
