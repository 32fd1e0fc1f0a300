package repo

import (
	"context"
	"database/sql"

	"clubline/internal/domain"
)

const taskCols = `id,club_id,equipment_id,title,description,documentation,status,created_by,due_at,application_id,plan_position,cancelled_by,cancelled_at,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ClubID, t.EquipmentID, t.Title, nullable(t.Description), nullable(t.Documentation), string(t.Status),
		t.CreatedBy, nullString(t.DueAt), nullString(t.ApplicationID), nullInt(t.PlanPosition),
		nullString(t.CancelledBy), nullString(t.CancelledAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, documentation=?, status=?, due_at=?, cancelled_by=?, cancelled_at=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullable(t.Documentation), string(t.Status), nullString(t.DueAt),
		nullString(t.CancelledBy), nullString(t.CancelledAt), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var desc, doc, dueAt, appID, cancelledBy, cancelledAt sql.NullString
	var planPos sql.NullInt64
	err := scan(&t.ID, &t.ClubID, &t.EquipmentID, &t.Title, &desc, &doc, &t.Status, &t.CreatedBy,
		&dueAt, &appID, &planPos, &cancelledBy, &cancelledAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	t.Documentation = doc.String
	t.DueAt = fromNull(dueAt)
	t.ApplicationID = fromNull(appID)
	t.PlanPosition = fromNullInt(planPos)
	t.CancelledBy = fromNull(cancelledBy)
	t.CancelledAt = fromNull(cancelledAt)
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) ListTasksByClub(ctx context.Context, clubID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskCols+` FROM tasks WHERE club_id=? ORDER BY created_at ASC, id ASC`, clubID)
}

func (r Repo) ListTasksByEquipment(ctx context.Context, equipmentID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskCols+` FROM tasks WHERE equipment_id=? ORDER BY created_at ASC, id ASC`, equipmentID)
}

// ListTasksByApplication preserves template order for plan-generated tasks.
func (r Repo) ListTasksByApplication(ctx context.Context, applicationID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskCols+` FROM tasks WHERE application_id=? ORDER BY plan_position ASC, id ASC`, applicationID)
}

func (r Repo) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context, clubID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE club_id=? GROUP BY status`, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- subtasks ---

const subTaskCols = `id,task_id,title,description,difficulty,requires_inspection,documentation,position,plan_position,status,done_by,done_at,completed_by,inspected_by,inspected_at,cancelled_by,cancelled_at,created_at,updated_at`

func (r Repo) InsertSubTask(ctx context.Context, tx *sql.Tx, s domain.SubTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subtasks(`+subTaskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.Title, nullable(s.Description), s.Difficulty, s.RequiresInspection, nullable(s.Documentation),
		s.Position, nullInt(s.PlanPosition), string(s.Status),
		nullString(s.DoneBy), nullString(s.DoneAt), nullString(s.CompletedBy),
		nullString(s.InspectedBy), nullString(s.InspectedAt),
		nullString(s.CancelledBy), nullString(s.CancelledAt), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateSubTask(ctx context.Context, tx *sql.Tx, s domain.SubTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE subtasks SET title=?, description=?, difficulty=?, requires_inspection=?, documentation=?, status=?, done_by=?, done_at=?, completed_by=?, inspected_by=?, inspected_at=?, cancelled_by=?, cancelled_at=?, updated_at=? WHERE id=?`,
		s.Title, nullable(s.Description), s.Difficulty, s.RequiresInspection, nullable(s.Documentation), string(s.Status),
		nullString(s.DoneBy), nullString(s.DoneAt), nullString(s.CompletedBy),
		nullString(s.InspectedBy), nullString(s.InspectedAt),
		nullString(s.CancelledBy), nullString(s.CancelledAt), s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubTask(scan func(...any) error) (domain.SubTask, error) {
	var s domain.SubTask
	var desc, doc, doneBy, doneAt, completedBy, inspectedBy, inspectedAt, cancelledBy, cancelledAt sql.NullString
	var planPos sql.NullInt64
	err := scan(&s.ID, &s.TaskID, &s.Title, &desc, &s.Difficulty, &s.RequiresInspection, &doc,
		&s.Position, &planPos, &s.Status, &doneBy, &doneAt, &completedBy,
		&inspectedBy, &inspectedAt, &cancelledBy, &cancelledAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Description = desc.String
	s.Documentation = doc.String
	s.PlanPosition = fromNullInt(planPos)
	s.DoneBy = fromNull(doneBy)
	s.DoneAt = fromNull(doneAt)
	s.CompletedBy = fromNull(completedBy)
	s.InspectedBy = fromNull(inspectedBy)
	s.InspectedAt = fromNull(inspectedAt)
	s.CancelledBy = fromNull(cancelledBy)
	s.CancelledAt = fromNull(cancelledAt)
	return s, nil
}

func (r Repo) GetSubTask(ctx context.Context, id string) (domain.SubTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subTaskCols+` FROM subtasks WHERE id=?`, id)
	return scanSubTask(row.Scan)
}

func (r Repo) ListSubTasks(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+subTaskCols+` FROM subtasks WHERE task_id=? ORDER BY position ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubTask
	for rows.Next() {
		s, err := scanSubTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// MaxSubTaskPosition returns the highest position under a task, -1 when none.
func (r Repo) MaxSubTaskPosition(ctx context.Context, taskID string) (int, error) {
	var pos sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(position) FROM subtasks WHERE task_id=?`, taskID).Scan(&pos)
	if err != nil {
		return -1, err
	}
	if !pos.Valid {
		return -1, nil
	}
	return int(pos.Int64), nil
}

// --- activities ---

// ListActivities returns the audit rows for a task, timestamp ascending.
func (r Repo) ListActivities(ctx context.Context, taskID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,subtask_id,type,actor_id,message,ts FROM activities WHERE task_id=? ORDER BY ts ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var subTaskID, message sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &subTaskID, &a.Type, &a.ActorID, &message, &a.TS); err != nil {
			return nil, err
		}
		a.SubTaskID = fromNull(subTaskID)
		a.Message = fromNull(message)
		res = append(res, a)
	}
	return res, rows.Err()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
