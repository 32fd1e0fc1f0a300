package activity

import (
	"context"
	"database/sql"
	"time"

	"clubline/internal/domain"
)

// Writer appends audit rows inside the caller's transaction. Rows are
// immutable; there is no update or delete path.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append writes one activity row for a task, optionally scoped to a subtask.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, taskID, subTaskID string, typ domain.ActivityType, actorID, message string) error {
	ts := w.now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(task_id,subtask_id,type,actor_id,message,ts) VALUES (?,?,?,?,?,?)`,
		taskID, nullable(subTaskID), string(typ), actorID, nullable(message), ts)
	return err
}

// AppendPurchase writes one event row for a purchase.
func (w Writer) AppendPurchase(ctx context.Context, tx *sql.Tx, purchaseID, evtType, actorID, message string) error {
	ts := w.now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO purchase_events(purchase_id,type,actor_id,message,ts) VALUES (?,?,?,?,?)`,
		purchaseID, evtType, actorID, nullable(message), ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
