package repo

import (
	"context"
	"database/sql"

	"clubline/internal/domain"
)

const purchaseCols = `id,club_id,equipment_id,title,description,amount_cents,status,created_by,approved_by,purchased_by,delivered_by,reimbursed_by,cancelled_by,cancelled_at,created_at,updated_at`

func (r Repo) InsertPurchase(ctx context.Context, tx *sql.Tx, p domain.Purchase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO purchases(`+purchaseCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ClubID, nullString(p.EquipmentID), p.Title, nullable(p.Description), p.AmountCents, string(p.Status),
		p.CreatedBy, nullString(p.ApprovedBy), nullString(p.PurchasedBy), nullString(p.DeliveredBy),
		nullString(p.ReimbursedBy), nullString(p.CancelledBy), nullString(p.CancelledAt), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdatePurchase(ctx context.Context, tx *sql.Tx, p domain.Purchase) error {
	res, err := tx.ExecContext(ctx, `UPDATE purchases SET title=?, description=?, amount_cents=?, status=?, approved_by=?, purchased_by=?, delivered_by=?, reimbursed_by=?, cancelled_by=?, cancelled_at=?, updated_at=? WHERE id=?`,
		p.Title, nullable(p.Description), p.AmountCents, string(p.Status),
		nullString(p.ApprovedBy), nullString(p.PurchasedBy), nullString(p.DeliveredBy),
		nullString(p.ReimbursedBy), nullString(p.CancelledBy), nullString(p.CancelledAt), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPurchase(scan func(...any) error) (domain.Purchase, error) {
	var p domain.Purchase
	var equipmentID, desc, approvedBy, purchasedBy, deliveredBy, reimbursedBy, cancelledBy, cancelledAt sql.NullString
	err := scan(&p.ID, &p.ClubID, &equipmentID, &p.Title, &desc, &p.AmountCents, &p.Status, &p.CreatedBy,
		&approvedBy, &purchasedBy, &deliveredBy, &reimbursedBy, &cancelledBy, &cancelledAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.EquipmentID = fromNull(equipmentID)
	p.Description = desc.String
	p.ApprovedBy = fromNull(approvedBy)
	p.PurchasedBy = fromNull(purchasedBy)
	p.DeliveredBy = fromNull(deliveredBy)
	p.ReimbursedBy = fromNull(reimbursedBy)
	p.CancelledBy = fromNull(cancelledBy)
	p.CancelledAt = fromNull(cancelledAt)
	return p, nil
}

func (r Repo) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+purchaseCols+` FROM purchases WHERE id=?`, id)
	return scanPurchase(row.Scan)
}

func (r Repo) ListPurchases(ctx context.Context, clubID string) ([]domain.Purchase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+purchaseCols+` FROM purchases WHERE club_id=? ORDER BY created_at ASC, id ASC`, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListPurchaseEvents(ctx context.Context, purchaseID string) ([]domain.PurchaseEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,purchase_id,type,actor_id,message,ts FROM purchase_events WHERE purchase_id=? ORDER BY ts ASC, id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PurchaseEvent
	for rows.Next() {
		var e domain.PurchaseEvent
		var message sql.NullString
		if err := rows.Scan(&e.ID, &e.PurchaseID, &e.Type, &e.ActorID, &message, &e.TS); err != nil {
			return nil, err
		}
		e.Message = fromNull(message)
		res = append(res, e)
	}
	return res, rows.Err()
}
