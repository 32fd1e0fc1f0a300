package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"clubline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- clubs ---

func (r Repo) InsertClub(ctx context.Context, c domain.Club) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO clubs(id,name,subdomain,active,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, c.Subdomain, c.Active, c.CreatedAt)
	return err
}

func scanClub(row *sql.Row) (domain.Club, error) {
	var c domain.Club
	err := row.Scan(&c.ID, &c.Name, &c.Subdomain, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetClub(ctx context.Context, id string) (domain.Club, error) {
	return scanClub(r.DB.QueryRowContext(ctx, `SELECT id,name,subdomain,active,created_at FROM clubs WHERE id=?`, id))
}

func (r Repo) GetClubBySubdomain(ctx context.Context, subdomain string) (domain.Club, error) {
	return scanClub(r.DB.QueryRowContext(ctx, `SELECT id,name,subdomain,active,created_at FROM clubs WHERE subdomain=?`, subdomain))
}

func (r Repo) ListClubs(ctx context.Context) ([]domain.Club, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,subdomain,active,created_at FROM clubs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Club
	for rows.Next() {
		var c domain.Club
		if err := rows.Scan(&c.ID, &c.Name, &c.Subdomain, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,admin,active,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, u.Admin, u.Active, u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Admin, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,admin,active,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,admin,active,created_at FROM users WHERE email=?`, email))
}

// --- memberships ---

func (r Repo) UpsertMembership(ctx context.Context, m domain.Membership) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO memberships(user_id,club_id,is_manager,is_inspector,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(user_id,club_id) DO UPDATE SET is_manager=excluded.is_manager, is_inspector=excluded.is_inspector`,
		m.UserID, m.ClubID, m.IsManager, m.IsInspector, m.CreatedAt)
	return err
}

func (r Repo) DeleteMembership(ctx context.Context, userID, clubID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM memberships WHERE user_id=? AND club_id=?`, userID, clubID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMemberships(ctx context.Context, clubID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,club_id,is_manager,is_inspector,created_at FROM memberships WHERE club_id=? ORDER BY created_at ASC`, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.UserID, &m.ClubID, &m.IsManager, &m.IsInspector, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MembershipFacts resolves the per-(user, club) booleans. A missing
// membership row is not an error; it yields all-false facts.
func (r Repo) MembershipFacts(ctx context.Context, userID, clubID string) (domain.MembershipFacts, error) {
	var f domain.MembershipFacts
	err := r.DB.QueryRowContext(ctx, `SELECT is_manager,is_inspector FROM memberships WHERE user_id=? AND club_id=?`, userID, clubID).
		Scan(&f.IsManager, &f.IsInspector)
	if err == sql.ErrNoRows {
		return domain.MembershipFacts{}, nil
	}
	if err != nil {
		return domain.MembershipFacts{}, err
	}
	f.IsMember = true
	return f, nil
}

// --- equipment ---

func (r Repo) InsertEquipment(ctx context.Context, e domain.Equipment) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO equipment(id,club_id,name,type,ownership,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.ClubID, e.Name, string(e.Type), string(e.Ownership), e.CreatedAt); err != nil {
		return err
	}
	for _, owner := range e.OwnerIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO equipment_owners(equipment_id,user_id) VALUES (?,?)`, e.ID, owner); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) GetEquipment(ctx context.Context, id string) (domain.Equipment, error) {
	var e domain.Equipment
	err := r.DB.QueryRowContext(ctx, `SELECT id,club_id,name,type,ownership,created_at FROM equipment WHERE id=?`, id).
		Scan(&e.ID, &e.ClubID, &e.Name, &e.Type, &e.Ownership, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	owners, err := r.equipmentOwners(ctx, id)
	if err != nil {
		return e, err
	}
	e.OwnerIDs = owners
	return e, nil
}

func (r Repo) ListEquipment(ctx context.Context, clubID string) ([]domain.Equipment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,club_id,name,type,ownership,created_at FROM equipment WHERE club_id=? ORDER BY created_at ASC`, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Equipment
	for rows.Next() {
		var e domain.Equipment
		if err := rows.Scan(&e.ID, &e.ClubID, &e.Name, &e.Type, &e.Ownership, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		owners, err := r.equipmentOwners(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].OwnerIDs = owners
	}
	return res, nil
}

func (r Repo) equipmentOwners(ctx context.Context, equipmentID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM equipment_owners WHERE equipment_id=?`, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// --- api keys ---

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, id, userID, name, keyHash, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,user_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		id, userID, nullable(name), keyHash, now)
	return err
}

// APIKeyUser returns the owning user id for a key hash.
func (r Repo) APIKeyUser(ctx context.Context, keyHash string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM api_keys WHERE key_hash=?`, keyHash).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return userID, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func fromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
