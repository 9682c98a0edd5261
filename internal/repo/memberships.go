package repo

import (
	"context"
	"database/sql"
	"errors"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Membership struct {
	GroupID   string
	UserID    string
	Role      string
	CreatedAt string
}

func (r Repo) InsertMembershipTx(ctx context.Context, tx *sql.Tx, m Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(group_id,user_id,role,created_at) VALUES (?,?,?,?)`,
		m.GroupID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) DeleteMembershipTx(ctx context.Context, tx *sql.Tx, groupID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE group_id=? AND user_id=?`, groupID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMembershipTx(ctx context.Context, tx *sql.Tx, groupID, userID string) (Membership, error) {
	return scanMembership(tx.QueryRowContext(ctx, `SELECT group_id,user_id,role,created_at FROM memberships WHERE group_id=? AND user_id=?`, groupID, userID))
}

func (r Repo) GetMembership(ctx context.Context, groupID, userID string) (Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx, `SELECT group_id,user_id,role,created_at FROM memberships WHERE group_id=? AND user_id=?`, groupID, userID))
}

func (r Repo) CountMembers(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships WHERE group_id=?`, groupID).Scan(&n)
	return n, err
}

func scanMembership(row *sql.Row) (Membership, error) {
	var m Membership
	err := row.Scan(&m.GroupID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}
