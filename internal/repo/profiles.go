package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Profile struct {
	UserID    string
	Name      string
	Email     string
	Phone     string
	Roles     []string
	CreatedAt string
	UpdatedAt string
}

// UpsertProfileTx stores p, keeping created_at of an existing row.
func (r Repo) UpsertProfileTx(ctx context.Context, tx *sql.Tx, p Profile) error {
	if p.Roles == nil {
		p.Roles = []string{}
	}
	roles, err := json.Marshal(p.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO profiles(user_id,name,email,phone,roles_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET name=excluded.name, email=excluded.email, phone=excluded.phone, roles_json=excluded.roles_json, updated_at=excluded.updated_at`,
		p.UserID, p.Name, p.Email, p.Phone, string(roles), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	var roles string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,name,email,phone,roles_json,created_at,updated_at FROM profiles WHERE user_id=?`, userID).
		Scan(&p.UserID, &p.Name, &p.Email, &p.Phone, &roles, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(roles), &p.Roles); err != nil {
		return p, fmt.Errorf("decode roles of %s: %w", userID, err)
	}
	return p, nil
}
