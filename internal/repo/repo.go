package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Entity is a stored contribution. Fields use backend field names.
type Entity struct {
	ID          string
	OwnerID     string
	Kind        string
	Status      string
	Fields      map[string]any
	CreatedAt   string
	UpdatedAt   string
	SubmittedAt string
}

// EntityFilter narrows ListEntities. Empty fields match everything.
type EntityFilter struct {
	OwnerID string
	Kind    string
	Status  string
	Limit   int
}

type scanner interface {
	Scan(dest ...any) error
}

const entityColumns = `id,owner_id,kind,status,fields_json,created_at,updated_at,COALESCE(submitted_at,'')`

func scanEntity(row scanner) (Entity, error) {
	var e Entity
	var fields string
	err := row.Scan(&e.ID, &e.OwnerID, &e.Kind, &e.Status, &fields, &e.CreatedAt, &e.UpdatedAt, &e.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
		return e, fmt.Errorf("decode entity %s fields: %w", e.ID, err)
	}
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	return e, nil
}

func (r Repo) InsertEntityTx(ctx context.Context, tx *sql.Tx, e Entity) error {
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO entities(id,owner_id,kind,status,fields_json,created_at,updated_at,submitted_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.OwnerID, e.Kind, e.Status, fields, e.CreatedAt, e.UpdatedAt, nullable(e.SubmittedAt))
	return err
}

func (r Repo) GetEntity(ctx context.Context, id string) (Entity, error) {
	return scanEntity(r.DB.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id=?`, id))
}

func (r Repo) GetEntityTx(ctx context.Context, tx *sql.Tx, id string) (Entity, error) {
	return scanEntity(tx.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id=?`, id))
}

// UpdateEntityTx rewrites fields, status and timestamps of an existing entity.
func (r Repo) UpdateEntityTx(ctx context.Context, tx *sql.Tx, e Entity) error {
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE entities SET status=?, fields_json=?, updated_at=?, submitted_at=? WHERE id=?`,
		e.Status, fields, e.UpdatedAt, nullable(e.SubmittedAt), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEntities(ctx context.Context, f EntityFilter) ([]Entity, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Kind != "" {
		where = append(where, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	q := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC, id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
