package repo

import (
	"context"
	"database/sql"
	"errors"
)

type Media struct {
	ID          string
	EntityID    string
	Name        string
	ContentType string
	Size        int64
	Data        []byte
	Position    int
	CreatedAt   string
}

func (r Repo) InsertMediaTx(ctx context.Context, tx *sql.Tx, m Media) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO media(id,entity_id,name,content_type,size,data,position,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.EntityID, m.Name, m.ContentType, m.Size, m.Data, m.Position, m.CreatedAt)
	return err
}

// NextMediaPositionTx returns the position after the entity's last asset.
func (r Repo) NextMediaPositionTx(ctx context.Context, tx *sql.Tx, entityID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM media WHERE entity_id=?`, entityID).Scan(&pos)
	return pos, err
}

// ListMedia returns asset metadata in upload order without the blobs.
func (r Repo) ListMedia(ctx context.Context, entityID string) ([]Media, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entity_id,name,content_type,size,position,created_at FROM media WHERE entity_id=? ORDER BY position`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.EntityID, &m.Name, &m.ContentType, &m.Size, &m.Position, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// GetMedia returns one asset including its data.
func (r Repo) GetMedia(ctx context.Context, id string) (Media, error) {
	var m Media
	err := r.DB.QueryRowContext(ctx, `SELECT id,entity_id,name,content_type,size,data,position,created_at FROM media WHERE id=?`, id).
		Scan(&m.ID, &m.EntityID, &m.Name, &m.ContentType, &m.Size, &m.Data, &m.Position, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}
