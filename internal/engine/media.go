package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hostflow/internal/engine/auth"
	"hostflow/internal/events"
	"hostflow/internal/repo"
)

// Upload is one received media file.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

var allowedMedia = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// MaxUploadBytes is the combined size limit of one upload request.
func (e Engine) MaxUploadBytes() int64 {
	if e.Config == nil || e.Config.Server.MaxUploadBytes <= 0 {
		return 10 << 20
	}
	return e.Config.Server.MaxUploadBytes
}

// AddMedia appends files to a mutable entity in the given order.
func (e Engine) AddMedia(ctx context.Context, actor auth.Actor, id string, files []Upload) ([]repo.Media, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
		ct := strings.ToLower(strings.TrimSpace(f.ContentType))
		if !allowedMedia[ct] {
			return nil, &CodedError{http.StatusUnsupportedMediaType, "unsupported_media_type", fmt.Sprintf("unsupported media type %q for %s", f.ContentType, f.Name)}
		}
	}
	if total > e.MaxUploadBytes() {
		return nil, ErrPayloadTooLarge
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ent, err := e.writableTx(ctx, tx, actor, id)
	if err != nil {
		return nil, err
	}
	pos, err := e.Repo.NextMediaPositionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]repo.Media, 0, len(files))
	for i, f := range files {
		m := repo.Media{
			ID:          uuid.NewString(),
			EntityID:    id,
			Name:        f.Name,
			ContentType: strings.ToLower(f.ContentType),
			Size:        int64(len(f.Data)),
			Data:        f.Data,
			Position:    pos + i,
			CreatedAt:   now,
		}
		if err := e.Repo.InsertMediaTx(ctx, tx, m); err != nil {
			return nil, fmt.Errorf("insert media %s: %w", f.Name, err)
		}
		m.Data = nil
		out = append(out, m)
	}
	ent.UpdatedAt = now
	if err := e.Repo.UpdateEntityTx(ctx, tx, ent); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.MediaUploaded, ent.Kind, id, actor.ID, events.EventPayload{"count": len(out), "bytes": total}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.log().Info("media uploaded", zap.String("id", id), zap.Int("files", len(out)), zap.Int64("bytes", total))
	return out, nil
}

// MediaData returns an asset with its bytes. Assets of unapproved entities
// are visible to their owner and moderators only.
func (e Engine) MediaData(ctx context.Context, actor auth.Actor, mediaID string) (repo.Media, error) {
	m, err := e.Repo.GetMedia(ctx, mediaID)
	if err != nil {
		return repo.Media{}, err
	}
	if _, err := e.Get(ctx, actor, m.EntityID); err != nil {
		return repo.Media{}, err
	}
	return m, nil
}
