package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hostflow/internal/config"
	"hostflow/internal/domain"
	"hostflow/internal/engine/auth"
	"hostflow/internal/events"
	"hostflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Log    *zap.Logger
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Log:    log,
	}
}

// TimeLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps order correctly as strings in SQL and in clients.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (e Engine) now() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(TimeLayout)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// CodedError carries the HTTP status and application code the API reports.
type CodedError struct {
	Status  int
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Message }

var (
	ErrReadOnly         = &CodedError{http.StatusConflict, "entity_read_only", "entity is approved and read-only"}
	ErrPayloadTooLarge  = &CodedError{http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit"}
	ErrAlreadyMember    = &CodedError{http.StatusConflict, "already_member", "already a member of this group"}
	ErrNotMember        = &CodedError{http.StatusNotFound, "not_member", "not a member of this group"}
	ErrOwnerCannotLeave = &CodedError{http.StatusConflict, "owner_cannot_leave", "owner cannot leave their own group"}
	ErrNotSubmitted     = &CodedError{http.StatusConflict, "not_submitted", "only submitted entities can be approved"}
	ErrNotGroup         = &CodedError{http.StatusBadRequest, "bad_request", "entity is not a group"}
)

// Sections accepted by UpdateSection.
const (
	SectionBasic    = "basic"
	SectionLocation = "location"
	SectionPricing  = "pricing"
)

// Entity is a stored entity with its media metadata.
type Entity struct {
	repo.Entity
	Media []repo.Media
}

// SaveProfile creates or refreshes the profile of p.UserID.
func (e Engine) SaveProfile(ctx context.Context, p repo.Profile) (repo.Profile, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return repo.Profile{}, errors.New("user_id is required")
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return repo.Profile{}, err
	}
	defer tx.Rollback()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := e.Repo.UpsertProfileTx(ctx, tx, p); err != nil {
		return repo.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProfileSaved, "profile", p.UserID, p.UserID, events.EventPayload{"roles": p.Roles}); err != nil {
		return repo.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return repo.Profile{}, err
	}
	return e.Repo.GetProfile(ctx, p.UserID)
}

// Profile returns the stored profile of actor, or a bare one built from the token.
func (e Engine) Profile(ctx context.Context, actor auth.Actor) (repo.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.Profile{UserID: actor.ID, Roles: actor.Roles}, nil
	}
	return p, err
}

// CreateDraft stores a new draft owned by actor. Creating a group also makes
// the owner its first member.
func (e Engine) CreateDraft(ctx context.Context, actor auth.Actor, kind string, fields map[string]any) (Entity, error) {
	k, err := domain.ParseKind(kind)
	if err != nil {
		return Entity{}, err
	}
	canonical, err := Canonical(k, fields)
	if err != nil {
		return Entity{}, err
	}
	now := e.now()
	ent := repo.Entity{
		ID:        uuid.NewString(),
		OwnerID:   actor.ID,
		Kind:      string(k),
		Status:    string(domain.StatusDraft),
		Fields:    canonical,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Entity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEntityTx(ctx, tx, ent); err != nil {
		return Entity{}, fmt.Errorf("insert entity: %w", err)
	}
	if k == domain.KindGroup {
		if err := e.Repo.InsertMembershipTx(ctx, tx, repo.Membership{GroupID: ent.ID, UserID: actor.ID, Role: repo.RoleOwner, CreatedAt: now}); err != nil {
			return Entity{}, fmt.Errorf("insert owner membership: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, events.DraftCreated, ent.Kind, ent.ID, actor.ID, events.EventPayload{"fields": keys(canonical)}); err != nil {
		return Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entity{}, err
	}
	e.log().Info("draft created", zap.String("id", ent.ID), zap.String("kind", ent.Kind), zap.String("owner", actor.ID))
	return Entity{Entity: ent}, nil
}

// UpdateSection merges fields of one section into a mutable entity.
func (e Engine) UpdateSection(ctx context.Context, actor auth.Actor, id, section string, fields map[string]any) (Entity, error) {
	switch section {
	case SectionBasic, SectionLocation, SectionPricing:
	default:
		return Entity{}, fmt.Errorf("invalid section %q", section)
	}
	return e.mutate(ctx, actor, id, events.SectionUpdated, events.EventPayload{"section": section}, func(ent *repo.Entity) error {
		canonical, err := Canonical(domain.Kind(ent.Kind), fields)
		if err != nil {
			return err
		}
		for k, v := range canonical {
			ent.Fields[k] = v
		}
		return nil
	})
}

// UpdateAmenities replaces the entity's amenity list, or the rule list of a group.
func (e Engine) UpdateAmenities(ctx context.Context, actor auth.Actor, id string, items []string) (Entity, error) {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	return e.mutate(ctx, actor, id, events.SectionUpdated, events.EventPayload{"section": "amenities", "count": len(clean)}, func(ent *repo.Entity) error {
		ent.Fields[listField(domain.Kind(ent.Kind))] = clean
		return nil
	})
}

// Submit moves a draft (or a rejected entity) into review.
func (e Engine) Submit(ctx context.Context, actor auth.Actor, id string) (Entity, error) {
	return e.mutate(ctx, actor, id, events.Submitted, nil, func(ent *repo.Entity) error {
		ent.Status = string(domain.StatusSubmitted)
		ent.SubmittedAt = e.now()
		return nil
	})
}

// Approve publishes a submitted entity. Requires the moderator role.
func (e Engine) Approve(ctx context.Context, actor auth.Actor, id string) (Entity, error) {
	if err := auth.RequireRole(actor, auth.Moderator); err != nil {
		return Entity{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Entity{}, err
	}
	defer tx.Rollback()
	ent, err := e.Repo.GetEntityTx(ctx, tx, id)
	if err != nil {
		return Entity{}, err
	}
	if ent.Status != string(domain.StatusSubmitted) {
		return Entity{}, ErrNotSubmitted
	}
	ent.Status = string(domain.StatusApproved)
	ent.UpdatedAt = e.now()
	if err := e.Repo.UpdateEntityTx(ctx, tx, ent); err != nil {
		return Entity{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Approved, ent.Kind, ent.ID, actor.ID, nil); err != nil {
		return Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entity{}, err
	}
	e.log().Info("entity approved", zap.String("id", id), zap.String("moderator", actor.ID))
	return e.Get(ctx, actor, id)
}

// Get returns an entity. Unapproved entities are visible to their owner and moderators only.
func (e Engine) Get(ctx context.Context, actor auth.Actor, id string) (Entity, error) {
	ent, err := e.Repo.GetEntity(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	if ent.Status != string(domain.StatusApproved) {
		if err := auth.RequireOwner(actor, ent.OwnerID); err != nil {
			return Entity{}, repo.ErrNotFound
		}
	}
	media, err := e.Repo.ListMedia(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	return Entity{Entity: ent, Media: media}, nil
}

// Mine lists the actor's entities, most recently updated first.
func (e Engine) Mine(ctx context.Context, actor auth.Actor) ([]Entity, error) {
	items, err := e.Repo.ListEntities(ctx, repo.EntityFilter{OwnerID: actor.ID})
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(items))
	for _, it := range items {
		media, err := e.Repo.ListMedia(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Entity{Entity: it, Media: media})
	}
	return out, nil
}

// mutate loads a mutable entity owned by actor, applies fn and records evtType.
func (e Engine) mutate(ctx context.Context, actor auth.Actor, id, evtType string, payload events.EventPayload, fn func(*repo.Entity) error) (Entity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Entity{}, err
	}
	defer tx.Rollback()
	ent, err := e.writableTx(ctx, tx, actor, id)
	if err != nil {
		return Entity{}, err
	}
	if err := fn(&ent); err != nil {
		return Entity{}, err
	}
	ent.UpdatedAt = e.now()
	if err := e.Repo.UpdateEntityTx(ctx, tx, ent); err != nil {
		return Entity{}, fmt.Errorf("update entity: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, ent.Kind, ent.ID, actor.ID, payload); err != nil {
		return Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entity{}, err
	}
	e.log().Debug("entity changed", zap.String("id", id), zap.String("event", evtType))
	media, err := e.Repo.ListMedia(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	return Entity{Entity: ent, Media: media}, nil
}

func (e Engine) writableTx(ctx context.Context, tx *sql.Tx, actor auth.Actor, id string) (repo.Entity, error) {
	ent, err := e.Repo.GetEntityTx(ctx, tx, id)
	if err != nil {
		return repo.Entity{}, err
	}
	if err := auth.RequireOwner(actor, ent.OwnerID); err != nil {
		return repo.Entity{}, err
	}
	if domain.Status(ent.Status).ReadOnly() {
		return repo.Entity{}, ErrReadOnly
	}
	return ent, nil
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
