package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded by the engine.
const (
	DraftCreated   = "entity.created"
	SectionUpdated = "entity.section_updated"
	MediaUploaded  = "entity.media_uploaded"
	Submitted      = "entity.submitted"
	Approved       = "entity.approved"
	GroupJoined    = "group.joined"
	GroupLeft      = "group.left"
	ProfileSaved   = "profile.saved"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type Event struct {
	ID         int64        `json:"id"`
	TS         string       `json:"ts"`
	Type       string       `json:"type"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	ActorID    string       `json:"actor_id"`
	Payload    EventPayload `json:"payload"`
}

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// ForEntity lists the audit trail of one entity, oldest first.
func (w Writer) ForEntity(ctx context.Context, entityID string) ([]Event, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE entity_id=? ORDER BY id`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
