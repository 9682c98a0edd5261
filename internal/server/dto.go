package server

import (
	"path"

	"hostflow/internal/engine"
	"hostflow/internal/events"
	"hostflow/internal/repo"
)

type CreateEntityRequest struct {
	Kind   string         `json:"kind" enum:"property,event,group,job_application" example:"event"`
	Fields map[string]any `json:"fields,omitempty"`
}

type UpdateSectionRequest struct {
	Fields map[string]any `json:"fields"`
}

type UpdateAmenitiesRequest struct {
	Items []string `json:"items"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id" minLength:"1" example:"host-1"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Phone  string   `json:"phone,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ProfileResponse struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Phone  string   `json:"phone"`
	Roles  []string `json:"roles"`
}

type MediaResponse struct {
	ID          string `json:"id"`
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
}

type EntityResponse struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Fields      map[string]any  `json:"fields"`
	Media       []MediaResponse `json:"media"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	SubmittedAt string          `json:"submitted_at,omitempty"`
}

type MembershipResponse struct {
	GroupID string `json:"group_id"`
	Member  bool   `json:"member"`
	Role    string `json:"role,omitempty"`
	Members int    `json:"members"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type entityList struct {
	Items []EntityResponse `json:"items"`
}

type mediaList struct {
	Items []MediaResponse `json:"items"`
}

type eventList struct {
	Items []EventResponse `json:"items"`
}

func mediaResponse(basePath string, m repo.Media) MediaResponse {
	return MediaResponse{
		ID:          m.ID,
		EntityID:    m.EntityID,
		Name:        m.Name,
		ContentType: m.ContentType,
		Size:        m.Size,
		URL:         path.Join(basePath, "media", m.ID),
		CreatedAt:   m.CreatedAt,
	}
}

func mediaResponses(basePath string, items []repo.Media) []MediaResponse {
	out := make([]MediaResponse, 0, len(items))
	for _, m := range items {
		out = append(out, mediaResponse(basePath, m))
	}
	return out
}

func entityResponse(basePath string, e engine.Entity) EntityResponse {
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return EntityResponse{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Kind:        e.Kind,
		Status:      e.Status,
		Fields:      fields,
		Media:       mediaResponses(basePath, e.Media),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		SubmittedAt: e.SubmittedAt,
	}
}

func profileResponse(p repo.Profile) ProfileResponse {
	return ProfileResponse{
		UserID: p.UserID,
		Name:   p.Name,
		Email:  p.Email,
		Phone:  p.Phone,
		Roles:  nonNilSlice(p.Roles),
	}
}

func membershipResponse(st engine.MembershipState) MembershipResponse {
	return MembershipResponse{GroupID: st.GroupID, Member: st.Member, Role: st.Role, Members: st.Members}
}

func eventResponse(e events.Event) EventResponse {
	payload := map[string]any(e.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
