package domain

import (
	"fmt"
	"strings"
)

// Kind tags the contribution a workflow creates.
type Kind string

const (
	KindProperty       Kind = "property"
	KindEvent          Kind = "event"
	KindGroup          Kind = "group"
	KindJobApplication Kind = "job_application"
)

// Kinds lists every supported contribution kind.
var Kinds = []Kind{KindProperty, KindEvent, KindGroup, KindJobApplication}

// ParseKind normalizes and validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown contribution kind %q", s)
}

// Status is the moderation status of a remote entity.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// ReadOnly reports whether the entity rejects further edits.
func (s Status) ReadOnly() bool { return s == StatusApproved }

// EntityDraft is the server-assigned identity of the entity being created.
type EntityDraft struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Empty reports whether no identifier has been assigned yet.
func (d EntityDraft) Empty() bool { return d.ID == "" }

// File is a raw file handle held in memory until upload.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// MediaAsset pairs a preview URL with an optional local file. File is nil
// for assets hydrated from a remote entity; only assets with a file are uploaded.
type MediaAsset struct {
	PreviewURL string `json:"preview_url"`
	RemoteURL  string `json:"remote_url,omitempty"`
	File       *File  `json:"-"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// Pending reports whether the asset still needs uploading.
func (a MediaAsset) Pending() bool { return a.File != nil }

// Profile is the signed-in user's public profile.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Session is the auth context a workflow is built with.
type Session struct {
	UserID  string   `json:"user_id"`
	Token   string   `json:"-"`
	Roles   []string `json:"roles,omitempty"`
	Profile Profile  `json:"profile"`
}

// HasRole reports whether the session carries role.
func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
