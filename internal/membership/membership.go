// Package membership keeps optimistic join/leave state reconciled with the backend.
package membership

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hostflow/internal/feedback"
	hostflowsdk "hostflow/sdk/go"
)

// Reconciled is a server value with an optional local override.
// Value returns the override while one is set; Refresh clears it.
type Reconciled[T any] struct {
	server   T
	override *T
}

func (r *Reconciled[T]) Value() T {
	if r.override != nil {
		return *r.override
	}
	return r.server
}

func (r *Reconciled[T]) Override(v T) { r.override = &v }

func (r *Reconciled[T]) ClearOverride() { r.override = nil }

// Overridden reports whether a local override is pending.
func (r *Reconciled[T]) Overridden() bool { return r.override != nil }

// Refresh stores a fresh server value and drops any override.
func (r *Reconciled[T]) Refresh(server T) {
	r.server = server
	r.override = nil
}

// Backend is the subset of the API the tracker needs.
type Backend interface {
	JoinGroup(ctx context.Context, groupID string) (hostflowsdk.Membership, error)
	LeaveGroup(ctx context.Context, groupID string) (hostflowsdk.Membership, error)
	Membership(ctx context.Context, groupID string) (hostflowsdk.Membership, error)
}

// Tracker shows the caller's membership of one group.
type Tracker struct {
	GroupID string
	backend Backend
	member  Reconciled[bool]
	log     *zap.Logger
}

func NewTracker(groupID string, b Backend, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{GroupID: groupID, backend: b, log: log}
}

// Member is the value to render.
func (t *Tracker) Member() bool { return t.member.Value() }

// Pending reports an optimistic value not yet confirmed by a refetch.
func (t *Tracker) Pending() bool { return t.member.Overridden() }

// Refresh refetches membership and clears any override.
func (t *Tracker) Refresh(ctx context.Context) error {
	m, err := t.backend.Membership(ctx, t.GroupID)
	if err != nil {
		return fmt.Errorf("fetch membership: %w", err)
	}
	t.member.Refresh(m.Member)
	return nil
}

func (t *Tracker) Join(ctx context.Context) error {
	return t.apply(ctx, true, feedback.CodeAlreadyMember, t.backend.JoinGroup)
}

func (t *Tracker) Leave(ctx context.Context) error {
	return t.apply(ctx, false, feedback.CodeNotMember, t.backend.LeaveGroup)
}

// apply sets the override, calls the backend and keeps the override on
// success or when the backend reports the target state already holds.
func (t *Tracker) apply(ctx context.Context, want bool, confirmCode string, call func(context.Context, string) (hostflowsdk.Membership, error)) error {
	t.member.Override(want)
	_, err := call(ctx, t.GroupID)
	if err == nil {
		return nil
	}
	if feedback.Code(err) == confirmCode {
		t.log.Debug("membership already in target state", zap.String("group", t.GroupID), zap.Bool("member", want))
		return nil
	}
	t.member.ClearOverride()
	t.log.Warn("membership change failed", zap.String("group", t.GroupID), zap.Bool("member", want), zap.Error(err))
	return err
}
