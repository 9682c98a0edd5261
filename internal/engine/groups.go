package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hostflow/internal/domain"
	"hostflow/internal/engine/auth"
	"hostflow/internal/events"
	"hostflow/internal/repo"
)

// MembershipState is the caller's view of one group.
type MembershipState struct {
	GroupID string
	Member  bool
	Role    string
	Members int
}

func (e Engine) group(ctx context.Context, actor auth.Actor, groupID string) (repo.Entity, error) {
	ent, err := e.Get(ctx, actor, groupID)
	if err != nil {
		return repo.Entity{}, err
	}
	if ent.Kind != string(domain.KindGroup) {
		return repo.Entity{}, ErrNotGroup
	}
	return ent.Entity, nil
}

// Join adds actor to the group.
func (e Engine) Join(ctx context.Context, actor auth.Actor, groupID string) (MembershipState, error) {
	ent, err := e.group(ctx, actor, groupID)
	if err != nil {
		return MembershipState{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MembershipState{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetMembershipTx(ctx, tx, groupID, actor.ID); err == nil {
		return MembershipState{}, ErrAlreadyMember
	} else if !errors.Is(err, repo.ErrNotFound) {
		return MembershipState{}, err
	}
	if err := e.Repo.InsertMembershipTx(ctx, tx, repo.Membership{GroupID: groupID, UserID: actor.ID, Role: repo.RoleMember, CreatedAt: e.now()}); err != nil {
		return MembershipState{}, err
	}
	if err := e.Events.Append(ctx, tx, events.GroupJoined, ent.Kind, groupID, actor.ID, nil); err != nil {
		return MembershipState{}, err
	}
	if err := tx.Commit(); err != nil {
		return MembershipState{}, err
	}
	e.log().Info("group joined", zap.String("group", groupID), zap.String("user", actor.ID))
	return e.Membership(ctx, actor, groupID)
}

// Leave removes actor from the group. Owners cannot leave.
func (e Engine) Leave(ctx context.Context, actor auth.Actor, groupID string) (MembershipState, error) {
	ent, err := e.group(ctx, actor, groupID)
	if err != nil {
		return MembershipState{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MembershipState{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMembershipTx(ctx, tx, groupID, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return MembershipState{}, ErrNotMember
	}
	if err != nil {
		return MembershipState{}, err
	}
	if m.Role == repo.RoleOwner {
		return MembershipState{}, ErrOwnerCannotLeave
	}
	if err := e.Repo.DeleteMembershipTx(ctx, tx, groupID, actor.ID); err != nil {
		return MembershipState{}, err
	}
	if err := e.Events.Append(ctx, tx, events.GroupLeft, ent.Kind, groupID, actor.ID, nil); err != nil {
		return MembershipState{}, err
	}
	if err := tx.Commit(); err != nil {
		return MembershipState{}, err
	}
	e.log().Info("group left", zap.String("group", groupID), zap.String("user", actor.ID))
	return e.Membership(ctx, actor, groupID)
}

// Membership reports whether actor belongs to the group.
func (e Engine) Membership(ctx context.Context, actor auth.Actor, groupID string) (MembershipState, error) {
	if _, err := e.group(ctx, actor, groupID); err != nil {
		return MembershipState{}, err
	}
	st := MembershipState{GroupID: groupID}
	m, err := e.Repo.GetMembership(ctx, groupID, actor.ID)
	switch {
	case err == nil:
		st.Member, st.Role = true, m.Role
	case !errors.Is(err, repo.ErrNotFound):
		return MembershipState{}, err
	}
	if st.Members, err = e.Repo.CountMembers(ctx, groupID); err != nil {
		return MembershipState{}, err
	}
	return st, nil
}
