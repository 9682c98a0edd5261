package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostflow/internal/domain"
	hostflowsdk "hostflow/sdk/go"
)

type stubProfiles struct {
	p     hostflowsdk.Profile
	err   error
	calls int
}

func (s *stubProfiles) Me(ctx context.Context) (hostflowsdk.Profile, error) {
	s.calls++
	return s.p, s.err
}

func TestResolveSession(t *testing.T) {
	src := &stubProfiles{p: hostflowsdk.Profile{UserID: "u1", Name: "Asha", Email: "a@x.io", Phone: "+919876543210", Roles: []string{"host"}}}
	s, err := ResolveSession(context.Background(), src, "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.Session{
		UserID:  "u1",
		Token:   "tok",
		Roles:   []string{"host"},
		Profile: domain.Profile{Name: "Asha", Email: "a@x.io", Phone: "+919876543210"},
	}, s)
	assert.True(t, s.HasRole("host"))
	assert.Equal(t, 1, src.calls)
}

func TestResolveSessionNeedsToken(t *testing.T) {
	src := &stubProfiles{}
	_, err := ResolveSession(context.Background(), src, " ")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Zero(t, src.calls)
}

func TestResolveSessionWrapsBackendError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ResolveSession(context.Background(), &stubProfiles{err: boom}, "tok")
	assert.ErrorIs(t, err, boom)
}
