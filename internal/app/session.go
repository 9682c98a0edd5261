// Package app resolves the signed-in session once so workflows never query
// auth state mid-flow.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hostflow/internal/domain"
	hostflowsdk "hostflow/sdk/go"
)

var ErrNoToken = errors.New("no API token; run hf login or set HOSTFLOW_API_TOKEN")

// ProfileSource is the part of the API that identifies the caller.
type ProfileSource interface {
	Me(ctx context.Context) (hostflowsdk.Profile, error)
}

// ResolveSession fetches the caller's profile and freezes it into a Session.
func ResolveSession(ctx context.Context, src ProfileSource, token string) (domain.Session, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Session{}, ErrNoToken
	}
	p, err := src.Me(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve session: %w", err)
	}
	return domain.Session{
		UserID: p.UserID,
		Token:  token,
		Roles:  p.Roles,
		Profile: domain.Profile{
			Name:  p.Name,
			Email: p.Email,
			Phone: p.Phone,
		},
	}, nil
}

// Login mints a sandbox token for p on c and resolves the resulting session.
func Login(ctx context.Context, c *hostflowsdk.Client, p hostflowsdk.Profile) (domain.Session, error) {
	token, err := c.DevLogin(ctx, p)
	if err != nil {
		return domain.Session{}, fmt.Errorf("dev login: %w", err)
	}
	return ResolveSession(ctx, c, token)
}
