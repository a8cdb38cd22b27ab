// Package identity synchronizes the signed-in session, admin users and
// admin invitations.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/erp/crm/internal/api/auth"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/cache"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/erp/crm/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ErrNotSignedIn is returned when an operation needs a session and there is none
var ErrNotSignedIn = errors.New("not signed in")

// SessionStore is the part of the HTTP client that owns the persisted session
type SessionStore interface {
	Session(ctx context.Context) (httpclient.Session, error)
	SetSession(ctx context.Context, s httpclient.Session) error
	ClearSession(ctx context.Context) error
	State(ctx context.Context) httpclient.State
}

// Sessions signs users in and out
type Sessions struct {
	store  SessionStore
	auth   *auth.API
	cache  cache.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewSessions creates the session service. Signing out clears c.
func NewSessions(store SessionStore, a *auth.API, c cache.Writer, l *zap.Logger) *Sessions {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sessions{store: store, auth: a, cache: c, logger: l, now: time.Now}
}

// Login exchanges credentials for a session and persists the tokens together
// with the user record.
func (s *Sessions) Login(ctx context.Context, creds identity.Credentials) (*identity.User, error) {
	if err := shared.Validate(creds); err != nil {
		return nil, err
	}

	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	user, err := json.Marshal(res.User)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.SetSession(ctx, httpclient.Session{
		Access:  res.Access,
		Refresh: res.Refresh,
		User:    user,
	}); err != nil {
		return nil, err
	}

	// Cached data may belong to a previous account
	s.cache.Clear()

	ctx = logger.WithUserID(ctx, strconv.FormatInt(res.User.ID, 10))
	logger.Enrich(ctx, s.logger).Info("signed in", zap.String("email", res.User.Email))
	return &res.User, nil
}

// Logout forgets the session and every cached record
func (s *Sessions) Logout(ctx context.Context) error {
	if err := s.store.ClearSession(ctx); err != nil {
		return err
	}
	n := s.cache.Clear()
	s.logger.Info("signed out", zap.Int("cache_entries_dropped", n))
	return nil
}

// CurrentUser returns the persisted user, asking the server when the session
// carries none.
func (s *Sessions) CurrentUser(ctx context.Context) (*identity.User, error) {
	session, err := s.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session.Access == "" {
		return nil, ErrNotSignedIn
	}

	if len(session.User) > 0 && string(session.User) != "null" {
		var u identity.User
		if err := json.Unmarshal(session.User, &u); err == nil {
			return &u, nil
		}
		s.logger.Warn("stored user is unreadable, fetching from server")
	}

	u, err := s.auth.Me(ctx)
	if err != nil {
		return nil, err
	}

	// Reload: the request may have refreshed the access token
	session, err = s.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session.User, err = json.Marshal(u); err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.SetSession(ctx, session); err != nil {
		return nil, err
	}
	return u, nil
}

// WhoAmI describes the signed-in session
type WhoAmI struct {
	State     httpclient.State `json:"state" yaml:"state"`
	User      *identity.User   `json:"user,omitempty" yaml:"user,omitempty"`
	UserID    int64            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	ExpiresIn string           `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
}

// WhoAmI reports the session state, user and access token claims
func (s *Sessions) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	out := &WhoAmI{State: s.store.State(ctx)}
	if out.State == httpclient.StateUnauthenticated {
		return out, nil
	}

	session, err := s.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if claims, err := httpclient.ParseClaims(session.Access); err == nil {
		out.UserID = claims.UserID
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.Time
			out.ExpiresAt = &exp
			out.ExpiresIn = claims.ExpiresIn(s.now()).Round(time.Second).String()
		}
	} else {
		s.logger.Debug("access token is not a JWT", zap.Error(err))
	}

	if out.User, err = s.CurrentUser(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
