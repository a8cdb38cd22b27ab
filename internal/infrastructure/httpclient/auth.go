package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/crm/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// State is the position of the client in the authentication state machine
type State string

const (
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	StateUnauthenticated State = "unauthenticated"
)

// ErrNoRefreshToken is returned when a 401 arrives and there is nothing to refresh with
var ErrNoRefreshToken = errors.New("no refresh token available")

// LoginRedirector is told when the session has ended and the user must sign in again
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context, route string)
}

// RedirectFunc adapts a function to LoginRedirector
type RedirectFunc func(ctx context.Context, route string)

// RedirectToLogin implements LoginRedirector
func (f RedirectFunc) RedirectToLogin(ctx context.Context, route string) {
	f(ctx, route)
}

// NopRedirector ignores redirects
type NopRedirector struct{}

// RedirectToLogin implements LoginRedirector
func (NopRedirector) RedirectToLogin(context.Context, string) {}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// State reports the current authentication state
func (c *Client) State(ctx context.Context) State {
	c.mu.RLock()
	refreshing := c.refreshing
	c.mu.RUnlock()
	if refreshing {
		return StateRefreshing
	}

	session, err := c.tokens.Load(ctx)
	if err != nil || session.Access == "" {
		return StateUnauthenticated
	}
	return StateAuthenticated
}

// Session returns the persisted session
func (c *Client) Session(ctx context.Context) (Session, error) {
	return c.tokens.Load(ctx)
}

// SetSession stores a freshly issued session, typically after login
func (c *Client) SetSession(ctx context.Context, s Session) error {
	if err := c.tokens.Save(ctx, s); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ClearSession forgets all tokens without redirecting
func (c *Client) ClearSession(ctx context.Context) error {
	if err := c.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// recoverSession runs after a 401. It returns nil when the original request
// should be retried. used is the access token the failed request carried.
func (c *Client) recoverSession(ctx context.Context, used string) error {
	session, err := c.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	// Another request already refreshed while this one was in flight
	if session.Access != "" && used != "" && session.Access != used {
		return nil
	}

	if session.Refresh == "" {
		c.metrics.TokenRefresh(telemetry.OutcomeSkipped)
		c.expire(ctx)
		return ErrNoRefreshToken
	}

	_, err, shared := c.refreshes.Do(session.Refresh, func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx), session)
	})
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	return err
}

// refresh exchanges the refresh token for a new access token. On failure the
// session is cleared and the user is sent to the login route.
func (c *Client) refresh(ctx context.Context, session Session) error {
	c.setRefreshing(true)
	defer c.setRefreshing(false)

	ctx, span := telemetry.StartRefresh(ctx)
	defer span.End()

	var out refreshResponse
	err := c.DoJSON(ctx, Request{
		Method:    http.MethodPost,
		Path:      c.refreshPath,
		Body:      refreshRequest{Refresh: session.Refresh},
		Anonymous: true,
	}, &out)
	if err == nil && out.Access == "" {
		err = errors.New("refresh response carried no access token")
	}
	if err != nil {
		c.metrics.TokenRefresh(telemetry.OutcomeFailure)
		telemetry.Finish(span, err)
		c.logger.Info("token refresh failed, ending session", zap.Error(err))
		c.expire(ctx)
		return fmt.Errorf("refreshing access token: %w", err)
	}

	session.Access = out.Access
	if err := c.tokens.Save(ctx, session); err != nil {
		c.metrics.TokenRefresh(telemetry.OutcomeFailure)
		telemetry.Finish(span, err)
		return fmt.Errorf("saving refreshed session: %w", err)
	}

	c.metrics.TokenRefresh(telemetry.OutcomeSuccess)
	telemetry.Finish(span, nil)
	c.logger.Debug("access token refreshed")
	return nil
}

func (c *Client) expire(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear session", zap.Error(err))
	}
	c.redirector.RedirectToLogin(ctx, c.loginRoute)
}

func (c *Client) setRefreshing(v bool) {
	c.mu.Lock()
	c.refreshing = v
	c.mu.Unlock()
}
