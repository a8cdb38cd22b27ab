// Package auth maps the backend authentication endpoints.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/infrastructure/httpclient"
)

// Default endpoint paths
const (
	DefaultLoginPath = "/auth/login/"
	MePath           = "/auth/me/"
)

// API is the authentication client
type API struct {
	transport api.Transport
	loginPath string
}

// New creates the authentication client; an empty loginPath uses the default
func New(t api.Transport, loginPath string) *API {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &API{transport: t, loginPath: loginPath}
}

// Login exchanges credentials for a token pair and the user record
func (a *API) Login(ctx context.Context, creds identity.Credentials) (*identity.LoginResult, error) {
	var out identity.LoginResult
	if err := a.transport.DoJSON(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      a.loginPath,
		Body:      creds,
		Anonymous: true,
	}, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &out, nil
}

// Me returns the signed-in user
func (a *API) Me(ctx context.Context) (*identity.User, error) {
	var out identity.User
	if err := a.transport.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   MePath,
	}, &out); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &out, nil
}
