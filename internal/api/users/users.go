// Package users maps the backend users app: admin accounts and invitations.
package users

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/infrastructure/httpclient"
)

// Cache resource names
const (
	ResourceAdmins      = "admins"
	ResourceInvitations = "invitations"
)

// API is the users app client
type API struct {
	transport api.Transport

	Admins      *api.Resource[identity.AdminUser, api.None, identity.AdminUserUpdate]
	Invitations *api.Resource[identity.AdminInvitation, identity.InvitationCreate, api.None]
}

// New creates the users app client
func New(t api.Transport) *API {
	return &API{
		transport:   t,
		Admins:      api.NewResource[identity.AdminUser, api.None, identity.AdminUserUpdate](t, ResourceAdmins, "/users/admins/"),
		Invitations: api.NewResource[identity.AdminInvitation, identity.InvitationCreate, api.None](t, ResourceInvitations, "/users/invitations/"),
	}
}

// ActivateAdmin re-enables an admin account
func (a *API) ActivateAdmin(ctx context.Context, id int64) (*identity.AdminUser, error) {
	return api.Action[identity.AdminUser](ctx, a.transport, a.Admins.ActionPath(id, "activate"), struct{}{})
}

// DeactivateAdmin disables an admin account without deleting it
func (a *API) DeactivateAdmin(ctx context.Context, id int64) (*identity.AdminUser, error) {
	return api.Action[identity.AdminUser](ctx, a.transport, a.Admins.ActionPath(id, "deactivate"), struct{}{})
}

// ResendInvitation emails a pending invitation again
func (a *API) ResendInvitation(ctx context.Context, id int64) (*identity.AdminInvitation, error) {
	return api.Action[identity.AdminInvitation](ctx, a.transport, a.Invitations.ActionPath(id, "resend"), struct{}{})
}

// AcceptInvitation completes registration with the emailed token. The caller
// is not signed in, so the request is anonymous.
func (a *API) AcceptInvitation(ctx context.Context, req identity.InvitationAccept) (*identity.AdminUser, error) {
	var out identity.AdminUser
	if err := a.transport.DoJSON(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      a.Invitations.Path() + "accept/",
		Body:      req,
		Anonymous: true,
	}, &out); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	return &out, nil
}
