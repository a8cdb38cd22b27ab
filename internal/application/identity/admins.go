package identity

import (
	"context"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/api/users"
	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/infrastructure/cache"
)

type activeFlag struct {
	IsActive bool `json:"is_active"`
}

// Users manages admin accounts and invitations
type Users struct {
	api    *users.API
	runner *optimistic.Runner

	Admins      *crud.Collection[identity.AdminUser, api.None, identity.AdminUserUpdate]
	Invitations *crud.Collection[identity.AdminInvitation, identity.InvitationCreate, api.None]
}

// NewUsers wires the users app client to the runner's cache
func NewUsers(a *users.API, runner *optimistic.Runner) *Users {
	return &Users{
		api:         a,
		runner:      runner,
		Admins:      crud.New(a.Admins, runner, "Admin user"),
		Invitations: crud.New(a.Invitations, runner, "Invitation"),
	}
}

// UpdateAdmin patches an admin account
func (u *Users) UpdateAdmin(ctx context.Context, id int64, in identity.AdminUserUpdate) (*identity.AdminUser, error) {
	return u.Admins.Update(ctx, id, in)
}

// ActivateAdmin re-enables an admin account
func (u *Users) ActivateAdmin(ctx context.Context, id int64) (*identity.AdminUser, error) {
	return u.Admins.Run(ctx, id, crud.Action[identity.AdminUser]{
		Verb:       "activate",
		Optimistic: activeFlag{IsActive: true},
		Call: func(ctx context.Context) (*identity.AdminUser, error) {
			return u.api.ActivateAdmin(ctx, id)
		},
		SuccessMessage: "Admin user activated",
	})
}

// DeactivateAdmin disables an admin account
func (u *Users) DeactivateAdmin(ctx context.Context, id int64) (*identity.AdminUser, error) {
	return u.Admins.Run(ctx, id, crud.Action[identity.AdminUser]{
		Verb:       "deactivate",
		Optimistic: activeFlag{IsActive: false},
		Call: func(ctx context.Context) (*identity.AdminUser, error) {
			return u.api.DeactivateAdmin(ctx, id)
		},
		SuccessMessage: "Admin user deactivated",
	})
}

// Invite sends an invitation email
func (u *Users) Invite(ctx context.Context, in identity.InvitationCreate) (*identity.AdminInvitation, error) {
	return u.Invitations.Create(ctx, in)
}

// ResendInvitation emails a pending invitation again
func (u *Users) ResendInvitation(ctx context.Context, id int64) (*identity.AdminInvitation, error) {
	return u.Invitations.Run(ctx, id, crud.Action[identity.AdminInvitation]{
		Verb: "resend",
		Call: func(ctx context.Context) (*identity.AdminInvitation, error) {
			return u.api.ResendInvitation(ctx, id)
		},
		SuccessMessage: "Invitation resent",
	})
}

// RevokeInvitation deletes a pending invitation
func (u *Users) RevokeInvitation(ctx context.Context, id int64) error {
	return u.Invitations.Delete(ctx, id)
}

// AcceptInvitation completes registration for an invited admin. The new
// account appears in the admin list and the invitation changes state.
func (u *Users) AcceptInvitation(ctx context.Context, req identity.InvitationAccept) (*identity.AdminUser, error) {
	return optimistic.Execute(ctx, u.runner, optimistic.Mutation[*identity.AdminUser]{
		Name:     users.ResourceInvitations + ".accept",
		Payload:  req,
		Affected: []cache.Key{cache.ResourceKey(users.ResourceInvitations), cache.AllLists(users.ResourceAdmins)},
		Request: func(ctx context.Context) (*identity.AdminUser, error) {
			return u.api.AcceptInvitation(ctx, req)
		},
		Detail: func(out *identity.AdminUser) (cache.Key, bool) {
			if out == nil {
				return cache.Key{}, false
			}
			return u.Admins.DetailKey(out.ID), true
		},
		SuccessMessage: "Invitation accepted",
		FailureMessage: "Failed to accept invitation",
	})
}
