package identity

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/erp/crm/internal/api/auth"
	"github.com/erp/crm/internal/api/users"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/cache"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/erp/crm/internal/testutil/fakebackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	adminsPath      = "/users/admins/"
	invitationsPath = "/users/invitations/"
)

type env struct {
	backend  *fakebackend.Backend
	auth     *fakebackend.Auth
	client   *httpclient.Client
	store    *cache.Store
	notes    *optimistic.Recorder
	sessions *Sessions
	users    *Users
	logs     *observer.ObservedLogs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := fakebackend.New(t)
	a := b.EnableAuth("ada@example.com", "s3cret-pass", fakebackend.Record{
		"id": 11, "email": "ada@example.com", "first_name": "Ada", "last_name": "Lovelace", "role": "admin",
	})
	b.Collection(adminsPath,
		fakebackend.Record{"id": 11, "email": "ada@example.com", "role": "admin", "is_active": true, "date_joined": "2024-01-02T10:00:00Z"},
		fakebackend.Record{"id": 12, "email": "bob@example.com", "role": "staff", "is_active": true, "date_joined": "2024-03-04T10:00:00Z"},
	)
	b.Collection(invitationsPath,
		fakebackend.Record{"id": 1, "email": "eve@example.com", "role": "staff", "status": "pending", "expires_at": "2030-01-01T00:00:00Z", "created_at": "2029-12-25T00:00:00Z"},
	)
	b.Public(http.MethodPost, invitationsPath+"accept/")

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	client := b.Client(t, httpclient.WithTokenStore(httpclient.NewMemoryStore(httpclient.Session{})))
	store := cache.NewStore()
	notes := &optimistic.Recorder{}
	runner := optimistic.NewRunner(store, optimistic.WithNotifier(notes))

	return &env{
		backend:  b,
		auth:     a,
		client:   client,
		store:    store,
		notes:    notes,
		sessions: NewSessions(client, auth.New(client, ""), store, log),
		users:    NewUsers(users.New(client), runner),
		logs:     logs,
	}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, err := e.sessions.Login(context.Background(), identity.Credentials{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, cache.Put(e.store, cache.DetailKey("admins", 99), map[string]any{"id": 99}))

	user, err := e.sessions.Login(ctx, identity.Credentials{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.FullName())
	assert.Equal(t, httpclient.StateAuthenticated, e.client.State(ctx))
	assert.Equal(t, 0, e.store.Len(), "cache from a previous session dropped")

	session, err := e.client.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.auth.Access(), session.Access)
	assert.NotEmpty(t, session.Refresh)
	assert.JSONEq(t, `{"id":11,"email":"ada@example.com","first_name":"Ada","last_name":"Lovelace","role":"admin"}`, string(session.User))

	entries := e.logs.FilterMessage("signed in").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "11", entries[0].ContextMap()["user_id"])
}

func TestLogin_Failures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.sessions.Login(ctx, identity.Credentials{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	assert.Equal(t, 0, e.backend.Calls(http.MethodPost, fakebackend.LoginPath))

	_, err = e.sessions.Login(ctx, identity.Credentials{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindUnauthenticated))
	assert.Equal(t, "No active account found with the given credentials", shared.ErrorMessage(err, ""))
	assert.Equal(t, httpclient.StateUnauthenticated, e.client.State(ctx))
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	_, err := e.users.Admins.List(ctx, shared.NewListParams(1))
	require.NoError(t, err)
	require.Equal(t, 1, e.store.Len())

	require.NoError(t, e.sessions.Logout(ctx))
	assert.Equal(t, 0, e.store.Len())
	assert.Equal(t, httpclient.StateUnauthenticated, e.client.State(ctx))

	_, err = e.sessions.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestWhoAmI(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	anon, err := e.sessions.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, httpclient.StateUnauthenticated, anon.State)
	assert.Nil(t, anon.User)

	e.login(t)
	me, err := e.sessions.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, httpclient.StateAuthenticated, me.State)
	assert.Equal(t, int64(11), me.UserID)
	require.NotNil(t, me.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *me.ExpiresAt, time.Minute)
	require.NotNil(t, me.User)
	assert.Equal(t, "ada@example.com", me.User.Email)
}

func TestCurrentUser_FetchesWhenSessionHasNoUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	session, err := e.client.Session(ctx)
	require.NoError(t, err)
	session.User = nil
	require.NoError(t, e.client.SetSession(ctx, session))

	u, err := e.sessions.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), u.ID)
	assert.Equal(t, 1, e.backend.Calls(http.MethodGet, fakebackend.MePath))

	_, err = e.sessions.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.backend.Calls(http.MethodGet, fakebackend.MePath), "user persisted after first fetch")
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)
	issued := e.auth.Issued()

	e.auth.Expire()
	page, err := e.users.Admins.List(ctx, shared.NewListParams(1))
	require.NoError(t, err)
	assert.Len(t, page.Data.Results, 2)

	assert.Equal(t, issued+1, e.auth.Issued())
	assert.Equal(t, 1, e.backend.Calls(http.MethodPost, fakebackend.RefreshPath))
	assert.Equal(t, 2, e.backend.Calls(http.MethodGet, adminsPath))
}

func TestDeactivateAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	e.backend.OnAction(adminsPath, "deactivate", func(rec, _ fakebackend.Record) (fakebackend.Record, int) {
		if rec["id"] == 11 {
			return fakebackend.Record{"detail": "You cannot deactivate yourself."}, http.StatusForbidden
		}
		rec["is_active"] = false
		return rec, http.StatusOK
	})
	listKey := e.users.Admins.ListKey(shared.NewListParams(1))

	admin, err := e.users.DeactivateAdmin(ctx, 12)
	require.NoError(t, err)
	assert.False(t, admin.IsActive)

	page, err := e.users.Admins.List(ctx, shared.NewListParams(1))
	require.NoError(t, err)
	require.Len(t, page.Data.Results, 2)
	assert.False(t, page.Data.Results[1].IsActive)
	before, _ := e.store.Peek(listKey)

	_, err = e.users.DeactivateAdmin(ctx, 11)
	require.Error(t, err)
	last, _ := e.notes.Last()
	assert.Equal(t, optimistic.Notification{Level: "error", Message: "You cannot deactivate yourself."}, last)

	after, _ := e.store.Peek(listKey)
	assert.Equal(t, string(before.Data), string(after.Data), "list rolled back to its state before the failed call")
}

func TestInvitations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	resent := 0
	e.backend.OnAction(invitationsPath, "resend", func(rec, _ fakebackend.Record) (fakebackend.Record, int) {
		resent++
		return rec, http.StatusOK
	})
	e.backend.OnAction(invitationsPath, "accept", func(_, body fakebackend.Record) (fakebackend.Record, int) {
		if body["token"] != "tok-1" {
			return fakebackend.Record{"token": []string{"Invalid or expired invitation."}}, http.StatusBadRequest
		}
		return fakebackend.Record{"id": 13, "email": "eve@example.com", "first_name": body["first_name"], "last_name": body["last_name"], "role": "staff", "is_active": true}, http.StatusOK
	})

	inv, err := e.users.Invite(ctx, identity.InvitationCreate{Email: "zed@example.com", Role: identity.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inv.ID)
	assert.Equal(t, 2, e.backend.Len(invitationsPath))

	_, err = e.users.Invite(ctx, identity.InvitationCreate{Email: "root@example.com", Role: identity.RoleSuperAdmin})
	require.Error(t, err, "superadmins cannot be invited")

	_, err = e.users.ResendInvitation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, resent)

	require.NoError(t, e.users.RevokeInvitation(ctx, 2))
	assert.Equal(t, 1, e.backend.Len(invitationsPath))

	_, err = e.users.AcceptInvitation(ctx, identity.InvitationAccept{Token: "bad", FirstName: "Eve", LastName: "Adams", Password: "long-enough"})
	require.Error(t, err)
	last, _ := e.notes.Last()
	assert.Equal(t, "token: Invalid or expired invitation.", last.Message)

	admin, err := e.users.AcceptInvitation(ctx, identity.InvitationAccept{Token: "tok-1", FirstName: "Eve", LastName: "Adams", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, int64(13), admin.ID)
	_, ok := e.store.Peek(e.users.Admins.DetailKey(13))
	assert.True(t, ok)
}
