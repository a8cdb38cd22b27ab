package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/crm/internal/domain/catalog"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/testutil/fakebackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	backend *fakebackend.Backend
	auth    *fakebackend.Auth
	config  string
}

type result struct {
	code   int
	stdout string
	stderr string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	b := fakebackend.New(t)
	a := b.EnableAuth("ada@example.com", "s3cret-pass", fakebackend.Record{
		"id": 11, "email": "ada@example.com", "first_name": "Ada", "last_name": "Lovelace", "role": "admin",
	})
	b.Collection("/products/discounts/",
		fakebackend.Record{"id": 7, "code": "SUMMER", "name": "Summer sale", "discount_type": "percentage", "value": "10.00", "is_active": true, "current_uses": 0},
		fakebackend.Record{"id": 8, "code": "WINTER", "name": "Winter sale", "discount_type": "fixed", "value": "25.00", "is_active": false, "current_uses": 3},
	)
	b.Collection("/payments/payments/",
		fakebackend.Record{"id": 1, "event": 42, "amount": "100.00", "status": "pending", "due_date": "2025-05-01"},
	)
	b.Collection("/sales/quotes/",
		fakebackend.Record{"id": 1, "event": 42, "quote_number": "Q-0001", "version": 1, "status": "draft", "total_amount": "1200.00"},
	)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[api]
base_url = %q

[session]
store = "file"
path = %q

[log]
level = "error"
`, b.URL(), filepath.Join(dir, "session.json"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return &cli{backend: b, auth: a, config: path}
}

func (c *cli) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-config", c.config}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	res := c.run(t, "s3cret-pass\n", "login", "ada@example.com")
	require.Equal(t, 0, res.code, res.stderr)
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "USAGE:")
	assert.Contains(t, stderr.String(), "discounts update")
	assert.Empty(t, stdout.String())
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "crmctl dev (commit unknown, built unknown)\n", stdout.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	c := newCLI(t)
	res := c.run(t, "", "payments", "explode")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "payments explode"`)
}

func TestRun_UnknownOutputFormat(t *testing.T) {
	c := newCLI(t)
	res := c.run(t, "", "-o", "xml", "whoami")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unsupported output format "xml"`)
}

func TestLogin(t *testing.T) {
	c := newCLI(t)

	res := c.run(t, "wrong\n", "login", "ada@example.com")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "error: No active account found with the given credentials\n", res.stderr)

	res = c.run(t, "s3cret-pass\n", "login", "ada@example.com")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "ok: Signed in as Ada Lovelace")

	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &user))
	assert.Equal(t, "ada@example.com", user["email"])
}

func TestWhoAmI_YAML(t *testing.T) {
	c := newCLI(t)

	res := c.run(t, "", "-o", "yaml", "whoami")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "state: unauthenticated\n", res.stdout)

	c.login(t)
	res = c.run(t, "", "-o", "yaml", "whoami")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "state: authenticated\n")
	assert.Contains(t, res.stdout, "user_id: 11\n")
	assert.Contains(t, res.stdout, "email: ada@example.com\n")
}

func TestLogout(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	res := c.run(t, "", "logout")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "ok: Signed out\n", res.stderr)
	assert.Empty(t, res.stdout)

	res = c.run(t, "", "discounts", "list")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "crmctl login")
	assert.Equal(t, 0, c.backend.Calls(http.MethodPost, fakebackend.RefreshPath), "no refresh token to try")
}

func TestDiscounts_ListFilterAndUpdate(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	res := c.run(t, "", "discounts", "list", "is_active=true")
	require.Equal(t, 0, res.code, res.stderr)
	var page shared.Page[catalog.Discount]
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "SUMMER", page.Results[0].Code)

	res = c.run(t, "", "discounts", "update", "7", `{"is_active":false}`)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "ok: Discount updated successfully\n", res.stderr)
	rec, ok := c.backend.Record("/products/discounts/", 7)
	require.True(t, ok)
	assert.Equal(t, false, rec["is_active"])

	var d catalog.Discount
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &d))
	assert.False(t, d.IsActive)
}

func TestPayload_ReadFromStdin(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	res := c.run(t, `{"name":"Summer 2026"}`, "discounts", "update", "7", "-")
	require.Equal(t, 0, res.code, res.stderr)
	rec, ok := c.backend.Record("/products/discounts/", 7)
	require.True(t, ok)
	assert.Equal(t, "Summer 2026", rec["name"])
}

func TestPayload_Rejected(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown field", []string{"discounts", "update", "7", `{"bogus":1}`}, `unknown field "bogus"`},
		{"bad id", []string{"discounts", "update", "x", `{}`}, `invalid id "x"`},
		{"missing payload", []string{"payments", "create"}, "expected a single <json> argument"},
		{"validation", []string{"payments", "create", `{"event":42,"amount":"-5","due_date":"2025-06-01"}`}, "error: amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.run(t, "", tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Empty(t, res.stdout)
		})
	}
	assert.Equal(t, 0, c.backend.Calls(http.MethodPost, "/payments/payments/"))
	assert.Equal(t, 0, c.backend.Calls(http.MethodPatch, "/products/discounts/7/"))
}

func TestPayments_CreateAndDelete(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	res := c.run(t, "", "payments", "create", `{"event":42,"amount":"150.00","due_date":"2025-06-01"}`)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "ok: Payment created successfully\n", res.stderr)
	assert.Equal(t, 2, c.backend.Len("/payments/payments/"))

	res = c.run(t, "", "payments", "delete", "1")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "ok: Payment deleted successfully\n", res.stderr)
	assert.Empty(t, res.stdout)
	assert.Equal(t, 1, c.backend.Len("/payments/payments/"))
}

func TestMutationFailure_ReportedOnce(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	c.backend.FailNext(http.MethodPost, "/sales/quotes/1/send/", http.StatusInternalServerError, nil)

	res := c.run(t, "", "quotes", "send", "1")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "error: Failed to send quote\n", res.stderr)
}

func TestReadFailure_PrintsAlert(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	res := c.run(t, "", "discounts", "get", "99")
	assert.Equal(t, 1, res.code)
	assert.True(t, strings.HasPrefix(res.stderr, "error: "), res.stderr)
}

func TestWatch_RequiresBroadcast(t *testing.T) {
	c := newCLI(t)
	res := c.run(t, "", "watch", "payments")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "cache.broadcast_enabled")
}

func TestParseListArgs(t *testing.T) {
	params, err := parseListArgs([]string{"status=pending", "-page", "3", "event=42"})
	require.NoError(t, err)
	assert.Equal(t, 3, params.Page)
	assert.Equal(t, map[string]string{"status": "pending", "event": "42"}, params.Filters)

	params, err = parseListArgs([]string{"-page=2"})
	require.NoError(t, err)
	assert.Equal(t, 2, params.Page)

	for _, bad := range [][]string{{"-page"}, {"-page", "0"}, {"-size", "3"}, {"status"}, {"=x"}} {
		_, err := parseListArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestEveryCommandIsReachable(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range commands {
		assert.False(t, seen[c.name], "duplicate command %s", c.name)
		seen[c.name] = true

		found, rest, err := lookup(append(strings.Fields(c.name), "1"))
		require.NoError(t, err)
		assert.Equal(t, c.name, found.name)
		assert.Equal(t, []string{"1"}, rest)
	}
}
