package fakebackend

import (
	"testing"

	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/require"
)

// Client returns an HTTP client pointed at the backend. Unless overridden by
// opts it is signed in with a static access token and never retries.
func (b *Backend) Client(t testing.TB, opts ...httpclient.Option) *httpclient.Client {
	t.Helper()
	defaults := []httpclient.Option{
		httpclient.WithTokenStore(httpclient.NewMemoryStore(httpclient.Session{Access: "test-access", Refresh: "test-refresh"})),
		httpclient.WithRetry(httpclient.NoRetry()),
	}
	c, err := httpclient.New(b.URL(), append(defaults, opts...)...)
	require.NoError(t, err)
	return c
}
