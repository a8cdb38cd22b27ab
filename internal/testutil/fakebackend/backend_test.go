package fakebackend

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemsPath = "/things/items/"

func TestBackend_ListPagesAndFilters(t *testing.T) {
	b := New(t, WithPageSize(2))
	b.Collection(itemsPath,
		Record{"name": "a", "kind": "x"},
		Record{"name": "b", "kind": "y"},
		Record{"name": "c", "kind": "x"},
	)
	client := b.Client(t)
	ctx := context.Background()

	var page shared.Page[Record]
	require.NoError(t, client.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, Path: itemsPath}, &page))
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 2)
	assert.True(t, page.HasNext())
	assert.Nil(t, page.Previous)

	require.NoError(t, client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   itemsPath,
		Query:  url.Values{"page": {"2"}},
	}, &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "c", page.Results[0]["name"])
	assert.False(t, page.HasNext())

	require.NoError(t, client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   itemsPath,
		Query:  url.Values{"kind": {"x"}},
	}, &page))
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 3, b.Calls(http.MethodGet, itemsPath))
}

func TestBackend_CRUD(t *testing.T) {
	b := New(t)
	b.Collection(itemsPath, Record{"id": 5, "name": "seed"})
	client := b.Client(t)
	ctx := context.Background()

	var created Record
	require.NoError(t, client.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Path: itemsPath, Body: Record{"name": "new"}}, &created))
	assert.Equal(t, float64(6), created["id"])
	assert.Equal(t, int64(7), b.NextID(itemsPath))

	var updated Record
	require.NoError(t, client.DoJSON(ctx, httpclient.Request{Method: http.MethodPatch, Path: itemsPath + "5/", Body: Record{"name": "renamed", "id": 99}}, &updated))
	assert.Equal(t, "renamed", updated["name"])
	rec, ok := b.Record(itemsPath, 5)
	require.True(t, ok)
	assert.Equal(t, "renamed", rec["name"])

	_, err := client.Do(ctx, httpclient.Request{Method: http.MethodDelete, Path: itemsPath + "5/"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len(itemsPath))

	_, err = client.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: itemsPath + "5/"})
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestBackend_ActionsAndFailures(t *testing.T) {
	b := New(t)
	b.Collection(itemsPath, Record{"id": 1, "status": "draft"})
	b.OnAction(itemsPath, "publish", func(rec, body Record) (Record, int) {
		rec["status"] = "published"
		rec["note"] = body["note"]
		return rec, http.StatusOK
	})
	b.OnAction(itemsPath, "copy", func(rec, _ Record) (Record, int) {
		delete(rec, "id")
		return rec, http.StatusCreated
	})
	client := b.Client(t)
	ctx := context.Background()

	var out Record
	require.NoError(t, client.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Path: itemsPath + "1/publish/", Body: Record{"note": "go"}}, &out))
	rec, _ := b.Record(itemsPath, 1)
	assert.Equal(t, "published", rec["status"])
	assert.Equal(t, "go", rec["note"])

	require.NoError(t, client.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Path: itemsPath + "1/copy/"}, &out))
	assert.Equal(t, float64(2), out["id"])
	assert.Equal(t, 2, b.Len(itemsPath))

	b.FailNext(http.MethodPost, itemsPath+"1/publish/", http.StatusBadRequest, gin.H{"detail": "Already published."})
	_, err := client.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: itemsPath + "1/publish/"})
	require.Error(t, err)
	assert.Equal(t, "Already published.", shared.ErrorMessage(err, ""))

	_, err = client.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: itemsPath + "1/unknown/"})
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
	assert.Equal(t, 2, b.Calls(http.MethodPost, itemsPath+"1/publish/"))
}

func TestAuth_GuardsCollections(t *testing.T) {
	b := New(t)
	a := b.EnableAuth("ada@example.com", "pw", Record{"id": 1, "email": "ada@example.com"})
	b.Collection(itemsPath, Record{"id": 1})
	ctx := context.Background()

	anon := b.Client(t, httpclient.WithTokenStore(httpclient.NewMemoryStore(httpclient.Session{})))
	_, err := anon.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: itemsPath})
	assert.True(t, shared.IsKind(err, shared.KindUnauthenticated))

	var tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	require.NoError(t, anon.DoJSON(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      LoginPath,
		Body:      map[string]string{"email": "ada@example.com", "password": "pw"},
		Anonymous: true,
	}, &tokens))
	assert.Equal(t, a.Access(), tokens.Access)
	assert.True(t, a.Authorized("Bearer "+tokens.Access))
	assert.False(t, a.Authorized(tokens.Access))

	signedIn := b.Client(t, httpclient.WithTokenStore(httpclient.NewMemoryStore(httpclient.Session{Access: tokens.Access, Refresh: tokens.Refresh})))
	_, err = signedIn.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: itemsPath})
	require.NoError(t, err)

	claims, err := httpclient.ParseClaims(tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
}
