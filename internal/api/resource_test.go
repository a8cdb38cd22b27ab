package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type widgetPatch struct {
	Name *string `json:"name,omitempty"`
}

type call struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func recordingServer(t *testing.T, calls *[]call, reply string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*calls = append(*calls, call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(reply))
	}))
}

func newWidgets(t *testing.T, url string) *Resource[widget, widget, widgetPatch] {
	c, err := httpclient.New(url, httpclient.WithRetry(httpclient.NoRetry()))
	require.NoError(t, err)
	return NewResource[widget, widget, widgetPatch](c, "widgets", "/shop/widgets")
}

func TestResource_Paths(t *testing.T) {
	r := NewResource[widget, widget, widgetPatch](nil, "widgets", "/shop/widgets")
	assert.Equal(t, "widgets", r.Name())
	assert.Equal(t, "/shop/widgets/", r.Path())
	assert.Equal(t, "/shop/widgets/7/", r.DetailPath(7))
	assert.Equal(t, "/shop/widgets/7/mark_paid/", r.ActionPath(7, "/mark_paid/"))
}

func TestResource_List(t *testing.T) {
	var calls []call
	server := recordingServer(t, &calls, `{"count":1,"next":null,"previous":null,"results":[{"id":1,"name":"a"}]}`)
	defer server.Close()

	page, err := newWidgets(t, server.URL).List(context.Background(), shared.NewListParams(2).With("search", "a"))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "a", page.Results[0].Name)

	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/shop/widgets/", calls[0].Path)
	assert.Equal(t, "page=2&search=a", calls[0].Query)
}

func TestResource_EmptyResultsAreNeverNil(t *testing.T) {
	var calls []call
	server := recordingServer(t, &calls, `{"count":0,"next":null,"previous":null,"results":null}`)
	defer server.Close()

	page, err := newWidgets(t, server.URL).List(context.Background(), shared.NewListParams(1))
	require.NoError(t, err)
	assert.NotNil(t, page.Results)
}

func TestResource_Mutations(t *testing.T) {
	var calls []call
	server := recordingServer(t, &calls, `{"id":3,"name":"b"}`)
	defer server.Close()

	ctx := context.Background()
	r := newWidgets(t, server.URL)

	created, err := r.Create(ctx, widget{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)

	name := "c"
	_, err = r.Update(ctx, 3, widgetPatch{Name: &name})
	require.NoError(t, err)

	_, err = r.Get(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, 3))

	_, err = Action[widget](ctx, r.transport, r.ActionPath(3, "archive"), struct{}{})
	require.NoError(t, err)

	require.Len(t, calls, 5)
	assert.Equal(t, call{Method: http.MethodPost, Path: "/shop/widgets/", Body: `{"id":0,"name":"b"}`}, calls[0])
	assert.Equal(t, http.MethodPatch, calls[1].Method)
	assert.Equal(t, "/shop/widgets/3/", calls[1].Path)
	assert.JSONEq(t, `{"name":"c"}`, calls[1].Body)
	assert.Equal(t, http.MethodGet, calls[2].Method)
	assert.Equal(t, http.MethodDelete, calls[3].Method)
	assert.Equal(t, "/shop/widgets/3/archive/", calls[4].Path)
}

func TestResource_WrapsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string][]string{"name": {"This field may not be blank."}})
	}))
	defer server.Close()

	_, err := newWidgets(t, server.URL).Create(context.Background(), widget{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create widgets")
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	assert.Equal(t, "name: This field may not be blank.", shared.ErrorMessage(err, "x"))
}
