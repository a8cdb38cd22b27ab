// Package fakebackend is an in-memory REST backend for tests. It serves
// paginated collections with detail, action and auth routes the way the CRM
// backend does, and counts every call it receives.
package fakebackend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

// Prefix is the path every route is mounted under
const Prefix = "/api"

// DefaultPageSize is the number of records per list page
const DefaultPageSize = 10

// Record is one stored resource, in its JSON shape
type Record map[string]any

// ActionFunc handles POST <collection>/<id>/<verb>/. rec is a copy of the
// target record, nil for collection level actions. A 201 answer is stored as
// a new record; any other answer replaces the record with the same id.
type ActionFunc func(rec Record, body Record) (Record, int)

type failure struct {
	status int
	body   gin.H
}

type collection struct {
	records map[int64]Record
	nextID  int64
}

// Backend is a fake CRM server
type Backend struct {
	mu          sync.Mutex
	engine      *gin.Engine
	server      *httptest.Server
	pageSize    int
	collections map[string]*collection
	actions     map[string]ActionFunc
	handlers    map[string]gin.HandlerFunc
	failures    map[string][]failure
	calls       map[string]int
	guard       *Auth
	public      map[string]bool
}

// Option configures a Backend
type Option func(*Backend)

// WithPageSize sets the list page size
func WithPageSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// New starts a backend that is shut down when the test ends
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		engine:      gin.New(),
		pageSize:    DefaultPageSize,
		collections: make(map[string]*collection),
		actions:     make(map[string]ActionFunc),
		handlers:    make(map[string]gin.HandlerFunc),
		failures:    make(map[string][]failure),
		calls:       make(map[string]int),
		public:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.engine.Use(gin.Recovery())
	b.engine.Group(Prefix).Any("/*path", b.dispatch)

	b.server = httptest.NewServer(b.engine)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the API base URL
func (b *Backend) URL() string {
	return b.server.URL + Prefix
}

// Server returns the underlying test server
func (b *Backend) Server() *httptest.Server {
	return b.server
}

// Collection registers a resource at path, e.g. "/payments/payments/",
// seeded with records. Records without an id are numbered from 1.
func (b *Backend) Collection(path string, records ...Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &collection{records: make(map[int64]Record), nextID: 1}
	for _, rec := range records {
		rec = clone(rec)
		id, ok := idOf(rec)
		if !ok {
			id = c.nextID
			rec["id"] = id
		}
		c.records[id] = rec
		if id >= c.nextID {
			c.nextID = id + 1
		}
	}
	b.collections[normalize(path)] = c
}

// OnAction registers an action handler for POST <path><id>/<verb>/, or for
// POST <path><verb>/ when the action is not bound to a record.
func (b *Backend) OnAction(path, verb string, fn ActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[normalize(path)+"|"+verb] = fn
}

// Handle registers a raw handler for one method and path, checked before
// any collection route.
func (b *Backend) Handle(method, path string, h gin.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method+" "+normalize(path)] = h
}

// Public lets method and path through without an access token once auth is enabled
func (b *Backend) Public(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.public[method+" "+normalize(path)] = true
}

// FailNext makes the next request to method and path answer with status
// and body instead of reaching the collection.
func (b *Backend) FailNext(method, path string, status int, body gin.H) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + normalize(path)
	b.failures[key] = append(b.failures[key], failure{status: status, body: body})
}

// Calls returns how many requests were received for method and path
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method+" "+normalize(path)]
}

// Record returns a copy of one stored record
func (b *Backend) Record(path string, id int64) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[normalize(path)]
	if !ok {
		return nil, false
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

// Len returns the number of records stored at path
func (b *Backend) Len(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[normalize(path)]; ok {
		return len(c.records)
	}
	return 0
}

func (b *Backend) dispatch(c *gin.Context) {
	path := normalize(c.Param("path"))
	method := c.Request.Method
	key := method + " " + path

	b.mu.Lock()
	b.calls[key]++
	if queue := b.failures[key]; len(queue) > 0 {
		f := queue[0]
		b.failures[key] = queue[1:]
		b.mu.Unlock()
		c.JSON(f.status, f.body)
		return
	}
	handler, ok := b.handlers[key]
	b.mu.Unlock()
	if ok {
		handler(c)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.guard != nil && !b.public[key] && !b.guard.Authorized(c.GetHeader("Authorization")) {
		unauthorized(c)
		return
	}

	base, rest, ok := b.route(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	coll := b.collections[base]

	switch len(rest) {
	case 0:
		switch method {
		case http.MethodGet:
			b.list(c, coll)
		case http.MethodPost:
			b.create(c, coll)
		default:
			methodNotAllowed(c, method)
		}
	case 1:
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			b.action(c, base, coll, nil, rest[0])
			return
		}
		rec, found := coll.records[id]
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		switch method {
		case http.MethodGet:
			c.JSON(http.StatusOK, rec)
		case http.MethodPatch, http.MethodPut:
			b.update(c, rec)
		case http.MethodDelete:
			delete(coll.records, id)
			c.Status(http.StatusNoContent)
		default:
			methodNotAllowed(c, method)
		}
	default:
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		rec, found := coll.records[id]
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		b.action(c, base, coll, rec, strings.Join(rest[1:], "/"))
	}
}

// route splits path into the longest registered collection and the segments after it
func (b *Backend) route(path string) (string, []string, bool) {
	best := ""
	for base := range b.collections {
		if strings.HasPrefix(path, base) && len(base) > len(best) {
			best = base
		}
	}
	if best == "" {
		return "", nil, false
	}
	rest := strings.Trim(strings.TrimPrefix(path, best), "/")
	if rest == "" {
		return best, nil, true
	}
	return best, strings.Split(rest, "/"), true
}

func (b *Backend) list(c *gin.Context, coll *collection) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
		return
	}

	ids := make([]int64, 0, len(coll.records))
	for id, rec := range coll.records {
		if matchesQuery(rec, c.Request.URL.Query()) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	start := (page - 1) * b.pageSize
	if start > len(ids) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
		return
	}
	end := start + b.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	results := make([]Record, 0, end-start)
	for _, id := range ids[start:end] {
		results = append(results, coll.records[id])
	}

	var next, previous any
	if end < len(ids) {
		next = pageURL(c, page+1)
	}
	if page > 1 {
		previous = pageURL(c, page-1)
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(ids),
		"next":     next,
		"previous": previous,
		"results":  results,
	})
}

func (b *Backend) create(c *gin.Context, coll *collection) {
	var body Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
		return
	}
	body["id"] = coll.nextID
	coll.records[coll.nextID] = body
	coll.nextID++
	c.JSON(http.StatusCreated, body)
}

func (b *Backend) update(c *gin.Context, rec Record) {
	var body Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
		return
	}
	for k, v := range body {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	c.JSON(http.StatusOK, rec)
}

func (b *Backend) action(c *gin.Context, base string, coll *collection, rec Record, verb string) {
	if c.Request.Method != http.MethodPost {
		methodNotAllowed(c, c.Request.Method)
		return
	}
	fn, ok := b.actions[base+"|"+verb]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	var body Record
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
			return
		}
	}

	var in Record
	if rec != nil {
		in = clone(rec)
	}
	out, status := fn(in, body)
	if status >= 300 {
		c.JSON(status, out)
		return
	}
	if out != nil {
		id, ok := idOf(out)
		switch {
		case status == http.StatusCreated:
			if !ok {
				id = coll.nextID
				out["id"] = id
			}
			coll.records[id] = out
			if id >= coll.nextID {
				coll.nextID = id + 1
			}
		case ok && rec != nil:
			if _, exists := coll.records[id]; exists {
				coll.records[id] = out
			}
		}
	}
	c.JSON(status, out)
}

// NextID returns the id the next created record at path will get
func (b *Backend) NextID(path string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[normalize(path)]; ok {
		return c.nextID
	}
	return 0
}

func methodNotAllowed(c *gin.Context, method string) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": fmt.Sprintf("Method %q not allowed.", method)})
}

func matchesQuery(rec Record, query map[string][]string) bool {
	for k, values := range query {
		if k == "page" || len(values) == 0 || values[0] == "" {
			continue
		}
		v, ok := rec[k]
		if !ok || fmt.Sprint(v) != values[0] {
			return false
		}
	}
	return true
}

func pageURL(c *gin.Context, page int) string {
	q := c.Request.URL.Query()
	q.Set("page", strconv.Itoa(page))
	return "http://" + c.Request.Host + c.Request.URL.Path + "?" + q.Encode()
}

func idOf(rec Record) (int64, bool) {
	switch v := rec["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func normalize(path string) string {
	return "/" + strings.Trim(path, "/") + "/"
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// Insert stores rec at path under the next free id and returns the stored copy.
// It is safe to call from a Handle handler.
func (b *Backend) Insert(path string, rec Record) Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[normalize(path)]
	if !ok {
		c = &collection{records: make(map[int64]Record), nextID: 1}
		b.collections[normalize(path)] = c
	}
	rec = clone(rec)
	rec["id"] = c.nextID
	c.records[c.nextID] = rec
	c.nextID++
	return clone(rec)
}
