package cache

import (
	"testing"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"resource", ResourceKey("payments"), "payments"},
		{"all lists", AllLists("payments"), "payments/list"},
		{"first page", ListKey("payments", shared.NewListParams(0)), "payments/list?page=1"},
		{
			"filtered page",
			ListKey("payments", shared.NewListParams(2).With("status", "completed").With("invoice", "7")),
			"payments/list?page=2&invoice=7&status=completed",
		},
		{"detail", DetailKey("invoices", 42), "invoices/detail/42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestKey_IsPattern(t *testing.T) {
	assert.True(t, ResourceKey("payments").IsPattern())
	assert.True(t, AllLists("payments").IsPattern())
	assert.True(t, FilteredLists("payments", map[string]string{"status": "pending"}).IsPattern())
	assert.True(t, Key{Resource: "payments", Scope: ScopeDetail}.IsPattern())

	assert.False(t, ListKey("payments", shared.NewListParams(1)).IsPattern())
	assert.False(t, DetailKey("payments", 1).IsPattern())
}

func TestKey_Matches(t *testing.T) {
	page1 := ListKey("payments", shared.NewListParams(1))
	page2Filtered := ListKey("payments", shared.NewListParams(2).With("status", "pending"))
	detail := DetailKey("payments", 5)
	otherResource := ListKey("invoices", shared.NewListParams(1))

	t.Run("resource matches everything of that resource", func(t *testing.T) {
		p := ResourceKey("payments")
		assert.True(t, p.Matches(page1))
		assert.True(t, p.Matches(page2Filtered))
		assert.True(t, p.Matches(detail))
		assert.False(t, p.Matches(otherResource))
	})

	t.Run("all lists excludes details", func(t *testing.T) {
		p := AllLists("payments")
		assert.True(t, p.Matches(page1))
		assert.True(t, p.Matches(page2Filtered))
		assert.False(t, p.Matches(detail))
	})

	t.Run("filtered lists matches every page of one filter set", func(t *testing.T) {
		p := FilteredLists("payments", map[string]string{"status": "pending"})
		assert.True(t, p.Matches(page2Filtered))
		assert.True(t, p.Matches(ListKey("payments", shared.NewListParams(7).With("status", "pending"))))
		assert.False(t, p.Matches(page1))
	})

	t.Run("exact key matches only itself", func(t *testing.T) {
		assert.True(t, detail.Matches(detail))
		assert.False(t, detail.Matches(DetailKey("payments", 6)))
		assert.True(t, page1.Matches(page1))
		assert.False(t, page1.Matches(ListKey("payments", shared.NewListParams(1).With("status", "pending"))))
	})
}

func TestEncodeFilters_SkipsPageAndEmptyValues(t *testing.T) {
	got := encodeFilters(map[string]string{
		"page":   "3",
		"search": "a b",
		"status": "",
	})
	assert.Equal(t, "search=a+b", got)
}
