package catalog

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/erp/crm/internal/api/products"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/catalog"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/cache"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/erp/crm/internal/testutil/fakebackend"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTransport is a mock implementation of api.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*httpclient.Response), args.Error(1)
}

func (m *MockTransport) DoJSON(ctx context.Context, req httpclient.Request, out any) error {
	args := m.Called(ctx, req, out)
	return args.Error(0)
}

func summer() catalog.Discount {
	return catalog.Discount{
		ID:           7,
		Code:         "SUMMER",
		Name:         "Summer sale",
		DiscountType: catalog.DiscountTypePercentage,
		Value:        decimal.NewFromInt(15),
		IsActive:     true,
	}
}

func TestUpdateDiscount_OfflineRevertsOptimisticChange(t *testing.T) {
	store := cache.NewStore()
	notes := &optimistic.Recorder{}
	transport := new(MockTransport)
	svc := NewService(products.New(transport), optimistic.NewRunner(store, optimistic.WithNotifier(notes)))

	detail := cache.DetailKey(products.ResourceDiscounts, 7)
	page1 := cache.ListKey(products.ResourceDiscounts, shared.NewListParams(1))
	require.NoError(t, cache.Put(store, detail, summer()))
	require.NoError(t, cache.Put(store, page1, shared.Page[catalog.Discount]{Count: 1, Results: []catalog.Discount{summer()}}))
	beforeDetail, _ := store.Peek(detail)
	beforePage, _ := store.Peek(page1)

	var seenDetail catalog.Discount
	var seenPage shared.Page[catalog.Discount]
	transport.On("DoJSON", mock.Anything, mock.MatchedBy(func(req httpclient.Request) bool {
		return req.Method == http.MethodPatch && req.Path == "/products/discounts/7/"
	}), mock.Anything).
		Run(func(mock.Arguments) {
			seenDetail, _, _ = cache.Get[catalog.Discount](store, detail)
			seenPage, _, _ = cache.Get[shared.Page[catalog.Discount]](store, page1)
		}).
		Return(shared.NewNetworkError(errors.New("dial tcp: connection refused"))).
		Once()

	inactive := false
	_, err := svc.UpdateDiscount(context.Background(), 7, catalog.DiscountUpdate{IsActive: &inactive})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindNetwork))
	transport.AssertExpectations(t)

	assert.False(t, seenDetail.IsActive, "detail optimistically inactive")
	assert.Equal(t, "SUMMER", seenDetail.Code)
	require.Len(t, seenPage.Results, 1)
	assert.False(t, seenPage.Results[0].IsActive, "list optimistically inactive")

	afterDetail, _ := store.Peek(detail)
	afterPage, _ := store.Peek(page1)
	assert.Equal(t, string(beforeDetail.Data), string(afterDetail.Data))
	assert.Equal(t, string(beforePage.Data), string(afterPage.Data))

	reverted, _, err := cache.Get[catalog.Discount](store, detail)
	require.NoError(t, err)
	assert.True(t, reverted.IsActive)

	assert.Equal(t, []optimistic.Notification{{Level: "error", Message: "Failed to update discount"}}, notes.All())
}

func TestIncrementDiscountUsage(t *testing.T) {
	b := fakebackend.New(t)
	b.Collection("/products/discounts/",
		fakebackend.Record{"id": 7, "code": "SUMMER", "discount_type": "percentage", "value": "15", "current_uses": 2, "max_uses": 3, "is_active": true},
	)
	b.OnAction("/products/discounts/", "increment_usage", func(rec, _ fakebackend.Record) (fakebackend.Record, int) {
		uses := rec["current_uses"].(int)
		if limit, ok := rec["max_uses"].(int); ok && uses >= limit {
			return fakebackend.Record{"detail": "Discount usage limit reached."}, http.StatusBadRequest
		}
		rec["current_uses"] = uses + 1
		return rec, http.StatusOK
	})

	store := cache.NewStore()
	notes := &optimistic.Recorder{}
	svc := NewService(products.New(b.Client(t)), optimistic.NewRunner(store, optimistic.WithNotifier(notes)))
	ctx := context.Background()

	d, err := svc.IncrementDiscountUsage(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, d.CurrentUses)

	_, err = svc.IncrementDiscountUsage(ctx, 7)
	require.Error(t, err)
	last, _ := notes.Last()
	assert.Equal(t, "Discount usage limit reached.", last.Message)
	assert.Equal(t, 2, b.Calls(http.MethodPost, "/products/discounts/7/increment_usage/"))
}

func TestUpdateOption_InvalidatesQuotes(t *testing.T) {
	b := fakebackend.New(t)
	b.Collection("/products/options/",
		fakebackend.Record{"id": 1, "name": "Chairs", "type": "product", "base_price": "2.50", "is_active": true},
	)
	store := cache.NewStore()
	svc := NewService(products.New(b.Client(t)), optimistic.NewRunner(store))
	ctx := context.Background()

	quote := cache.DetailKey("quotes", 12)
	require.NoError(t, cache.Put(store, quote, map[string]any{"id": 12}))

	price := decimal.RequireFromString("3.00")
	opt, err := svc.UpdateOption(ctx, 1, catalog.ProductOptionUpdate{BasePrice: &price})
	require.NoError(t, err)
	assert.True(t, opt.BasePrice.Equal(price))

	e, ok := store.Peek(quote)
	require.True(t, ok)
	assert.True(t, e.Stale)
}

func TestDiscountWriteFailure_StillInvalidatesQuotes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		write  func(ctx context.Context, s *Service) error
	}{
		{"update", http.MethodPatch, "/products/discounts/7/", func(ctx context.Context, s *Service) error {
			inactive := false
			_, err := s.UpdateDiscount(ctx, 7, catalog.DiscountUpdate{IsActive: &inactive})
			return err
		}},
		{"increment usage", http.MethodPost, "/products/discounts/7/increment_usage/", func(ctx context.Context, s *Service) error {
			_, err := s.IncrementDiscountUsage(ctx, 7)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fakebackend.New(t)
			b.Collection("/products/discounts/",
				fakebackend.Record{"id": 7, "code": "SUMMER", "discount_type": "percentage", "value": "15", "is_active": true},
			)
			b.OnAction("/products/discounts/", "increment_usage", func(rec, _ fakebackend.Record) (fakebackend.Record, int) {
				return rec, http.StatusOK
			})
			b.FailNext(tt.method, tt.path, http.StatusInternalServerError, nil)

			store := cache.NewStore()
			svc := NewService(products.New(b.Client(t)), optimistic.NewRunner(store))
			quote := cache.DetailKey("quotes", 12)
			require.NoError(t, cache.Put(store, quote, map[string]any{"id": 12}))

			require.Error(t, tt.write(context.Background(), svc))

			e, ok := store.Peek(quote)
			require.True(t, ok)
			assert.True(t, e.Stale, "quotes embed discount amounts")
			assert.Equal(t, 1, e.Invalidations)
		})
	}
}

func TestUpdateOption_ClearsTaxRate(t *testing.T) {
	b := fakebackend.New(t)
	b.Collection("/products/options/",
		fakebackend.Record{"id": 1, "name": "Chairs", "type": "product", "base_price": "2.50", "tax_rate": 3, "is_taxable": true, "is_active": true},
	)
	store := cache.NewStore()
	svc := NewService(products.New(b.Client(t)), optimistic.NewRunner(store))
	ctx := context.Background()

	before, err := svc.Options.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, before.Data.TaxRate)

	opt, err := svc.UpdateOption(ctx, 1, catalog.ProductOptionUpdate{TaxRate: shared.Null[int64]()})
	require.NoError(t, err)
	assert.Nil(t, opt.TaxRate)
	assert.Equal(t, "Chairs", opt.Name)

	rec, ok := b.Record("/products/options/", 1)
	require.True(t, ok)
	assert.Contains(t, rec, "tax_rate")
	assert.Nil(t, rec["tax_rate"])
	assert.Equal(t, "2.50", rec["base_price"], "unset fields are not sent")
}
