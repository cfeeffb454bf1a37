package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/loyverse-proxy/internal/testutil"
	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/catalog"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, mock *testutil.MockLoyverse, pageLimit int, cfg catalog.Config) *catalog.Service {
	t.Helper()

	c, agg := newUpstream(t, mock, pageLimit)
	return catalog.NewService(c, agg, cache.NewMemoryStore(16, time.Minute), cfg)
}

func newUpstream(t *testing.T, mock *testutil.MockLoyverse, pageLimit int) (*client.Client, *inventory.Aggregator) {
	t.Helper()

	ccfg := client.DefaultConfig("test-token")
	ccfg.BaseURL = mock.URL()
	ccfg.PageLimit = pageLimit
	ccfg.Retry = client.RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	c, err := client.New(ccfg)
	require.NoError(t, err)

	return c, inventory.NewAggregator(c, inventory.DefaultConfig())
}

// stocked registers items with the mock, every variant holding qty units.
func stocked(mock *testutil.MockLoyverse, qty float64, items ...client.Item) {
	mock.SetItems(items...)
	for _, it := range items {
		for _, v := range it.Variants {
			mock.SetStock(v.ID, qty)
		}
	}
}

func itemsPageHandler(t *testing.T, items ...client.Item) func(w http.ResponseWriter, r *http.Request) {
	t.Helper()
	body, err := json.Marshal(client.ItemPage{Items: items})
	require.NoError(t, err)
	return testutil.NewStaticHandler(testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

func ids(items []client.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestListing_ReturnsOnlyStockPositiveItems(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	mock.SetItems(
		testutil.NewItem("1", "Camisa", "c1", ""),
		testutil.NewItem("2", "Pantalon", "c1", ""),
	)
	mock.SetStock("1-v1", 0)
	mock.SetStock("2-v1", 5)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	items, err := svc.Listing(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(items))
	assert.Equal(t, 5, items[0].TotalStock)
	assert.Equal(t, 5, items[0].Variants[0].TotalStock)
}

func TestListing_StopsAtQuota(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	var all []client.Item
	for i := 1; i <= 20; i++ {
		all = append(all, testutil.NewItem(fmt.Sprintf("i%02d", i), "Item", "c1", ""))
	}
	stocked(mock, 1, all...)

	svc := newService(t, mock, 5, catalog.DefaultConfig())
	items, err := svc.Listing(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, catalog.DefaultListingQuota)
	assert.Equal(t, "i01", items[0].ID)
	assert.Equal(t, "i12", items[11].ID)
	// 12 accepted after the third page of 5; the fourth page is never read
	assert.Equal(t, 3, mock.GetPathCount("/items"))
}

func TestCatalog_NoDuplicatesAcrossPages(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	var all []client.Item
	for i := 1; i <= 10; i++ {
		all = append(all, testutil.NewItem(fmt.Sprintf("i%02d", i), "Item", "c1", ""))
	}
	stocked(mock, 2, all...)
	mock.SetOverlap(1)

	svc := newService(t, mock, 3, catalog.DefaultConfig())
	ctx := context.Background()

	seen := make(map[string]int)
	first, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, first.Total)
	assert.Equal(t, 3, first.TotalPages)

	for page := 1; page <= first.TotalPages; page++ {
		p, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: page, Limit: 4})
		require.NoError(t, err)
		for _, it := range p.Items {
			seen[it.ID]++
		}
	}

	assert.Len(t, seen, 10)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s appeared on %d pages", id, n)
	}
}

func TestCatalog_Pagination(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	var all []client.Item
	for i := 1; i <= 25; i++ {
		all = append(all, testutil.NewItem(fmt.Sprintf("i%02d", i), "Item", "c1", ""))
	}
	stocked(mock, 1, all...)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	p, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1", Page: 3, Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 25, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Len(t, p.Items, 5)
	assert.Equal(t, "i21", p.Items[0].ID)

	beyond, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1", Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
}

func TestCatalog_CachesPerSignature(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1,
		testutil.NewItem("1", "Camisa", "c1", "rojo", "M"),
		testutil.NewItem("2", "Camisa", "c1", "azul", "M"),
	)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	_, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 1})
	require.NoError(t, err)
	require.Equal(t, 1, mock.GetPathCount("/items"))

	// same signature, other page: served from the snapshot
	_, err = svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetPathCount("/items"))

	// equivalent signature after normalisation
	_, err = svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Color: "", Size: " "})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetPathCount("/items"))

	for i, q := range []catalog.CatalogQuery{
		{Category: "c1", Color: "rojo"},
		{Category: "c1", Color: "rojo", Size: "m"},
		{Category: "c2"},
	} {
		_, err := svc.Catalog(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 2+i, mock.GetPathCount("/items"), "query %+v should trigger a fresh pass", q)
	}
}

func TestCatalog_SecondaryFilters(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1,
		testutil.NewItem("1", "Camisa", "c1", "Rojo", "S", "M"),
		testutil.NewItem("2", "Camisa", "c1", "Azul", "M"),
		testutil.NewItem("3", "Camisa", "c1", "rojo", "L"),
		testutil.NewItem("4", "Camisa", "c2", "rojo", "M"),
	)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		query catalog.CatalogQuery
		want  []string
	}{
		{"category only", catalog.CatalogQuery{Category: "c1"}, []string{"1", "2", "3"}},
		{"color", catalog.CatalogQuery{Category: "c1", Color: "ROJO"}, []string{"1", "3"}},
		{"size", catalog.CatalogQuery{Category: "c1", Size: "m"}, []string{"1", "2"}},
		{"color and size", catalog.CatalogQuery{Category: "c1", Color: "rojo", Size: " M "}, []string{"1"}},
		{"no match", catalog.CatalogQuery{Category: "c1", Size: "XL"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.Catalog(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p.Items))
			assert.Equal(t, len(tt.want), p.Total)
		})
	}
}

func TestCatalog_SkipsDeletedItems(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	deleted := testutil.NewItem("2", "Camisa", "c1", "")
	now := time.Now()
	deleted.DeletedAt = &now
	stocked(mock, 1, testutil.NewItem("1", "Camisa", "c1", ""), deleted)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	p, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(p.Items))
}

func TestCatalog_EmptyUpstream(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	p, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1"})

	require.NoError(t, err)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.TotalPages)
	assert.Empty(t, p.Items)
	assert.Equal(t, 0, mock.GetPathCount("/inventory"))
}

func TestCatalog_UpstreamErrorIsNotCached(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	good := testutil.NewItem("1", "Camisa", "c1", "")
	mock.SetStock("1-v1", 3)
	mock.SetHandler("/items", testutil.NewSequenceHandler(
		testutil.NewStaticHandler(testutil.NewServerErrorResponse()),
		itemsPageHandler(t, good),
	))

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	_, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1"})
	require.Error(t, err)
	var apiErr *client.APIError
	assert.True(t, errors.As(err, &apiErr))

	p, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(p.Items))
	assert.Equal(t, 2, mock.GetPathCount("/items"))
}

func TestCatalog_StockPolicyDisabled(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	mock.SetItems(
		testutil.NewItem("1", "Camisa", "c1", ""),
		testutil.NewItem("2", "Camisa", "c1", ""),
	)
	mock.SetStock("2-v1", 4)

	cfg := catalog.DefaultConfig()
	cfg.StockPolicy.Catalog = false
	svc := newService(t, mock, 50, cfg)

	p, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(p.Items))
	assert.Equal(t, 0, p.Items[0].TotalStock)
	assert.Equal(t, 4, p.Items[1].TotalStock)
}

func TestCatalog_RequiresCategory(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	_, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "  "})

	assert.ErrorIs(t, err, catalog.ErrInvalidQuery)
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestCatalog_ETagStableUntilRebuild(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1, testutil.NewItem("1", "Camisa", "c1", ""))
	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	a, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 1, Limit: 10})
	require.NoError(t, err)
	b, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ETag)
	assert.Equal(t, a.ETag, b.ETag)

	other, err := svc.Catalog(ctx, catalog.CatalogQuery{Category: "c1", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.NotEqual(t, a.ETag, other.ETag)
}

func TestCatalog_ConcurrentMissesShareOneAccumulation(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	mock.SetStock("1-v1", 1)
	body, err := json.Marshal(client.ItemPage{Items: []client.Item{testutil.NewItem("1", "Camisa", "c1", "")}})
	require.NoError(t, err)
	mock.SetResponse("/items", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Delay:      200 * time.Millisecond,
	})

	svc := newService(t, mock, 50, catalog.DefaultConfig())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Catalog(context.Background(), catalog.CatalogQuery{Category: "c1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, mock.GetPathCount("/items"))
}

func TestCatalog_CallerCancelDoesNotFailJoinedCallers(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1, testutil.NewItem("1", "Camisa", "c1", ""))
	mock.SetDelay("/items", 300*time.Millisecond)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	q := catalog.CatalogQuery{Category: "c1"}

	first, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Catalog(first, q)
		firstErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type result struct {
		page *catalog.Page
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := svc.Catalog(context.Background(), q)
		second <- result{p, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []string{"1"}, ids(res.page.Items))
	assert.Equal(t, 1, mock.GetPathCount("/items"))
}

func TestCatalog_CallerTimeoutDuringStockLookupKeepsCacheHealthy(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 2,
		testutil.NewItem("1", "Camisa", "c1", ""),
		testutil.NewItem("2", "Blusa", "c1", ""),
	)
	mock.SetDelay("/inventory", 200*time.Millisecond)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	q := catalog.CatalogQuery{Category: "c1"}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Catalog(ctx, q)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p, err := svc.Catalog(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, []string{"1", "2"}, ids(p.Items))
	assert.Equal(t, 1, mock.GetPathCount("/items"))
}

func TestAccumulate_CancelledStockLookupReturnsNoSnapshot(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 2,
		testutil.NewItem("1", "Camisa", "c1", ""),
		testutil.NewItem("2", "Blusa", "c1", ""),
	)
	mock.SetDelay("/inventory", 200*time.Millisecond)

	c, agg := newUpstream(t, mock, 50)
	acc := catalog.NewAccumulator(c, agg, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	snap, err := acc.Accumulate(ctx, catalog.Query{
		Scope:        cache.ScopeCatalog,
		Category:     "c1",
		RequireStock: true,
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, snap)
}

func TestCatalog_RateLimitedStockIsCachedAsZero(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	mock.SetItems(
		testutil.NewItem("1", "Camisa", "c1", ""),
		testutil.NewItem("2", "Blusa", "c1", ""),
	)
	mock.SetHandler("/inventory", testutil.NewStaticHandler(testutil.NewRateLimitResponse()))

	cfg := catalog.DefaultConfig()
	cfg.StockPolicy = catalog.StockPolicy{}
	svc := newService(t, mock, 50, cfg)
	q := catalog.CatalogQuery{Category: "c1"}

	for i := 0; i < 2; i++ {
		p, err := svc.Catalog(context.Background(), q)
		require.NoError(t, err)
		require.Equal(t, []string{"1", "2"}, ids(p.Items))
		for _, item := range p.Items {
			assert.Equal(t, 0, item.TotalStock)
		}
	}

	// the degraded snapshot is served from cache; stock is not retried
	assert.Equal(t, 1, mock.GetPathCount("/items"))
	assert.Equal(t, 6, mock.GetPathCount("/inventory"))
}

func TestSearch(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1,
		testutil.NewItem("1", "Camisa Azul", "c1", ""),
		testutil.NewItem("2", "Pantalon", "c1", ""),
		testutil.NewItem("3", "camiseta", "c2", ""),
	)

	svc := newService(t, mock, 2, catalog.DefaultConfig())
	p, err := svc.Search(context.Background(), catalog.SearchQuery{Term: "CAMI"})

	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(p.Items))
	assert.Equal(t, 2, p.Total)
	assert.Nil(t, p.Cursor)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"cursor":null`)
	assert.Contains(t, string(raw), `"totalPages":1`)
}

func TestSearch_ReportsUnreadCursor(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	var all []client.Item
	for i := 1; i <= 5; i++ {
		all = append(all, testutil.NewItem(fmt.Sprintf("i%d", i), "Camisa", "c1", ""))
	}
	stocked(mock, 1, all...)

	cfg := catalog.DefaultConfig()
	cfg.MaxPages = 1
	svc := newService(t, mock, 2, cfg)

	p, err := svc.Search(context.Background(), catalog.SearchQuery{Term: "camisa"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	require.NotNil(t, p.Cursor)
	assert.Equal(t, "c2", *p.Cursor)
}

func TestSearch_RequiresTerm(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	_, err := svc.Search(context.Background(), catalog.SearchQuery{Term: ""})

	assert.ErrorIs(t, err, catalog.ErrInvalidQuery)
}

func TestProduct(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	deleted := testutil.NewItem("gone", "Viejo", "c1", "")
	now := time.Now()
	deleted.DeletedAt = &now
	mock.SetItems(testutil.NewItem("1", "Camisa", "c1", "", "S", "M"), deleted)
	mock.SetStock("1-v1", 2, 1)
	mock.SetStock("1-v2", 0)

	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	item, err := svc.Product(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 3, item.Variants[0].TotalStock)
	assert.Equal(t, 0, item.Variants[1].TotalStock)
	assert.Equal(t, 3, item.TotalStock)

	_, err = svc.Product(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, err = svc.Product(ctx, "gone")
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestPurge_ForcesRebuild(t *testing.T) {
	mock := testutil.NewMockLoyverse()
	defer mock.Close()

	stocked(mock, 1, testutil.NewItem("1", "Camisa", "c1", ""))
	svc := newService(t, mock, 50, catalog.DefaultConfig())
	ctx := context.Background()

	_, err := svc.Listing(ctx)
	require.NoError(t, err)
	_, err = svc.Listing(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, mock.GetPathCount("/items"))

	require.NoError(t, svc.Purge(ctx))

	_, err = svc.Listing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetPathCount("/items"))
	assert.NoError(t, svc.Ping(ctx))
}
