// Package catalog serves the storefront views of the Loyverse catalog:
// single product, quota-bounded listing, category catalog and name search.
// Views are accumulated from the upstream cursor walk once per filter
// signature and paginated out of a cached snapshot.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/inventory"
	"github.com/Sternrassler/loyverse-proxy/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultListingQuota is the size of the "all products" listing.
	DefaultListingQuota = 12

	// DefaultPageSize applies when a request gives no usable limit.
	DefaultPageSize = 10

	// MaxPageSize caps the limit of one page.
	MaxPageSize = 100

	// DefaultBuildTimeout bounds one shared accumulation.
	DefaultBuildTimeout = 2 * time.Minute
)

// ErrInvalidQuery is returned for a catalog query without category or a
// search without term.
var ErrInvalidQuery = errors.New("invalid query")

// Source is the subset of the Loyverse client the service needs.
type Source interface {
	ItemSource
	GetItem(ctx context.Context, id string) (*client.Item, error)
}

// StockPolicy selects, per view, whether zero-stock items are dropped.
type StockPolicy struct {
	Listing bool
	Catalog bool
	Search  bool
}

// DefaultStockPolicy drops zero-stock items everywhere.
func DefaultStockPolicy() StockPolicy {
	return StockPolicy{Listing: true, Catalog: true, Search: true}
}

// Config configures the service.
type Config struct {
	// ListingQuota is the number of items in the listing (0 = DefaultListingQuota).
	ListingQuota int

	// MaxPages bounds one accumulation walk (0 = DefaultMaxPages).
	MaxPages int

	// BuildTimeout bounds one accumulation (0 = DefaultBuildTimeout). It runs
	// detached from the requests waiting on it.
	BuildTimeout time.Duration

	StockPolicy StockPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ListingQuota: DefaultListingQuota,
		MaxPages:     DefaultMaxPages,
		BuildTimeout: DefaultBuildTimeout,
		StockPolicy:  DefaultStockPolicy(),
	}
}

// CatalogQuery selects one page of a category.
type CatalogQuery struct {
	Category string
	Color    string
	Size     string
	Page     int
	Limit    int
}

// SearchQuery selects one page of a name search.
type SearchQuery struct {
	Term  string
	Page  int
	Limit int
}

// Page is one page of a catalog view.
type Page struct {
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
	Items      []client.Item `json:"items"`

	// ETag identifies this page of this snapshot.
	ETag string `json:"-"`
}

// SearchPage is a Page plus the upstream cursor left unread, or nil once
// upstream was read to the end.
type SearchPage struct {
	Page
	Cursor *string `json:"cursor"`
}

// Service builds and caches catalog views.
type Service struct {
	source Source
	stock  StockResolver
	acc    *Accumulator
	store  cache.Store
	config Config
	group  singleflight.Group
	logger zerolog.Logger
}

// NewService creates a catalog service. A nil store keeps snapshots in a
// default MemoryStore.
func NewService(source Source, stock StockResolver, store cache.Store, cfg Config) *Service {
	if cfg.ListingQuota <= 0 {
		cfg.ListingQuota = DefaultListingQuota
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	if store == nil {
		store = cache.NewMemoryStore(cache.DefaultMaxEntries, cache.DefaultTTL)
	}
	return &Service{
		source: source,
		stock:  stock,
		acc:    NewAccumulator(source, stock, cfg.MaxPages),
		store:  store,
		config: cfg,
		logger: log.With().Str("component", "catalog").Logger(),
	}
}

// Product fetches one item and annotates its variants with stock. Products
// are not cached. Returns client.ErrNotFound for unknown or deleted items.
func (s *Service) Product(ctx context.Context, id string) (*client.Item, error) {
	item, err := s.source.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsDeleted() {
		return nil, fmt.Errorf("item %s: %w", id, client.ErrNotFound)
	}

	stock := s.stock.GetStock(ctx, item.VariantIDs())
	inventory.Annotate(item, stock)
	return item, nil
}

// Listing returns up to ListingQuota items in upstream order.
func (s *Service) Listing(ctx context.Context) ([]client.Item, error) {
	snap, err := s.snapshot(ctx, Query{
		Scope:        cache.ScopeListing,
		Quota:        s.config.ListingQuota,
		RequireStock: s.config.StockPolicy.Listing,
	})
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

// Catalog returns one page of a category, filtered by color and size.
func (s *Service) Catalog(ctx context.Context, q CatalogQuery) (*Page, error) {
	if strings.TrimSpace(q.Category) == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidQuery)
	}
	snap, err := s.snapshot(ctx, Query{
		Scope:        cache.ScopeCatalog,
		Category:     q.Category,
		Color:        q.Color,
		Size:         q.Size,
		RequireStock: s.config.StockPolicy.Catalog,
	})
	if err != nil {
		return nil, err
	}
	return pageOf(snap, q.Page, q.Limit), nil
}

// Search returns one page of items whose name contains the term.
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	if strings.TrimSpace(q.Term) == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrInvalidQuery)
	}
	snap, err := s.snapshot(ctx, Query{
		Scope:        cache.ScopeSearch,
		Term:         q.Term,
		RequireStock: s.config.StockPolicy.Search,
	})
	if err != nil {
		return nil, err
	}

	page := &SearchPage{Page: *pageOf(snap, q.Page, q.Limit)}
	if snap.Cursor != "" {
		cursor := snap.Cursor
		page.Cursor = &cursor
	}
	return page, nil
}

// Purge drops all cached snapshots.
func (s *Service) Purge(ctx context.Context) error {
	if err := s.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge %s store: %w", s.store.Name(), err)
	}
	s.logger.Info().Str("store", s.store.Name()).Msg("Snapshot cache purged")
	return nil
}

// Ping checks the snapshot store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// snapshot serves q from the store, accumulating on a miss. Concurrent
// misses for one key share a single accumulation, which runs detached from
// any one caller: a caller that gives up returns its own ctx error and the
// others keep waiting. Failed accumulations are never stored.
func (s *Service) snapshot(ctx context.Context, q Query) (*cache.Snapshot, error) {
	key := q.Key()

	snap, err := s.store.Get(ctx, key)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Str("store", s.store.Name()).
			Msg("Snapshot store read failed, rebuilding")
	}

	ch := s.group.DoChan(key.String(), func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.BuildTimeout)
		defer cancel()

		snap, err := s.acc.Accumulate(buildCtx, q)
		if err != nil {
			return nil, err
		}
		if err := s.store.Set(buildCtx, key, snap); err != nil {
			s.logger.Warn().
				Err(err).
				Str("key", key.String()).
				Str("store", s.store.Name()).
				Msg("Snapshot store write failed")
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			sharedAccumulationsTotal.WithLabelValues(string(q.Scope)).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cache.Snapshot), nil
	}
}

// pageOf cuts one page out of a snapshot.
func pageOf(snap *cache.Snapshot, page, limit int) *Page {
	page, limit = NormalizePage(page, limit)
	w := pagination.Paginate(snap.Total(), page, limit)

	return &Page{
		Page:       w.Page,
		Limit:      w.Limit,
		Total:      w.Total,
		TotalPages: w.TotalPages,
		Items:      pagination.Slice(snap.Items, w),
		ETag:       cache.ETag(snap, "page="+strconv.Itoa(w.Page), "limit="+strconv.Itoa(w.Limit)),
	}
}

// NormalizePage applies the page defaults: page < 1 is 1, limit < 1 is
// DefaultPageSize and limit is capped at MaxPageSize.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
