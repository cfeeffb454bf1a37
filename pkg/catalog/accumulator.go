package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/inventory"
	"github.com/Sternrassler/loyverse-proxy/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultMaxPages bounds one accumulation walk over the items endpoint.
const DefaultMaxPages = 1000

// ItemSource lists catalog items page by page.
type ItemSource interface {
	ListItems(ctx context.Context, cursor string) (*client.ItemPage, error)
}

// StockResolver resolves stock for variant ids. It never fails; unresolved
// variants are absent from the map.
type StockResolver interface {
	GetStock(ctx context.Context, variantIDs []string) inventory.StockMap
}

// Accumulator drains the items endpoint into one filtered, de-duplicated,
// stock-annotated result set.
type Accumulator struct {
	items    ItemSource
	stock    StockResolver
	maxPages int
	logger   zerolog.Logger
}

// NewAccumulator creates an accumulator. maxPages <= 0 uses DefaultMaxPages.
func NewAccumulator(items ItemSource, stock StockResolver, maxPages int) *Accumulator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Accumulator{
		items:    items,
		stock:    stock,
		maxPages: maxPages,
		logger:   log.With().Str("component", "accumulator").Logger(),
	}
}

// Accumulate walks upstream from the first page until the cursor is
// exhausted or the quota is met. An item page error or a cancelled ctx
// aborts the walk and no snapshot is returned.
func (a *Accumulator) Accumulate(ctx context.Context, q Query) (*cache.Snapshot, error) {
	start := time.Now()
	key := q.Key()

	seen := make(map[string]struct{})
	accepted := make([]client.Item, 0)

	fetch := func(ctx context.Context, cursor string) ([]client.Item, string, error) {
		page, err := a.items.ListItems(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return page.Items, page.Cursor, nil
	}

	visit := func(items []client.Item) bool {
		survivors := make([]client.Item, 0, len(items))
		for _, item := range items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}

			if item.IsDeleted() || !q.matches(item) || !q.passesFilters(item) {
				continue
			}
			survivors = append(survivors, cloneItem(item))
		}
		if len(survivors) == 0 {
			return false
		}

		stock := a.stock.GetStock(ctx, inventory.VariantIDs(survivors))
		if ctx.Err() != nil {
			// Stock lookups that were cut off read as zero; the page is discarded.
			return true
		}
		for i := range survivors {
			inventory.Annotate(&survivors[i], stock)
		}
		if q.RequireStock {
			survivors = lo.Filter(survivors, func(item client.Item, _ int) bool {
				return item.TotalStock > 0
			})
		}

		accepted = append(accepted, survivors...)
		return q.Quota > 0 && len(accepted) >= q.Quota
	}

	res, err := pagination.Walk(ctx, fetch, visit, pagination.WalkOptions{
		MaxPages: a.maxPages,
		Name:     key.String(),
	})
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("walk cancelled after %d pages: %w", res.Pages, ctx.Err())
	}
	if err != nil {
		accumulationsTotal.WithLabelValues(string(q.Scope), "error").Inc()
		a.logger.Error().
			Err(err).
			Str("key", key.String()).
			Int("pages", res.Pages).
			Msg("Accumulation aborted")
		return nil, fmt.Errorf("accumulate %s: %w", key, err)
	}

	if q.Quota > 0 && len(accepted) > q.Quota {
		accepted = accepted[:q.Quota]
	}

	snap := &cache.Snapshot{
		Key:      key.String(),
		Items:    accepted,
		Pages:    res.Pages,
		Complete: res.Exhausted,
		BuiltAt:  time.Now(),
	}
	if !res.Exhausted {
		snap.Cursor = res.Cursor
	}

	accumulationsTotal.WithLabelValues(string(q.Scope), "ok").Inc()
	accumulationDuration.WithLabelValues(string(q.Scope)).Observe(time.Since(start).Seconds())

	a.logger.Debug().
		Str("key", key.String()).
		Int("pages", res.Pages).
		Int("items", len(accepted)).
		Bool("complete", snap.Complete).
		Dur("duration", time.Since(start)).
		Msg("Accumulation complete")

	return snap, nil
}

// cloneItem copies the variants so annotation never writes into upstream data.
func cloneItem(item client.Item) client.Item {
	item.Variants = append([]client.Variant(nil), item.Variants...)
	return item
}
