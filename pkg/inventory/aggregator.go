// Package inventory resolves per-variant stock from the Loyverse inventory
// endpoint. Lookups are chunked, fanned out with bounded concurrency and
// degrade to partial results instead of failing.
package inventory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var (
	inventoryChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyverse_inventory_chunks_total",
		Help: "Total inventory chunks queried",
	})

	inventoryDegradedChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_inventory_degraded_chunks_total",
		Help: "Inventory chunks that ended early and returned partial sums, by reason",
	}, []string{"reason"})
)

// Source is the subset of the Loyverse client the aggregator needs.
type Source interface {
	ListInventory(ctx context.Context, variantIDs []string, cursor string) (*client.InventoryPage, error)
}

// StockMap maps variant id to summed in-stock quantity.
type StockMap map[string]int

// Of returns the stock of a variant; unknown variants have stock 0.
func (m StockMap) Of(variantID string) int {
	return m[variantID]
}

// Config controls chunking and fan-out.
type Config struct {
	// ChunkSize is the number of variant ids per inventory query.
	ChunkSize int

	// MaxConcurrency bounds the chunks in flight.
	MaxConcurrency int

	// MaxPagesPerChunk bounds the cursor walk of one chunk (0 = unbounded).
	MaxPagesPerChunk int
}

// DefaultConfig returns the defaults used against Loyverse.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      250,
		MaxConcurrency: 5,
	}
}

// Aggregator sums inventory levels per variant.
type Aggregator struct {
	source Source
	config Config
	logger zerolog.Logger
}

// NewAggregator creates an aggregator. Zero config fields take defaults.
func NewAggregator(source Source, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}

	return &Aggregator{
		source: source,
		config: cfg,
		logger: log.With().Str("component", "inventory").Logger(),
	}
}

// GetStock returns the summed stock of every requested variant that upstream
// reported. It never fails: a chunk that errors keeps whatever it summed
// before the error, and missing variants read as 0 through StockMap.Of.
func (a *Aggregator) GetStock(ctx context.Context, variantIDs []string) StockMap {
	ids := lo.Uniq(lo.Compact(variantIDs))
	if len(ids) == 0 {
		return StockMap{}
	}

	start := time.Now()
	chunks := lo.Chunk(ids, a.config.ChunkSize)

	var (
		mu     sync.Mutex
		totals = make(map[string]float64, len(ids))
	)

	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			partial := a.chunkStock(ctx, i, chunk)
			mu.Lock()
			for id, qty := range partial {
				totals[id] += qty
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stock := make(StockMap, len(totals))
	for id, qty := range totals {
		stock[id] = toUnits(qty)
	}

	a.logger.Debug().
		Int("variants", len(ids)).
		Int("chunks", len(chunks)).
		Int("resolved", len(stock)).
		Dur("duration", time.Since(start)).
		Msg("Stock resolved")

	return stock
}

// chunkStock follows the inventory cursor of one chunk and sums in_stock
// per variant.
func (a *Aggregator) chunkStock(ctx context.Context, index int, ids []string) map[string]float64 {
	inventoryChunksTotal.Inc()
	sums := make(map[string]float64, len(ids))

	fetch := func(ctx context.Context, cursor string) ([]client.InventoryLevel, string, error) {
		page, err := a.source.ListInventory(ctx, ids, cursor)
		if err != nil {
			return nil, "", err
		}
		return page.Levels, page.Cursor, nil
	}
	visit := func(levels []client.InventoryLevel) bool {
		for _, level := range levels {
			sums[level.VariantID] += level.InStock
		}
		return false
	}

	res, err := pagination.Walk(ctx, fetch, visit, pagination.WalkOptions{
		MaxPages: a.config.MaxPagesPerChunk,
		Name:     "inventory",
	})
	if err != nil {
		reason := "upstream_error"
		if client.IsRateLimited(err) {
			reason = "rate_limited"
		}
		inventoryDegradedChunksTotal.WithLabelValues(reason).Inc()
		a.logger.Warn().
			Err(err).
			Int("chunk", index).
			Int("variants", len(ids)).
			Int("pages", res.Pages).
			Str("reason", reason).
			Msg("Inventory chunk ended early, keeping partial sums")
	}

	return sums
}

// toUnits converts a summed quantity into whole, non-negative units.
func toUnits(qty float64) int {
	if qty <= 0 || math.IsNaN(qty) {
		return 0
	}
	return int(math.Floor(qty))
}

// Annotate writes variant and item totals into item from stock.
func Annotate(item *client.Item, stock StockMap) {
	total := 0
	for i := range item.Variants {
		qty := stock.Of(item.Variants[i].ID)
		item.Variants[i].TotalStock = qty
		total += qty
	}
	item.TotalStock = total
}

// VariantIDs collects the variant ids of all items.
func VariantIDs(items []client.Item) []string {
	return lo.FlatMap(items, func(item client.Item, _ int) []string {
		return item.VariantIDs()
	})
}
