package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// FetchFunc fetches the page at cursor and returns its items and the next
// cursor. An empty cursor fetches the first page; an empty next cursor
// means the source is exhausted.
type FetchFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// VisitFunc receives every fetched page in order. Returning true stops the walk.
type VisitFunc[T any] func(items []T) (stop bool)

// WalkOptions bound a walk.
type WalkOptions struct {
	// MaxPages stops the walk after this many pages (0 = unbounded).
	MaxPages int

	// Name labels log lines.
	Name string
}

// WalkResult describes how a walk ended.
type WalkResult struct {
	// Pages is the number of pages fetched.
	Pages int

	// Cursor is the cursor of the next unread page; empty when exhausted.
	Cursor string

	// Exhausted is true when the source returned an empty cursor.
	Exhausted bool

	// Stopped is true when the visitor ended the walk.
	Stopped bool

	// Truncated is true when MaxPages or a repeated cursor ended the walk.
	Truncated bool
}

// Walk follows cursors from the first page until the source is exhausted,
// the visitor stops, or a guard trips. A fetch error aborts the walk and is
// returned together with the progress made so far.
func Walk[T any](ctx context.Context, fetch FetchFunc[T], visit VisitFunc[T], opts WalkOptions) (WalkResult, error) {
	start := time.Now()
	logger := log.With().Str("component", "pagination").Str("walk", opts.Name).Logger()

	var res WalkResult
	seen := make(map[string]struct{})
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("walk cancelled after %d pages: %w", res.Pages, err)
		}

		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return res, fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
		}
		res.Pages++

		stop := visit(items)
		res.Cursor = next

		if next == "" {
			res.Exhausted = true
			break
		}
		if stop {
			res.Stopped = true
			break
		}
		if _, dup := seen[next]; dup {
			logger.Warn().
				Str("cursor", next).
				Int("pages", res.Pages).
				Msg("Upstream repeated a cursor, ending walk")
			res.Truncated = true
			break
		}
		if opts.MaxPages > 0 && res.Pages >= opts.MaxPages {
			logger.Warn().
				Int("max_pages", opts.MaxPages).
				Msg("Page limit reached, ending walk")
			res.Truncated = true
			break
		}

		seen[next] = struct{}{}
		cursor = next
	}

	logger.Debug().
		Int("pages", res.Pages).
		Bool("exhausted", res.Exhausted).
		Bool("stopped", res.Stopped).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")

	return res, nil
}
