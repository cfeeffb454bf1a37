package catalog

import (
	"strings"

	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/samber/lo"
)

// Query describes one accumulation: which items match and when to stop.
type Query struct {
	Scope cache.Scope

	// Category must equal the item's category id (catalog scope).
	Category string

	// Color and Size are secondary filters; empty means no filter.
	Color string
	Size  string

	// Term is matched as a case-insensitive substring of the item name (search scope).
	Term string

	// Quota ends the walk once this many items were accepted (0 = no quota).
	Quota int

	// RequireStock drops items whose total stock is zero.
	RequireStock bool
}

// Key is the cache key (filter signature) of the query.
func (q Query) Key() cache.Key {
	return cache.Key{
		Scope:    q.Scope,
		Category: q.Category,
		Color:    q.Color,
		Size:     q.Size,
		Term:     q.Term,
	}.Normalize()
}

// matches applies the primary predicate of the scope.
func (q Query) matches(item client.Item) bool {
	switch q.Scope {
	case cache.ScopeCatalog:
		return item.CategoryID == strings.TrimSpace(q.Category)
	case cache.ScopeSearch:
		term := strings.ToLower(strings.TrimSpace(q.Term))
		return strings.Contains(strings.ToLower(item.Name), term)
	default:
		return true
	}
}

// passesFilters applies the secondary color and size filters.
func (q Query) passesFilters(item client.Item) bool {
	if color := strings.TrimSpace(q.Color); color != "" {
		if !strings.EqualFold(strings.TrimSpace(item.Color), color) {
			return false
		}
	}
	if size := strings.TrimSpace(q.Size); size != "" {
		return lo.SomeBy(item.Variants, func(v client.Variant) bool {
			return lo.SomeBy(v.OptionValues(), func(value string) bool {
				return strings.EqualFold(strings.TrimSpace(value), size)
			})
		})
	}
	return true
}
