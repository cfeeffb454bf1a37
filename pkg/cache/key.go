package cache

import (
	"fmt"
	"strings"
)

// Scope is the kind of catalog view a snapshot holds.
type Scope string

const (
	// ScopeListing is the quota-bounded "all products" listing.
	ScopeListing Scope = "listing"

	// ScopeCatalog is one category with optional color/size filters.
	ScopeCatalog Scope = "catalog"

	// ScopeSearch is a name search.
	ScopeSearch Scope = "search"
)

// Key identifies one logical view of the catalog (its filter signature).
type Key struct {
	Scope Scope

	// Category is the Loyverse category id (catalog scope).
	Category string

	// Color and Size are the secondary filters (catalog scope).
	Color string
	Size  string

	// Term is the search string (search scope).
	Term string
}

// Normalize trims all fields and lower-cases the case-insensitive ones, so
// equivalent requests share one snapshot. Category ids are opaque and keep
// their case.
func (k Key) Normalize() Key {
	return Key{
		Scope:    k.Scope,
		Category: strings.TrimSpace(k.Category),
		Color:    strings.ToLower(strings.TrimSpace(k.Color)),
		Size:     strings.ToLower(strings.TrimSpace(k.Size)),
		Term:     strings.ToLower(strings.TrimSpace(k.Term)),
	}
}

// String generates a deterministic key string.
// Format: scope[:field=value...] with fields in fixed order, empty ones omitted.
//
// Example:
//
//	catalog:category=0b9a...:color=red:size=m
func (k Key) String() string {
	k = k.Normalize()
	parts := []string{string(k.Scope)}

	for _, f := range []struct{ name, value string }{
		{"category", k.Category},
		{"color", k.Color},
		{"size", k.Size},
		{"term", k.Term},
	} {
		if f.value != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", f.name, f.value))
		}
	}

	return strings.Join(parts, ":")
}
