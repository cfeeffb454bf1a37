package cache

import (
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/client"
)

// Snapshot is the accumulated, filtered, stock-annotated result set of one key.
// Snapshots handed out by a store are shared and must not be modified.
type Snapshot struct {
	// Key is the rendered filter signature.
	Key string `json:"key"`

	// Items in upstream order, de-duplicated by id.
	Items []client.Item `json:"items"`

	// Cursor is the next unread upstream cursor; empty once upstream is exhausted.
	Cursor string `json:"cursor,omitempty"`

	// Pages is the number of upstream pages read to build the snapshot.
	Pages int `json:"pages"`

	// Complete is true when upstream was read to the end.
	Complete bool `json:"complete"`

	// BuiltAt is when the accumulation finished.
	BuiltAt time.Time `json:"built_at"`
}

// Total returns the number of items in the snapshot.
func (s *Snapshot) Total() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// Age returns the time since the snapshot was built.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.BuiltAt)
}
