package pagination

// Window is one page of a result set.
type Window struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int

	// Start and End are the half-open index range of the page.
	Start int
	End   int
}

// Paginate computes the window for page (1-based) of a result set with
// total entries and limit entries per page. page < 1 is treated as 1 and
// limit < 1 as 1. Pages past the end yield an empty window.
func Paginate(total, page, limit int) Window {
	if total < 0 {
		total = 0
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	w := Window{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}

	if page > w.TotalPages {
		w.Start, w.End = total, total
		return w
	}
	w.Start = (page - 1) * limit
	w.End = min(w.Start+limit, total)
	return w
}

// Empty reports whether the window holds no entries.
func (w Window) Empty() bool {
	return w.Start >= w.End
}

// Slice returns the entries of items inside w. The result aliases items.
func Slice[T any](items []T, w Window) []T {
	start := min(w.Start, len(items))
	end := min(w.End, len(items))
	if start >= end {
		return []T{}
	}
	return items[start:end]
}
