// Package pagination walks cursor-paginated Loyverse endpoints and slices
// accumulated result sets into fixed-size pages.
//
// Loyverse list endpoints return an opaque cursor with every page; the walk
// ends when the cursor comes back empty. Walk drives that loop for any page
// type and lets the caller stop early (for example once a result quota is
// met). It also guards against an upstream that hands out the same cursor
// twice.
//
// Example usage:
//
//	res, err := pagination.Walk(ctx,
//		func(ctx context.Context, cursor string) ([]client.Item, string, error) {
//			page, err := c.ListItems(ctx, cursor)
//			if err != nil {
//				return nil, "", err
//			}
//			return page.Items, page.Cursor, nil
//		},
//		func(items []client.Item) bool { return collect(items) },
//		pagination.WalkOptions{MaxPages: 200},
//	)
//
// Paginate computes page metadata for an in-memory result set:
//
//	w := pagination.Paginate(len(items), page, limit)
//	pageItems := pagination.Slice(items, w)
package pagination
