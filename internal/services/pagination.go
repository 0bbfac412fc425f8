package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/shared"
)

// defaultPageLimit matches the largest window Spotify and Napster both accept.
const defaultPageLimit = 50

// Page is one window of a paginated provider collection.
type Page[T any] struct {
	Items []T
	Total int
}

// PageFunc fetches one window of at most limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, limit, offset int) (Page[T], error)

// FetchAll walks a paginated collection window by window and returns the full
// ordered item sequence. The first page establishes the advertised total; the
// walk is bounded by the page count that total implies, and every later page
// must agree with it. A source that reports a different total mid-walk,
// serves an empty page while items are still owed, or hands back more items
// than it advertised fails with [shared.ErrPageDrift] instead of looping.
//
// The offset for each request is the number of items accumulated so far, so
// short pages never open gaps in the sequence.
func FetchAll[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	first, err := fetch(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	total := first.Total
	if total < 0 {
		return nil, fmt.Errorf("%w: negative total %d", shared.ErrPageDrift, total)
	}
	if total == 0 {
		return nil, nil
	}

	items := make([]T, 0, total)
	items = append(items, first.Items...)

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty first page with %d items advertised", shared.ErrPageDrift, total)
	}

	maxPages := (total + limit - 1) / limit

	for pages := 1; len(items) < total; pages++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pages >= maxPages {
			return nil, fmt.Errorf("%w: %d of %d items after %d pages", shared.ErrPageDrift, len(items), total, pages)
		}

		page, err := fetch(ctx, limit, len(items))
		if err != nil {
			return nil, err
		}

		if page.Total != total {
			return nil, fmt.Errorf("%w: total changed from %d to %d at offset %d", shared.ErrPageDrift, total, page.Total, len(items))
		}
		if len(page.Items) == 0 {
			return nil, fmt.Errorf("%w: empty page at offset %d with %d of %d items", shared.ErrPageDrift, len(items), len(items), total)
		}

		items = append(items, page.Items...)
	}

	if len(items) > total {
		return nil, fmt.Errorf("%w: received %d items for advertised total %d", shared.ErrPageDrift, len(items), total)
	}

	return items, nil
}
