package fetcher

import (
	"context"
	"fmt"
)

// page is the upstream paging envelope.
type page[T any] struct {
	Items *[]T    `json:"items"`
	Next  *string `json:"next"`
	Total int     `json:"total"`
}

// FetchAllPages follows next links from startURL until a page carries no
// cursor and returns every item in page order.
func FetchAllPages[T any](ctx context.Context, c *Client, endpoint, startURL string) ([]T, error) {
	var (
		all  []T
		seen = make(map[string]struct{})
	)
	next := startURL
	for next != "" {
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("paging %s: cursor loop at %s", endpoint, next)
		}
		seen[next] = struct{}{}

		var p page[T]
		if err := c.getJSON(ctx, endpoint, next, &p); err != nil {
			return nil, err
		}
		items, err := p.items(endpoint)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return all, nil
}

func (p page[T]) items(endpoint string) ([]T, error) {
	if p.Items == nil {
		return nil, malformed("%s page has no items", endpoint)
	}
	return *p.Items, nil
}
