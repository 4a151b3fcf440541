package export

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid export request")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Order is the sort applied by the source. It must be stable across pages.
type Order struct {
	Column     string
	Descending bool
}

// Source names what to read from the upstream store.
type Source struct {
	Table   string
	Columns []string // empty selects every column
	Order   Order
}

// PageQuery asks the upstream store for one page.
type PageQuery struct {
	Source

	Limit  int
	Offset int
}

// PageFetcher is the paginated query capability of an upstream store.
// A nil error with zero rows means the source is exhausted.
type PageFetcher interface {
	FetchPage(ctx context.Context, q PageQuery) ([]Row, error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc func(ctx context.Context, q PageQuery) ([]Row, error)

func (f FetchFunc) FetchPage(ctx context.Context, q PageQuery) ([]Row, error) {
	return f(ctx, q)
}

// UpstreamError reports a failed page fetch.
type UpstreamError struct {
	Offset int
	Limit  int
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fetch page offset=%d limit=%d: %v", e.Offset, e.Limit, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}
