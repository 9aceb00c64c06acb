package dataforge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

// SearchBuilder accumulates query parameters. Do runs the query.
type SearchBuilder struct {
	params request.Params
	svc    searchUseCase
	user   domain.User
	obs    *observer
	err    error
}

// Where sets the filter: a nested filter tree or MongoDB query syntax.
func (b *SearchBuilder) Where(filter any) *SearchBuilder {
	f, err := request.ParseFilter(filter)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("where: %w", err))
		return b
	}
	b.params.Filter = f
	return b
}

// SortBy appends an ascending sort key. Dotted paths sort by related fields.
func (b *SearchBuilder) SortBy(field string) *SearchBuilder {
	b.params.Sort = append(b.params.Sort, request.SortKey{Field: field})
	return b
}

// SortByDesc appends a descending sort key.
func (b *SearchBuilder) SortByDesc(field string) *SearchBuilder {
	b.params.Sort = append(b.params.Sort, request.SortKey{Field: field, Desc: true})
	return b
}

// Page selects the 1-based page.
func (b *SearchBuilder) Page(n int) *SearchBuilder {
	b.params.Page = n
	return b
}

// Limit sets the page size.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.params.Limit = n
	return b
}

// Depth sets how many relation levels are resolved.
func (b *SearchBuilder) Depth(n int) *SearchBuilder {
	b.params.Depth = n
	return b
}

// AutoExpand joins relations that the filter or sort reference.
func (b *SearchBuilder) AutoExpand() *SearchBuilder {
	b.params.AutoExpand = true
	return b
}

// IDs restricts results to the given document IDs.
func (b *SearchBuilder) IDs(ids ...string) *SearchBuilder {
	b.params.IDs = append(b.params.IDs, ids...)
	return b
}

// Timeout hints the server-side time budget.
func (b *SearchBuilder) Timeout(d time.Duration) *SearchBuilder {
	b.params.TimeoutHint = d
	return b
}

// Do runs the query and returns one page with the total match count.
func (b *SearchBuilder) Do(ctx context.Context) (_ SearchResult, err error) {
	start := time.Now()
	defer func() { b.obs.observe("search", b.params.Model, start, err) }()

	if b.err != nil {
		return SearchResult{}, fmt.Errorf("search: %w: %w", domain.ErrValidation, b.err)
	}
	req, err := request.New(b.params)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search: %w: %w", domain.ErrValidation, err)
	}
	res, err := b.svc.Search(ctx, b.user, req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search: %w", err)
	}
	return SearchResult{Documents: res.Data(), Count: res.Count()}, nil
}
