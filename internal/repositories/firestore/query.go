package firestore

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/vietcart/api/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// countDocuments runs a server-side aggregation count over the query.
func countDocuments(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := results["total"]
	if !ok {
		return 0, fmt.Errorf("aggregation result missing count")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected aggregation value type %T", raw)
	}
	return value.GetIntegerValue(), nil
}

func normalizePage(page domain.Page) (int, int) {
	number := page.Number
	if number < 1 {
		number = 1
	}
	limit := page.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return number, limit
}

func newPagedResult[T any](items []T, total int64, page, limit int) domain.PagedResult[T] {
	totalPages := 0
	if total > 0 && limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return domain.PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}
