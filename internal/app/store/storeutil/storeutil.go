// internal/app/store/storeutil/storeutil.go
package storeutil

import (
	"math"

	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultPageSize applies when the caller passes no limit.
	DefaultPageSize int64 = 20
	// MaxPageSize caps any client-supplied limit.
	MaxPageSize int64 = 100
)

// Paginate returns find options for a 1-based page. The limit is clamped
// to (0, MaxPageSize] and the page so the skip cannot overflow.
func Paginate(limit, page int64) *options.FindOptions {
	limit = ClampLimit(limit)
	switch {
	case page <= 0:
		page = 1
	case page > math.MaxInt64/limit:
		page = math.MaxInt64 / limit
	}
	return options.Find().SetLimit(limit).SetSkip((page - 1) * limit)
}

// ClampLimit normalizes a page size.
func ClampLimit(limit int64) int64 {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
