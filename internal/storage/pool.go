package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
)

// LoadReviewItems collects the items of the given kinds for a review session.
// Items are deduplicated by ID, keeping the first occurrence. A kind that
// fails to load is logged and skipped so one bad kind does not empty the pool.
func LoadReviewItems(ctx context.Context, store Storage, kinds []string, logger *zap.Logger) []*review.Item {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[string]bool)
	items := []*review.Item{}
	for _, kind := range kinds {
		entries, err := store.ListItems(ctx, kind)
		if err != nil {
			logger.Warn("Failed to load review items for kind", zap.String("kind", kind), zap.Error(err))
			continue
		}
		for i := range entries {
			item := entries[i]
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			items = append(items, &item)
		}
	}
	return items
}
