package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
	"github.com/danieldreier/mcp-study/internal/sections"
	"github.com/danieldreier/mcp-study/internal/storage"
)

// ErrUnknownSection is returned when a section key is not defined for an item's kind.
var ErrUnknownSection = errors.New("unknown section for item kind")

// StudyService composes the item store, the section catalog and the review engine.
type StudyService struct {
	Storage   storage.Storage
	Sections  *sections.Catalog
	Durations *review.DurationsCache
	Logger    *zap.Logger

	// mu serializes read-modify-write cycles on items.
	mu sync.Mutex
}

// NewStudyService creates a StudyService. The durations cache reads review
// steps from the store's settings.
func NewStudyService(store storage.Storage, catalog *sections.Catalog, logger *zap.Logger) *StudyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = sections.Default()
	}
	return &StudyService{
		Storage:   store,
		Sections:  catalog,
		Durations: review.NewDurationsCache(store, logger.Named("durations")),
		Logger:    logger,
	}
}

// Variable to allow mocking time.Now in tests
var timeNow = time.Now

// UpsertItem creates a new item or updates the content of an existing one.
// The review record of an existing item is kept; content and lecture edits
// are picked up by the next snapshot read.
func (s *StudyService) UpsertItem(ctx context.Context, item review.Item) (review.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Kind == "" {
		return review.Item{}, errors.New("item kind is required")
	}

	if item.ID != "" {
		existing, err := s.Storage.GetItem(ctx, item.ID)
		switch {
		case err == nil:
			existing.Kind = item.Kind
			existing.Name = item.Name
			existing.Fields = item.Fields
			existing.Lectures = item.Lectures
			if err := s.Storage.UpdateItem(ctx, existing); err != nil {
				return review.Item{}, fmt.Errorf("error updating item %s: %w", item.ID, err)
			}
			if err := s.Storage.Save(); err != nil {
				return review.Item{}, fmt.Errorf("error saving storage after updating item %s: %w", item.ID, err)
			}
			s.Logger.Debug("Updated item", zap.String("item_id", item.ID))
			return s.Storage.GetItem(ctx, item.ID)
		case !errors.Is(err, storage.ErrItemNotFound):
			return review.Item{}, fmt.Errorf("error getting item %s: %w", item.ID, err)
		}
	}

	item.SR = nil
	created, err := s.Storage.CreateItem(ctx, item)
	if err != nil {
		return review.Item{}, fmt.Errorf("error creating item: %w", err)
	}
	if err := s.Storage.Save(); err != nil {
		return review.Item{}, fmt.Errorf("error saving storage after creating item %s: %w", created.ID, err)
	}
	s.Logger.Debug("Created item", zap.String("item_id", created.ID), zap.String("kind", created.Kind))
	return created, nil
}

// GetItem returns one item.
func (s *StudyService) GetItem(ctx context.Context, id string) (review.Item, error) {
	item, err := s.Storage.GetItem(ctx, id)
	if err != nil {
		return review.Item{}, fmt.Errorf("error getting item %s: %w", id, err)
	}
	return item, nil
}

// DeleteItem removes one item.
func (s *StudyService) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Storage.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("error deleting item: %w", err)
	}
	if err := s.Storage.Save(); err != nil {
		return fmt.Errorf("error saving storage: %w", err)
	}
	return nil
}

// ListItems lists items, optionally of one kind.
func (s *StudyService) ListItems(ctx context.Context, kind string) ([]review.Item, error) {
	items, err := s.Storage.ListItems(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("error listing items: %w", err)
	}
	return items, nil
}

// RateSection applies a rating to one section of an item and persists the item.
func (s *StudyService) RateSection(ctx context.Context, itemID, sectionKey string, rating review.Rating) (review.SectionState, error) {
	return s.RateSectionWithTime(ctx, itemID, sectionKey, rating, timeNow())
}

// RateSectionWithTime is RateSection with an explicit clock reading.
func (s *StudyService) RateSectionWithTime(ctx context.Context, itemID, sectionKey string, rating review.Rating, now time.Time) (review.SectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Storage.GetItem(ctx, itemID)
	if err != nil {
		return review.SectionState{}, fmt.Errorf("error getting item %s: %w", itemID, err)
	}
	if s.Sections.Label(item.Kind, sectionKey) == "" {
		return review.SectionState{}, fmt.Errorf("%w: %s/%s", ErrUnknownSection, item.Kind, sectionKey)
	}

	durations := s.Durations.Get(ctx)
	state, ok := review.Rate(&item, sectionKey, rating, durations, now)
	if !ok {
		return review.SectionState{}, fmt.Errorf("section %q of item %s cannot be rated", sectionKey, itemID)
	}
	s.Logger.Debug("Rated section",
		zap.String("item_id", itemID),
		zap.String("section", sectionKey),
		zap.Stringer("rating", rating),
		zap.Int("streak", state.Streak),
		zap.Int64("due", state.Due))

	if err := s.Storage.UpdateItem(ctx, item); err != nil {
		return review.SectionState{}, fmt.Errorf("error updating item %s: %w", itemID, err)
	}
	if err := s.Storage.Save(); err != nil {
		return review.SectionState{}, fmt.Errorf("error saving storage: %w", err)
	}
	return state, nil
}

// SectionState returns the re-validated state of one section. It reports
// false when the section was never rated.
func (s *StudyService) SectionState(ctx context.Context, itemID, sectionKey string) (review.SectionState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Storage.GetItem(ctx, itemID)
	if err != nil {
		return review.SectionState{}, false, fmt.Errorf("error getting item %s: %w", itemID, err)
	}
	state, ev, ok := review.Snapshot(&item, sectionKey, timeNow())
	if !ok {
		return review.SectionState{}, false, nil
	}
	s.observe(&item, sectionKey, ev)
	if ev.Refreshed {
		s.persist(ctx, map[string]*review.Item{item.ID: &item})
	}
	return state, true, nil
}

// DueSections lists the sections due now across the given kinds (all kinds
// when empty).
func (s *StudyService) DueSections(ctx context.Context, kinds []string) ([]review.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.loadItems(ctx, kinds)
	dirty := map[string]*review.Item{}
	entries := review.CollectDue(items, s.Sections, timeNow(), s.refreshHook(dirty))
	s.persist(ctx, dirty)
	return entries, nil
}

// UpcomingSections lists sections due later, soonest first. A non-positive
// limit returns all of them.
func (s *StudyService) UpcomingSections(ctx context.Context, kinds []string, limit int) ([]review.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.loadItems(ctx, kinds)
	dirty := map[string]*review.Item{}
	entries := review.CollectUpcoming(items, s.Sections, timeNow(), limit, s.refreshHook(dirty))
	s.persist(ctx, dirty)
	return entries, nil
}

// Stats summarizes the review state of the given kinds.
func (s *StudyService) Stats(ctx context.Context, kinds []string) ReviewStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeNow()
	items := s.loadItems(ctx, kinds)
	dirty := map[string]*review.Item{}
	hook := s.refreshHook(dirty)

	stats := ReviewStats{TotalItems: len(items)}
	stats.DueSections = len(review.CollectDue(items, s.Sections, now, hook))
	stats.UpcomingSections = len(review.CollectUpcoming(items, s.Sections, now, 0, hook))
	for _, item := range items {
		for _, def := range s.Sections.SectionsForKind(item.Kind) {
			if !review.HasContent(item, def.Key, s.Sections) {
				continue
			}
			stats.TotalSections++
			state, _, ok := review.Snapshot(item, def.Key, now)
			switch {
			case !ok || state.Last == 0:
				stats.UnseenSections++
			case state.Retired:
				stats.RetiredSections++
			}
		}
	}
	s.persist(ctx, dirty)
	return stats
}

// ReviewSteps returns the effective review durations.
func (s *StudyService) ReviewSteps(ctx context.Context) review.ReviewDurations {
	return s.Durations.Get(ctx)
}

// UpdateReviewSteps merges raw step values into the stored settings and
// returns the effective durations afterwards. Invalid values are stored as
// given and ignored on read.
func (s *StudyService) UpdateReviewSteps(ctx context.Context, patch map[string]any) (review.ReviewDurations, error) {
	settings, err := s.Storage.GetSettings(ctx)
	if err != nil {
		return review.ReviewDurations{}, fmt.Errorf("error getting settings: %w", err)
	}

	merged := map[string]any{}
	if current, ok := settings.ReviewSteps.(map[string]any); ok {
		for k, v := range current {
			merged[k] = v
		}
	}
	for _, r := range review.ReviewRatings {
		if v, ok := patch[r.String()]; ok {
			merged[r.String()] = v
		}
	}
	settings.ReviewSteps = merged

	if err := s.Storage.SaveSettings(ctx, settings); err != nil {
		return review.ReviewDurations{}, fmt.Errorf("error saving settings: %w", err)
	}
	if err := s.Storage.Save(); err != nil {
		return review.ReviewDurations{}, fmt.Errorf("error saving storage: %w", err)
	}
	s.Durations.Invalidate()
	return s.Durations.Get(ctx), nil
}

func (s *StudyService) kinds(kinds []string) []string {
	if len(kinds) == 0 {
		return s.Sections.Kinds()
	}
	return slices.Compact(slices.Sorted(slices.Values(kinds)))
}

func (s *StudyService) loadItems(ctx context.Context, kinds []string) []*review.Item {
	return storage.LoadReviewItems(ctx, s.Storage, s.kinds(kinds), s.Logger)
}

func (s *StudyService) refreshHook(dirty map[string]*review.Item) review.CollectOption {
	return review.WithRefreshHook(func(item *review.Item, key string, ev review.Evaluation) {
		s.observe(item, key, ev)
		if ev.Refreshed {
			dirty[item.ID] = item
		}
	})
}

func (s *StudyService) observe(item *review.Item, key string, ev review.Evaluation) {
	if ev.Invalidated() {
		s.Logger.Info("Section schedule reset",
			zap.String("item_id", item.ID),
			zap.String("section", key),
			zap.Bool("content_changed", ev.ContentChanged),
			zap.Bool("lecture_removed", ev.ScopeRemoved))
	}
}

// persist writes back items whose records changed during a read. Failures
// are logged; the read result stays valid.
func (s *StudyService) persist(ctx context.Context, dirty map[string]*review.Item) {
	if len(dirty) == 0 {
		return
	}
	for id, item := range dirty {
		if err := s.Storage.UpdateItem(ctx, *item); err != nil {
			s.Logger.Warn("Failed to persist refreshed item", zap.String("item_id", id), zap.Error(err))
		}
	}
	if err := s.Storage.Save(); err != nil {
		s.Logger.Warn("Failed to save storage after refresh", zap.Error(err))
	}
}
