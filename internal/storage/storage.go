// Package storage persists study items and user settings.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
)

// SettingsID is the key of the single settings record.
const SettingsID = "app"

// Settings is the user's application configuration. ReviewSteps is kept as a
// raw decoded value; the review package normalizes it on read.
type Settings struct {
	ID          string `json:"id"`
	DailyCount  int    `json:"dailyCount"`
	Theme       string `json:"theme"`
	ReviewSteps any    `json:"reviewSteps,omitempty"`
}

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() Settings {
	return Settings{ID: SettingsID, DailyCount: 20, Theme: "dark"}
}

// StudyStore is the document persisted by FileStorage.
type StudyStore struct {
	Items       map[string]review.Item `json:"items"`
	Settings    *Settings              `json:"settings,omitempty"`
	LastUpdated time.Time              `json:"last_updated"`
}

var (
	// ErrItemNotFound is returned when no item has the requested ID.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemExists is returned when creating an item whose ID is taken.
	ErrItemExists = errors.New("item already exists")
)

// Storage is the item store and settings store used by the study service.
// Items returned by the store are deep copies; changes reach the store only
// through CreateItem and UpdateItem.
type Storage interface {
	// Item operations
	CreateItem(ctx context.Context, item review.Item) (review.Item, error)
	GetItem(ctx context.Context, id string) (review.Item, error)
	UpdateItem(ctx context.Context, item review.Item) error
	DeleteItem(ctx context.Context, id string) error
	// ListItems returns the items of one kind sorted by ID, or all items if kind is "".
	ListItems(ctx context.Context, kind string) ([]review.Item, error)

	// Settings operations
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	ReviewSteps(ctx context.Context) (any, error)

	// Lifecycle
	Load() error
	Save() error
	Close() error
}

// FileStorage implements Storage with a single JSON file.
type FileStorage struct {
	filePath string
	store    StudyStore
	logger   *zap.Logger
	mu       sync.RWMutex
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a FileStorage for filePath. Call Load before use.
func NewFileStorage(filePath string, logger *zap.Logger) *FileStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Creating file storage", zap.String("path", filePath))
	return &FileStorage{
		filePath: filePath,
		store:    StudyStore{Items: make(map[string]review.Item)},
		logger:   logger,
	}
}

// prepareItem validates an item and returns a deep copy with a normalized record.
func prepareItem(item review.Item) (review.Item, error) {
	if item.Kind == "" {
		return review.Item{}, errors.New("item kind is required")
	}
	out, err := cloneItem(item)
	if err != nil {
		return review.Item{}, err
	}
	review.EnsureRecord(&out)
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	if out.Lectures == nil {
		out.Lectures = []review.LectureRef{}
	}
	return out, nil
}

// cloneItem deep-copies an item through its JSON form, which also migrates SR.
func cloneItem(item review.Item) (review.Item, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return review.Item{}, fmt.Errorf("failed to encode item %s: %w", item.ID, err)
	}
	var out review.Item
	if err := json.Unmarshal(data, &out); err != nil {
		return review.Item{}, fmt.Errorf("failed to decode item %s: %w", item.ID, err)
	}
	return out, nil
}

// CreateItem stores a new item. An empty ID is replaced with a fresh UUID.
func (fs *FileStorage) CreateItem(ctx context.Context, item review.Item) (review.Item, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	prepared, err := prepareItem(item)
	if err != nil {
		return review.Item{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.store.Items[prepared.ID]; exists {
		return review.Item{}, ErrItemExists
	}
	fs.store.Items[prepared.ID] = prepared
	fs.store.LastUpdated = time.Now()
	fs.logger.Debug("Created item", zap.String("item_id", prepared.ID), zap.String("kind", prepared.Kind))

	return cloneItem(prepared)
}

// GetItem retrieves an item by ID.
func (fs *FileStorage) GetItem(ctx context.Context, id string) (review.Item, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	item, exists := fs.store.Items[id]
	if !exists {
		return review.Item{}, ErrItemNotFound
	}
	return cloneItem(item)
}

// UpdateItem replaces an existing item, including its review record.
func (fs *FileStorage) UpdateItem(ctx context.Context, item review.Item) error {
	prepared, err := prepareItem(item)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.store.Items[prepared.ID]; !exists {
		return ErrItemNotFound
	}
	fs.store.Items[prepared.ID] = prepared
	fs.store.LastUpdated = time.Now()
	return nil
}

// DeleteItem removes an item by ID.
func (fs *FileStorage) DeleteItem(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.store.Items[id]; !exists {
		return ErrItemNotFound
	}
	delete(fs.store.Items, id)
	fs.store.LastUpdated = time.Now()
	return nil
}

// ListItems returns items sorted by ID, filtered by kind unless kind is "".
func (fs *FileStorage) ListItems(ctx context.Context, kind string) ([]review.Item, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	result := make([]review.Item, 0, len(fs.store.Items))
	for _, item := range fs.store.Items {
		if kind != "" && item.Kind != kind {
			continue
		}
		clone, err := cloneItem(item)
		if err != nil {
			return nil, err
		}
		result = append(result, clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetSettings returns the stored settings, or the defaults if none were saved.
func (fs *FileStorage) GetSettings(ctx context.Context) (Settings, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.store.Settings == nil {
		return DefaultSettings(), nil
	}
	return *fs.store.Settings, nil
}

// SaveSettings replaces the settings record. The ID is always SettingsID.
func (fs *FileStorage) SaveSettings(ctx context.Context, settings Settings) error {
	settings.ID = SettingsID
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.store.Settings = &settings
	fs.store.LastUpdated = time.Now()
	return nil
}

// ReviewSteps returns the raw review-steps setting.
func (fs *FileStorage) ReviewSteps(ctx context.Context) (any, error) {
	settings, err := fs.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return settings.ReviewSteps, nil
}

// save writes the store to disk. The caller must hold the write lock.
func (fs *FileStorage) save() error {
	if fs.store.Items == nil {
		fs.store.Items = make(map[string]review.Item)
	}
	fs.store.LastUpdated = time.Now()

	dataBytes, err := json.MarshalIndent(fs.store, "", "  ")
	if err != nil {
		fs.logger.Error("Error marshaling store", zap.Error(err))
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file, then rename over the target.
	tempFile := fs.filePath + ".tmp"
	if err := os.WriteFile(tempFile, dataBytes, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	fs.logger.Debug("Saved store", zap.String("path", fs.filePath), zap.Int("items", len(fs.store.Items)))
	return nil
}

// Load reads the store from disk, creating an empty file if none exists.
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		fs.logger.Info("Store file not found, initializing empty store", zap.String("path", fs.filePath))
		fs.store = StudyStore{Items: make(map[string]review.Item)}
		if saveErr := fs.save(); saveErr != nil {
			return fmt.Errorf("failed to save initial empty store: %w", saveErr)
		}
		return nil
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(data) == 0 {
		fs.store = StudyStore{Items: make(map[string]review.Item)}
		return nil
	}

	var store StudyStore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("failed to unmarshal storage data: %w", err)
	}
	if store.Items == nil {
		store.Items = make(map[string]review.Item)
	}
	for id, item := range store.Items {
		// Keys win over a missing or stale embedded ID.
		item.ID = id
		review.EnsureRecord(&item)
		store.Items[id] = item
	}

	fs.store = store
	fs.logger.Debug("Loaded store", zap.String("path", fs.filePath), zap.Int("items", len(fs.store.Items)))
	return nil
}

// Save writes the store to disk atomically.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}

// Close is a no-op for file storage; call Save to persist.
func (fs *FileStorage) Close() error {
	return nil
}
