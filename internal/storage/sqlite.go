package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danieldreier/mcp-study/internal/review"
)

// SQLiteStorage implements Storage on a SQLite database. Every write is
// committed immediately, so Save is a no-op.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates the database at dbPath and applies the schema.
func NewSQLiteStorage(dbPath string, logger *zap.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers on the same file.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.Load(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Opened sqlite storage", zap.String("path", dbPath))
	return s, nil
}

// Load applies the schema. It is safe to call repeatedly.
func (s *SQLiteStorage) Load() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);

	CREATE TABLE IF NOT EXISTS settings (
		id   TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Save is a no-op; writes are committed as they happen.
func (s *SQLiteStorage) Save() error {
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeItem(item review.Item) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	return string(data), nil
}

func decodeItem(id, data string) (review.Item, error) {
	var item review.Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return review.Item{}, fmt.Errorf("decode item %s: %w", id, err)
	}
	item.ID = id
	review.EnsureRecord(&item)
	return item, nil
}

// CreateItem inserts a new item. An empty ID is replaced with a fresh UUID.
func (s *SQLiteStorage) CreateItem(ctx context.Context, item review.Item) (review.Item, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	prepared, err := prepareItem(item)
	if err != nil {
		return review.Item{}, err
	}
	data, err := encodeItem(prepared)
	if err != nil {
		return review.Item{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, kind, data, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		prepared.ID, prepared.Kind, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return review.Item{}, fmt.Errorf("insert item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return review.Item{}, ErrItemExists
	}
	s.logger.Debug("Created item", zap.String("item_id", prepared.ID), zap.String("kind", prepared.Kind))
	return prepared, nil
}

// GetItem retrieves an item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (review.Item, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM items WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Item{}, ErrItemNotFound
	}
	if err != nil {
		return review.Item{}, fmt.Errorf("get item: %w", err)
	}
	return decodeItem(id, data)
}

// UpdateItem replaces an existing item, including its review record.
func (s *SQLiteStorage) UpdateItem(ctx context.Context, item review.Item) error {
	prepared, err := prepareItem(item)
	if err != nil {
		return err
	}
	data, err := encodeItem(prepared)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET kind = ?, data = ?, updated_at = ? WHERE id = ?`,
		prepared.Kind, data, time.Now().UTC().Format(time.RFC3339Nano), prepared.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an item by ID.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ListItems returns items sorted by ID, filtered by kind unless kind is "".
func (s *SQLiteStorage) ListItems(ctx context.Context, kind string) ([]review.Item, error) {
	query := `SELECT id, data FROM items ORDER BY id`
	args := []any{}
	if kind != "" {
		query = `SELECT id, data FROM items WHERE kind = ? ORDER BY id`
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []review.Item{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item, err := decodeItem(id, data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetSettings returns the stored settings, or the defaults if none were saved.
func (s *SQLiteStorage) GetSettings(ctx context.Context) (Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = ?`, SettingsID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	settings.ID = SettingsID
	return settings, nil
}

// SaveSettings replaces the settings record.
func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings Settings) error {
	settings.ID = SettingsID
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		SettingsID, string(data))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ReviewSteps returns the raw review-steps setting.
func (s *SQLiteStorage) ReviewSteps(ctx context.Context) (any, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return settings.ReviewSteps, nil
}
