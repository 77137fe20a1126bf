package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
	"github.com/danieldreier/mcp-study/internal/sections"
	"github.com/danieldreier/mcp-study/internal/storage"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("study", pflag.ContinueOnError)
	flags.String("file", "./study.json", "")
	flags.String("backend", BackendJSON, "")
	flags.String("log-level", "info", "")
	return flags
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(newViper(), testFlags(), "")
		require.NoError(t, err)
		assert.Equal(t, "./study.json", cfg.File)
		assert.Equal(t, BackendJSON, cfg.Backend)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Empty(t, cfg.Sections)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("STUDY_BACKEND", "SQLite")
		t.Setenv("STUDY_LOG_LEVEL", "debug")
		cfg, err := loadConfig(newViper(), testFlags(), "")
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, cfg.Backend)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("STUDY_FILE", "/from/env.json")
		flags := testFlags()
		require.NoError(t, flags.Parse([]string{"--file", "/from/flag.json"}))
		cfg, err := loadConfig(newViper(), flags, "")
		require.NoError(t, err)
		assert.Equal(t, "/from/flag.json", cfg.File)
	})

	t.Run("config file with section overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "study.yaml")
		content := "backend: sqlite\n" +
			"file: /data/study.db\n" +
			"sections:\n" +
			"  drug:\n" +
			"    - key: moa\n" +
			"      label: Mechanism of Action\n" +
			"    - key: pearls\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := loadConfig(newViper(), testFlags(), path)
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, cfg.Backend)
		assert.Equal(t, "/data/study.db", cfg.File)
		assert.Equal(t, []review.SectionDef{
			{Key: "moa", Label: "Mechanism of Action"},
			{Key: "pearls"},
		}, cfg.Sections["drug"])

		catalog := sections.NewCatalog(cfg.Sections)
		assert.Equal(t, "pearls", catalog.Label("drug", "pearls"))
	})

	t.Run("errors", func(t *testing.T) {
		t.Setenv("STUDY_BACKEND", "postgres")
		_, err := loadConfig(newViper(), testFlags(), "")
		assert.Error(t, err)

		_, err = loadConfig(newViper(), testFlags(), filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}

// runCommand executes the root command with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	for _, backend := range []string{BackendJSON, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "study-data")
			cfg := Config{File: path, Backend: backend}

			store, err := openStorage(cfg, zap.NewNop())
			require.NoError(t, err)
			item, err := store.CreateItem(context.Background(), review.Item{
				Kind:   sections.KindDrug,
				Name:   "Vancomycin",
				Fields: map[string]any{"moa": "binds D-Ala-D-Ala", "uses": "MRSA"},
			})
			require.NoError(t, err)
			require.NoError(t, store.Save())
			require.NoError(t, store.Close())

			flags := []string{"--file", path, "--backend", backend, "--log-level", "error"}

			out, err := runCommand(t, append(flags, "rate", item.ID, "moa", "hard")...)
			require.NoError(t, err)
			var rated RateSectionResponse
			require.NoError(t, json.Unmarshal([]byte(out), &rated), out)
			assert.Equal(t, review.Hard, rated.State.LastRating)
			assert.Equal(t, 1, rated.State.Streak)

			out, err = runCommand(t, append(flags, "upcoming", "--kind", "drug")...)
			require.NoError(t, err)
			var upcoming SectionsResponse
			require.NoError(t, json.Unmarshal([]byte(out), &upcoming), out)
			require.Equal(t, 1, upcoming.Count)
			assert.Equal(t, "moa", upcoming.Sections[0].SectionKey)
			assert.Equal(t, "Vancomycin", upcoming.Sections[0].ItemName)

			out, err = runCommand(t, append(flags, "due", "--stats")...)
			require.NoError(t, err)
			var due SectionsResponse
			require.NoError(t, json.Unmarshal([]byte(out), &due), out)
			assert.Equal(t, 0, due.Count)
			require.NotNil(t, due.Stats)
			assert.Equal(t, 1, due.Stats.UnseenSections)

			_, err = runCommand(t, append(flags, "rate", item.ID, "moa")...)
			assert.Error(t, err)

			_, err = runCommand(t, append(flags, "rate", "missing", "moa", "good")...)
			assert.ErrorIs(t, err, storage.ErrItemNotFound)
		})
	}
}
