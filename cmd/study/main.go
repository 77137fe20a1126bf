package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
	"github.com/danieldreier/mcp-study/internal/sections"
	"github.com/danieldreier/mcp-study/internal/storage"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what a command needs once configuration is resolved.
type app struct {
	v          *viper.Viper
	configFile string

	cfg     Config
	logger  *zap.Logger
	store   storage.Storage
	service *StudyService
}

// NewRootCommand creates the study command tree. Running it without a
// subcommand serves MCP over stdio.
func NewRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	rootCmd := &cobra.Command{
		Use:           "study",
		Short:         "Spaced-repetition review of study sections",
		Long:          "Schedules per-section review of study items and serves the schedule over MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			return a.serve()
		}),
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().String("file", "./study.json", "Path to the study data file or database")
	rootCmd.PersistentFlags().String("backend", BackendJSON, "Storage backend: json or sqlite")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newDueCommand(a))
	rootCmd.AddCommand(newUpcomingCommand(a))
	rootCmd.AddCommand(newRateCommand(a))

	return rootCmd
}

// withStore wraps run so that configuration and storage are opened before it
// and the storage is closed after it, whether or not run fails.
func (a *app) withStore(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd); err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, cmd.Flags(), a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	a.store = store

	catalog := sections.NewCatalog(cfg.Sections)
	a.service = NewStudyService(store, catalog, logger)
	logger.Debug("Opened study storage",
		zap.String("backend", cfg.Backend),
		zap.String("file", cfg.File),
		zap.Strings("kinds", catalog.Kinds()))
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// openStorage creates and loads the configured backend.
func openStorage(cfg Config, logger *zap.Logger) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.Backend {
	case BackendSQLite:
		s, err := storage.NewSQLiteStorage(cfg.File, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("error opening sqlite storage: %w", err)
		}
		store = s
	default:
		store = storage.NewFileStorage(cfg.File, logger.Named("file"))
	}
	if err := store.Load(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("error loading storage: %w", err)
	}
	return store, nil
}

func (a *app) serve() error {
	s := newMCPServer(a.service)
	a.logger.Info("Serving study MCP over stdio", zap.String("file", a.cfg.File))
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("error serving MCP server: %w", err)
	}
	return nil
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the study tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			return a.serve()
		}),
	}
}

func newDueCommand(a *app) *cobra.Command {
	var kinds []string
	var withStats bool
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List sections due for review now",
		Args:  cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entries, err := a.service.DueSections(ctx, kinds)
			if err != nil {
				return err
			}
			response := SectionsResponse{Sections: newSectionEntries(entries), Count: len(entries)}
			if withStats {
				stats := a.service.Stats(ctx, kinds)
				response.Stats = &stats
			}
			return printJSON(cmd.OutOrStdout(), response)
		}),
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Only include these item kinds")
	cmd.Flags().BoolVar(&withStats, "stats", false, "Include review statistics")
	return cmd
}

func newUpcomingCommand(a *app) *cobra.Command {
	var kinds []string
	var limit int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List scheduled sections that are not yet due",
		Args:  cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			entries, err := a.service.UpcomingSections(cmd.Context(), kinds, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), SectionsResponse{Sections: newSectionEntries(entries), Count: len(entries)})
		}),
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Only include these item kinds")
	cmd.Flags().IntVarP(&limit, "limit", "n", review.DefaultUpcomingLimit, "Maximum number of sections (0 for all)")
	return cmd
}

func newRateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <item-id> <section-key> <rating>",
		Short: "Rate one section: again, hard, good, easy or retire",
		Args:  cobra.ExactArgs(3),
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			itemID, sectionKey, rating := args[0], args[1], review.ParseRating(args[2])
			state, err := a.service.RateSection(cmd.Context(), itemID, sectionKey, rating)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), RateSectionResponse{
				Success:    true,
				Message:    fmt.Sprintf("Rated %s of item %s as %s", sectionKey, itemID, rating),
				ItemID:     itemID,
				SectionKey: sectionKey,
				State:      state,
				DueAt:      dueTime(state.Due),
			})
		}),
	}
}

func printJSON(w io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}
