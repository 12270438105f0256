package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"markin/internal/config"
	"markin/internal/dashboard"
	"markin/internal/stats"
	"markin/internal/storage"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates the markinctl command tree. Flag defaults come from
// the same environment variables the server reads.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "markinctl",
		Short: "markin - volunteering statistics dashboard tooling",
		Long: `markinctl loads the statistics dashboard from the terminal and
inspects the fetch log kept by the markin server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	LoadEnvFile()
	cfg := config.Load()

	rootCmd.AddCommand(newStatsCommand(cfg))
	rootCmd.AddCommand(newFetchesCommand(cfg))
	rootCmd.AddCommand(newMigrateCommand(cfg))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := SignalContext(context.Background())
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newStatsCommand(cfg *config.Config) *cobra.Command {
	var (
		url     string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch the statistics once and print the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := stats.NewClient(url, stats.WithTimeout(timeout))
			st, err := dashboard.Load(cmd.Context(), client)
			if err != nil {
				return fmt.Errorf("load dashboard: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(st); err != nil {
					return err
				}
			} else {
				NewPrinter(cmd.OutOrStdout()).Dashboard(st, time.Now().Year())
			}

			if st.Phase == dashboard.PhaseError {
				return errors.New(st.Reason.Message())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", cfg.StatsAPIURL, "Statistics endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", cfg.StatsAPITimeout, "Request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the dashboard state as JSON")
	return cmd
}

func newFetchesCommand(cfg *config.Config) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "fetches",
		Short: "List recent upstream fetches from the SQLite fetch log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("invalid --limit %d: must be at least 1", limit)
			}
			repo, err := storage.NewSQLiteRepository(dbPath)
			if err != nil {
				return fmt.Errorf("open fetch log: %w", err)
			}
			defer repo.Close()

			records, err := repo.RecentFetches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			NewPrinter(cmd.OutOrStdout()).FetchRecords(records, time.Now())

			pending, err := repo.PendingExportCount(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d pending export\n", pending)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.SQLiteDBPath, "Path to the SQLite fetch log")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of fetches to show")
	return cmd
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending fetch log migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
			status, err := storage.Migrate(dbPath)
			if err != nil {
				return err
			}
			state := "up to date"
			if status.Changed {
				state = "migrated"
			}
			if status.Dirty {
				state += ", dirty"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", status.Version, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.SQLiteDBPath, "Path to the SQLite fetch log")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "markinctl v%s (%s)\n", Version, GitCommit)
		},
	}
}
