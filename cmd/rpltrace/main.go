// cmd/rpltrace/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/signalnine/rpltrace/internal/config"
	"github.com/signalnine/rpltrace/internal/logging"
	"github.com/signalnine/rpltrace/internal/report"
	"github.com/signalnine/rpltrace/internal/run"
	"github.com/signalnine/rpltrace/internal/store"
	"github.com/signalnine/rpltrace/internal/trace"
)

var version = "dev"

var (
	cfgFile    string
	verbose    bool
	force      bool
	formatFlag string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "rpltrace",
	Short:         "RPL simulation log analysis",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger("info")
		config.LoadEnv(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if formatFlag != "" {
			cfg.Format = formatFlag
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger.SetLevel(logging.ParseLevel(level))
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <run-dir>...",
	Short: "Parse runs and write a report page per run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := loadRuns(cmd.Context(), args)
		if err != nil {
			return err
		}

		metrics := report.NewRunMetrics()
		for _, r := range runs {
			rep, err := buildReport(r)
			if err != nil {
				return err
			}
			path, err := rep.WriteFile(cfg.ReportDir, r.Meta.JobID)
			if err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			logger.WithFields(logging.Fields{"job": r.Meta.JobID, "path": path}).Info("Report written")
			metrics.Observe(r.Meta.JobID, rep, r.Result.Stats)
		}

		if cfg.MetricsFile != "" {
			if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
			logger.WithField("path", cfg.MetricsFile).Info("Metrics written")
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <run-dir>...",
	Short: "Parse runs and print their global statistics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := loadRuns(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, r := range runs {
			rep, err := buildReport(r)
			if err != nil {
				return err
			}
			report.PrintSummary(cmd.OutOrStdout(), r.Meta.JobID, rep, r.Result.Stats)
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the parsed-run cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d lines\t%s\t%s\n",
				run.JobID(r.Dir), r.ParsedAt.Format("2006-01-02 15:04:05"), r.Stats.Lines, r.Options, r.Dir)
		}
		return nil
	},
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop <run-dir>...",
	Short: "Remove runs from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, dir := range args {
			meta, err := run.ReadMeta(dir)
			if err != nil {
				return err
			}
			if err := db.DeleteRun(meta.Dir); err != nil {
				return fmt.Errorf("drop %s: %w", dir, err)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "log format: auto|full|basic")

	for _, cmd := range []*cobra.Command{reportCmd, summaryCmd} {
		cmd.Flags().BoolVarP(&force, "force", "f", false, "re-parse logs even if cached")
	}

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheDropCmd)

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func openCache() (*store.DB, error) {
	if cfg.CachePath == "" {
		return nil, errors.New("no cache_path configured")
	}
	db, err := store.NewDB(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return db, nil
}

func loadRuns(ctx context.Context, dirs []string) ([]*run.Run, error) {
	format, err := trace.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	loader := &run.Loader{
		Options: trace.Options{
			Format:        format,
			CorrelateByID: cfg.CorrelateBy == config.CorrelateByID,
		},
		Force:   force,
		Workers: cfg.Workers,
		Log:     logger,
	}

	if cfg.CachePath != "" {
		db, err := openCache()
		if err != nil {
			return nil, err
		}
		defer db.Close()
		loader.Cache = db
	}

	return loader.Load(ctx, dirs)
}

func buildReport(r *run.Run) (*report.Report, error) {
	rep, err := report.Build(r.Meta, r.Result, report.Options{
		Setup:        cfg.Setup,
		Commit:       cfg.Commit,
		TrimInflight: cfg.TrimInflight,
		Bucket:       cfg.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("build report for %s: %w", r.Meta.JobID, err)
	}
	return rep, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
