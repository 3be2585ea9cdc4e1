// Package cli implements the rxctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cache"
	"prescription-analytics-api/internal/config"
	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/services"
	"prescription-analytics-api/internal/session"
	"prescription-analytics-api/pkg/logger"
)

// Flags holds the global flags shared by every command
type Flags struct {
	DataPath string
	LogLevel string
	JSON     bool
}

// app is what PersistentPreRunE builds for the subcommands
type app struct {
	flags   *Flags
	config  *config.Config
	logger  *logrus.Logger
	service *services.AnalyticsService
}

// NewRootCmd creates an isolated root command instance
func NewRootCmd() *cobra.Command {
	flags := &Flags{LogLevel: "warn"}
	rt := &app{flags: flags}

	cmd := &cobra.Command{
		Use:   "rxctl",
		Short: "Analyse NHS prescription costs from the command line",
		Long: `rxctl loads a monthly prescription cost summary (CSV or XLSX, falling back
to a deterministic synthetic dataset) and runs forecasting, backtesting,
fairness, outlier and clustering analyses against it.`,
		PersistentPreRunE: rt.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	cmd.PersistentFlags().StringVar(&flags.DataPath, "data", "", "Path to the monthly summary CSV or XLSX (default from DATASET_PATH)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Print results as JSON")

	cmd.AddCommand(
		newSummaryCmd(rt),
		newForecastCmd(rt),
		newBacktestCmd(rt),
		newFairnessCmd(rt),
		newOutliersCmd(rt),
		newClustersCmd(rt),
		newExportCmd(rt),
	)

	return cmd
}

// Execute runs the CLI until completion or interrupt
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func (rt *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(strings.ToLower(rt.flags.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", rt.flags.LogLevel, err)
	}

	cfg := config.Load()
	cfg.Logger.Output = "stderr"
	cfg.Logger.Format = "text"
	cfg.Logger.Level = level.String()
	if rt.flags.DataPath != "" {
		cfg.Dataset.Path = rt.flags.DataPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rt.config = cfg
	rt.logger = logger.New(cfg.Logger)
	rt.service = newService(cfg, rt.logger)
	return nil
}

// newService wires an analytics service with a process-local cache and a
// private metrics registry
func newService(cfg *config.Config, log *logrus.Logger) *services.AnalyticsService {
	loader := dataset.NewLoader(dataset.LoaderConfig{
		Path:            cfg.Dataset.Path,
		Sheet:           cfg.Dataset.Sheet,
		FallbackEnabled: cfg.Dataset.FallbackEnabled,
		Seed:            cfg.Dataset.Seed,
	}, log)

	forecaster := forecast.NewForecaster(forecast.DefaultConfig(), log)
	generator := backtest.NewGenerator(forecaster, backtest.Config{
		TestPeriods: cfg.Analytics.TestPeriods,
		Workers:     cfg.Analytics.Workers,
		Seed:        cfg.Dataset.Seed,
	}, log)

	cacheConfig := cache.DefaultConfig()
	cacheConfig.MaxLocalSize = cfg.Cache.LocalSize

	return services.NewAnalyticsService(
		session.NewStore(loader, log),
		cache.NewManager(cacheConfig, nil, log),
		forecaster,
		generator,
		monitoring.NewPrometheusMetrics(prometheus.NewRegistry()),
		services.Defaults{
			Horizon:       cfg.Analytics.ForecastHorizon,
			TestPeriods:   cfg.Analytics.TestPeriods,
			Threshold:     cfg.Analytics.Threshold,
			Contamination: cfg.Analytics.Contamination,
			Clusters:      cfg.Analytics.Clusters,
		},
		log,
	)
}
