package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/pkg/alerts"
	"github.com/amosWeiskopf/seowatch/pkg/audit"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
	"github.com/amosWeiskopf/seowatch/pkg/monitor"
	"github.com/amosWeiskopf/seowatch/pkg/notify"
	"github.com/amosWeiskopf/seowatch/pkg/ranking"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/scheduler"
	"github.com/amosWeiskopf/seowatch/pkg/snapshot"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "seowatch",
	Short: "SEOWatch - SEO audit, scoring and monitoring",
	Long: `SEOWatch audits web pages, scores them per category, tracks keyword
rankings and raises alerts when scores drop or data sources fail.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	store    store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	provider *ranking.Client
	syncer   *ranking.Syncer
	alerts   *alerts.Manager
	pipeline *monitor.Pipeline
	sched    *scheduler.Scheduler
	redis    *goredis.Client
}

// newApp loads configuration and wires the components. One-shot commands
// log to stderr so their stdout stays machine readable.
func newApp(cmd *cobra.Command, longRunning bool) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !longRunning && (cfg.Logging.OutputPath == "" || cfg.Logging.OutputPath == "stdout") {
		cfg.Logging.OutputPath = "stderr"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	switch cfg.Storage.Type {
	case "postgres":
		pg, err := store.Connect(cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		a.store = pg
	default:
		if !longRunning {
			logger.Warn("Using in-memory storage; nothing is kept after this command exits")
		}
		a.store = store.NewMemory()
	}

	fetcher := snapshot.New(snapshot.Options{
		UserAgent:       cfg.Fetcher.UserAgent,
		Timeout:         cfg.Fetcher.Timeout,
		RequestsPerSec:  cfg.Fetcher.RequestsPerSecond,
		FollowRobotsTxt: cfg.Fetcher.FollowRobotsTxt,
		MaxBodyBytes:    cfg.Fetcher.MaxBodyBytes,
	}, logger)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if cfg.Notifications.SMTPHost != "" {
		dispatcher = notify.NewEmailDispatcher(notify.NewSMTPSender(cfg.Notifications), cfg.Notifications.RatePerSecond, logger)
	}

	a.provider = ranking.NewClient(cfg.Provider, logger)
	a.syncer = ranking.NewSyncer(a.provider, a.store, a.store, logger, a.metrics)
	a.alerts = alerts.NewManager(a.store, a.store, dispatcher, logger, alerts.WithMetrics(a.metrics))

	runner := audit.NewRunner(fetcher, a.store, logger, audit.WithMetrics(a.metrics))
	a.pipeline = monitor.New(runner, a.store, a.store, rules.NewEngine(logger, a.metrics), a.alerts, logger,
		monitor.WithSyncer(a.syncer))

	opts := []scheduler.Option{
		scheduler.WithLockTTL(cfg.Scheduler.LockTTL),
		scheduler.WithSweepSpec(cfg.Scheduler.SweepSpec),
		scheduler.WithSignalHandler(a.pipeline.SignalHandler()),
		scheduler.WithMetrics(a.metrics),
	}
	if cfg.Redis.Addr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(a.redis, logger)))
	}
	a.sched = scheduler.New(a.store, logger, opts...)
	a.pipeline.RegisterJobs(a.sched)

	return a, nil
}

// Close releases storage and redis connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
}

// withApp wraps a RunE so it receives a wired app
func withApp(longRunning bool, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, longRunning)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
