package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/app"
	"github.com/gastown-ops/rigwatch/internal/config"
	"github.com/gastown-ops/rigwatch/internal/history"
	"github.com/gastown-ops/rigwatch/internal/ingest"
	"github.com/gastown-ops/rigwatch/internal/lifecycle"
	"github.com/gastown-ops/rigwatch/internal/logging"
	"github.com/gastown-ops/rigwatch/internal/otelx"
)

const shutdownStepTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rigwatch service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), nil)

	ctl := lifecycle.New(shutdownStepTimeout, logger.Std())
	ctx := ctl.WatchSignals(context.Background())

	shutdownTracing, err := otelx.Setup(ctx, os.Stderr)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	ctl.Register("tracing", shutdownTracing)

	historyStore, err := openHistoryStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	ctl.Register("history store", func(context.Context) error { return historyStore.Close() })

	ruleStore := alerting.NewRuleStore(cfg.RulesPath)

	cooldown, err := cooldownStore(cfg, ctl)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	a, err := app.New(app.Config{
		GTDir:         cfg.GTDir,
		HistoryStore:  historyStore,
		RuleStore:     ruleStore,
		CooldownStore: cooldown,
		PollerConfig:  pollerConfig(cfg),
		Logger:        logger.Std(),
	})
	if err != nil {
		return fmt.Errorf("constructing app: %w", err)
	}
	ctl.Register("app", func(context.Context) error { a.Close(); return nil })

	go a.Metrics.Run(ctx)
	go a.RunForecastSampler(ctx)
	go a.Poller.Run(ctx)

	fwStop := lifecycle.StopChanFromContext(ctx)
	go func() {
		if err := a.FileWatcher.Run(fwStop); err != nil {
			logger.Errorf("file watcher stopped: %v", err)
		}
	}()

	lwStop := lifecycle.StopChanFromContext(ctx)
	go func() {
		if err := a.LogsWatcher.Run(lwStop); err != nil {
			logger.Errorf("logs watcher stopped: %v", err)
		}
	}()

	hubStop := lifecycle.StopChanFromContext(ctx)
	go a.Hub.Run(hubStop)
	ctl.Register("fan-out hub", func(context.Context) error {
		a.Hub.Shutdown(1 * time.Second)
		return nil
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: rootHandler(a),
	}
	ctl.Register("http server", server.Shutdown)

	logger.Printf("[rigwatch] serving on :%d (gt_dir=%s)", cfg.Port, cfg.GTDir)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	<-ctl.Done()
	return nil
}

// rootHandler combines the Read API's mux with the Fan-out Hub's /ws
// upgrade endpoint.
func rootHandler(a *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", a.HTTP.Handler())
	mux.Handle("/ws", a.Hub)
	return mux
}

func pollerConfig(cfg config.Config) ingest.PollerConfig {
	pc := ingest.DefaultPollerConfig(cfg.GTDir)
	pc.Interval = cfg.PollInterval
	return pc
}

func openHistoryStore(ctx context.Context, cfg config.Config) (history.Store, error) {
	if cfg.PostgresDSN != "" {
		return history.NewPostgresStore(ctx, cfg.PostgresDSN)
	}
	return history.NewJSONStore(cfg.HistoryPath, nil)
}

// cooldownStore returns a Redis-backed alert cooldown store when
// cfg.RedisAddr is set, so a cooldown survives a restart and stays
// consistent across rigwatch replicas; otherwise nil, letting app.New
// fall back to its in-memory default.
func cooldownStore(cfg config.Config, ctl *lifecycle.Controller) (alerting.CooldownStore, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	ctl.Register("redis client", func(context.Context) error { return client.Close() })
	return alerting.NewRedisCooldownStore(client), nil
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		gtDir := os.Getenv("GT_DIR")
		if gtDir == "" {
			gtDir = os.Getenv("HOME") + "/.gt"
		}
		path = config.DefaultConfigPath(gtDir)
	}
	return config.Load(path)
}
