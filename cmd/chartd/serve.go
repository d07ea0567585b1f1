package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"signalchart/config"
	"signalchart/internal/chart"
	"signalchart/internal/gateway"
	"signalchart/internal/logger"
	"signalchart/internal/metrics"
	"signalchart/internal/model"
	"signalchart/internal/notification"
	"signalchart/internal/scheduler"
	"signalchart/internal/sim"
	redisstore "signalchart/internal/store/redis"
	sqlitestore "signalchart/internal/store/sqlite"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chart gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.ListenAddr = addr
			}
			if noRedis, _ := cmd.Flags().GetBool("no-redis"); noRedis {
				cfg.RedisAddr = ""
			}
			demo, err := demoFlags(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg, demo)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	cmd.Flags().Bool("no-redis", false, "Run without the Redis cache and Pub/Sub feed")
	cmd.Flags().String("demo", "", "Comma-separated chart ids fed with simulated bars")
	addDemoFlags(cmd)
	return cmd
}

// healthObserver records render liveness on top of the Prometheus observer.
type healthObserver struct {
	*metrics.Metrics
	health *metrics.HealthStatus
}

func (o healthObserver) Rendered(id string, s chart.Stats) {
	o.health.SetLastFrameTime(time.Now())
	o.Metrics.Rendered(id, s)
}

func runServe(cfg *config.Config, demo demoOptions) error {
	processStart := time.Now()
	logger.Init("chartd", cfg.SlogLevel(), nil)
	slog.Info("[chartd] starting", slog.String("listen", cfg.ListenAddr), slog.String("charts", cfg.Charts))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, err := chart.LoadOptions(cfg.ChartOptionsPath)
	if err != nil {
		log.Printf("[chartd] WARNING: %v, using default layout", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()

	// Durable store
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return err
	}
	defer store.Close()
	health.AddProbe("sqlite", func(ctx context.Context) error { return store.DB().PingContext(ctx) })
	checks := map[string]gateway.HealthCheck{
		"sqlite": func(ctx context.Context) error { return store.DB().PingContext(ctx) },
	}
	writers := map[string]model.FrameWriter{"sqlite": store}

	// Optional Redis cache and Pub/Sub feed
	var cache *redisstore.FrameCache
	if cfg.RedisAddr != "" {
		cache, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[chartd] WARNING: %v, continuing without redis", err)
			cache = nil
		} else {
			defer cache.Close()
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				m.SetBreakerState(int(to))
				log.Printf("[chartd] redis breaker %s -> %s", from, to)
			}
			buffered := redisstore.NewBufferedCache(cache, cb, 0)
			buffered.OnBuffer = func() { m.BufferedWrites.Inc() }
			buffered.OnFlush = func(n int) { log.Printf("[chartd] flushed %d held redis writes", n) }

			writers["redis"] = buffered
			health.AddProbe("redis", cache.Ping)
			checks["redis"] = cache.Ping
			log.Printf("[chartd] redis connected at %s", cfg.RedisAddr)
		}
	}

	// Hub and pump
	hub := gateway.NewHub()
	hub.OnDrop = func() { m.WSDropsTotal.Inc() }
	hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }

	pumpCfg := gateway.PumpConfig{
		RingSize: cfg.RingSize,
		Options:  opts,
		Modes:    cfg.ParseCharts(),
		Writers:  writers,
		Observer: healthObserver{Metrics: m, health: health},
		Metrics:  m,
	}
	if cfg.AlertsEnabled() {
		watcher := notification.NewWatcher(buildNotifier(cfg))
		watcher.OnSent = m.AlertSent
		go watcher.Run(ctx)
		pumpCfg.Watcher = watcher
	}
	pump := gateway.NewFramePump(hub, pumpCfg)

	n, err := pump.Restore(ctx, store)
	if err != nil {
		log.Printf("[chartd] WARNING: %v", err)
	}
	if n == 0 && cache != nil {
		if n, err = pump.Restore(ctx, cache); err != nil {
			log.Printf("[chartd] WARNING: %v", err)
		}
	}
	log.Printf("[chartd] restored %d charts", n)

	go pump.Run(ctx)
	if cache != nil {
		router := gateway.NewPubSubRouter(cache, pump)
		go func() {
			if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[chartd] ERROR: pubsub feed stopped: %v", err)
			}
		}()
	}
	go hub.StartMetricsBroadcast(ctx, processStart, 2*time.Second)
	if walkers := demo.walkers(); len(walkers) > 0 {
		log.Printf("[chartd] demo feed for %d charts every %s", len(walkers), demo.interval)
		go sim.Run(ctx, walkers, demo.interval, func(f model.Frame) error { return pump.Submit(f, "demo") })
	}

	if cfg.Retention > 0 {
		sched := scheduler.New(ctx, pump)
		sched.OnPrune = func(n int) { m.ChartsPruned.Add(float64(n)) }
		if err := sched.RegisterRetention(cfg.RetentionCron, cfg.Retention); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("[chartd] retention: charts idle for %s are destroyed (%s)", cfg.Retention, cfg.RetentionCron)
	}

	// Prometheus + /healthz
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer)
	metricsSrv.Start()
	go health.StartLivenessChecker(ctx, 15*time.Second)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, pump, checks, processStart)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           logger.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[chartd] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("[chartd] received %v, shutting down...", sig)
	case err := <-errCh:
		log.Printf("[chartd] ERROR: http server: %v", err)
		cancel()
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[chartd] stopped")
	return nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	var backends notification.Multi
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(backends) == 0 {
		return notification.LogNotifier{}
	}
	return backends
}
