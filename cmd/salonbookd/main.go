package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"salonbook/internal/booking"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/metrics"
	"salonbook/internal/notify"
	"salonbook/internal/schedule"
	"salonbook/internal/seeder"
	"salonbook/internal/waitlist"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SALONBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := schedule.NewResolver(db, &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Redis.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		resolver.UseCache(schedule.NewWindowCache(rdb, cfg.WindowCacheTTL()))
	}

	bus := events.NewEventBus()

	arbiter := booking.NewArbiter(db, booking.Rules{
		MinAdvance: cfg.BookingMinAdvance(),
		MaxAdvance: cfg.BookingMaxAdvance(),
	}, &logger)
	arbiter.UseBus(bus)
	arbiter.UseWindows(resolver)

	waitlist.NewMatcher(db, &logger).Subscribe(bus)

	if cfg.Seeder.Enabled {
		s := seeder.New(db, resolver, arbiter, cfg.Seeder.Providers,
			cfg.SeedHorizonDays(), cfg.SlotDurationDefault(), &logger)
		go s.Run(ctx, cfg.SeedInterval())
	}

	dispatcher := notify.NewDispatcher(db, &notify.LogSender{Logger: &logger}, notify.DispatcherOptions{
		RatePerSecond: cfg.Notifications.RatePerSecond,
		Burst:         cfg.Notifications.Burst,
		MaxRetries:    cfg.Notifications.MaxRetries,
		BatchSize:     cfg.Notifications.BatchSize,
	}, &logger)
	go dispatcher.Run(ctx, cfg.DispatchInterval())

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("salonbook daemon started")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
