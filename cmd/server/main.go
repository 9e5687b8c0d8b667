package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/clearing-engine/internal/api"
	"github.com/atmx/clearing-engine/internal/ledger"
	"github.com/atmx/clearing-engine/internal/market"
	"github.com/atmx/clearing-engine/internal/metrics"
	"github.com/atmx/clearing-engine/internal/sim"
	"github.com/atmx/clearing-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Scenario ---
	scenario := sim.DefaultScenario()
	if path := os.Getenv("SCENARIO_FILE"); path != "" {
		s, err := sim.LoadScenario(path)
		if err != nil {
			slog.Error("scenario load failed", "path", path, "err", err)
			os.Exit(1)
		}
		scenario = s
		slog.Info("scenario loaded", "path", path)
	}

	interval, maxTicks, err := tickConfig(scenario.Ticks)
	if err != nil {
		slog.Error("invalid tick config", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("journal migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engine ---
	coord := sim.NewCoordinator(ledger.New(), market.New())
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coord.Run(ctx)
	}()

	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	drv := sim.NewDriver(coord, scenario.Agents(), sim.Journal(st), wsHub.Observer())
	if err := drv.Setup(ctx); err != nil {
		slog.Error("agent setup failed", "err", err)
		os.Exit(1)
	}
	slog.Info("economy ready",
		"firms", len(scenario.Firms),
		"consumers", len(scenario.Consumers),
		"money_supply", coord.MoneySupply().String(),
	)

	if interval > 0 {
		go func() {
			err := drv.Run(ctx, maxTicks, interval)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("simulation stopped", "err", err)
				return
			}
			slog.Info("simulation finished", "ticks", drv.Tick())
		}()
	} else {
		slog.Info("TICK_INTERVAL not set, ticks advance via POST /api/v1/ticks")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"clearing-engine","tick":%d}`, drv.Tick())
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// No request timeout: /ws connections are long-lived.
	r.Route("/api/v1", api.NewService(drv, coord, st, wsHub).Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("clearing-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down clearing-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	<-coordDone
	slog.Info("clearing-engine stopped", "ticks", drv.Tick())
}

// tickConfig reads TICK_INTERVAL and MAX_TICKS. MAX_TICKS falls back to the
// scenario's tick count; zero means run until shutdown.
func tickConfig(scenarioTicks int) (time.Duration, int, error) {
	var interval time.Duration
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, 0, fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		if d < 0 {
			return 0, 0, fmt.Errorf("TICK_INTERVAL: must not be negative, got %s", d)
		}
		interval = d
	}

	maxTicks := scenarioTicks
	if v := os.Getenv("MAX_TICKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("MAX_TICKS: %w", err)
		}
		maxTicks = n
	}
	return interval, maxTicks, nil
}
