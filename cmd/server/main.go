package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/tariffsim/tariff-engine/internal/cart"
	"github.com/tariffsim/tariff-engine/internal/config"
	"github.com/tariffsim/tariff-engine/internal/currency"
	"github.com/tariffsim/tariff-engine/internal/db"
	"github.com/tariffsim/tariff-engine/internal/events"
	"github.com/tariffsim/tariff-engine/internal/export"
	"github.com/tariffsim/tariff-engine/internal/history"
	"github.com/tariffsim/tariff-engine/internal/ledgerclient"
	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/notify"
	"github.com/tariffsim/tariff-engine/internal/quote"
	"github.com/tariffsim/tariff-engine/internal/session"
	"github.com/tariffsim/tariff-engine/internal/simulator"
	"github.com/tariffsim/tariff-engine/internal/store"
	"github.com/tariffsim/tariff-engine/internal/tariff"
)

// ledger is what cart and quote need from the history service, local or
// remote.
type ledger interface {
	cart.HistorySource
	quote.Recorder
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()
	fail := func(msg string, err error) {
		slog.Error(msg, "err", err)
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		os.Exit(1)
	}

	// --- Redis (rate cache and/or session store) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fail("invalid REDIS_URL", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Rate table ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			fail("database connection failed", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			fail("database migration failed", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.RateCacheTTL)
			slog.Info("Redis rate cache enabled", "ttl", cfg.RateCacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory rate table (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Session store ---
	var sessions session.Store
	switch cfg.Session.Backend {
	case config.SessionRedis:
		sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
	case config.SessionPebble:
		ps, err := session.NewPebbleStore(cfg.Session.PebbleDir)
		if err != nil {
			fail("open session store", err)
		}
		cleanup = append(cleanup, func() { ps.Close() })
		sessions = ps
	default:
		ms := session.NewMemoryStoreWithTTL(cfg.Session.TTL)
		if cfg.Session.TTL > 0 {
			stopSweep := make(chan struct{})
			go ms.RunSweeper(cfg.Session.TTL, stopSweep)
			cleanup = append(cleanup, func() { close(stopSweep) })
		}
		sessions = ms
	}
	sessions = session.Instrument(sessions, cfg.Session.Backend)
	slog.Info("session store ready", "backend", cfg.Session.Backend)

	// --- Activity events ---
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		cleanup = append(cleanup, func() { kp.Close() })
		publisher = kp
		slog.Info("Kafka activity stream enabled", "topic", cfg.Kafka.Topic)
	}

	// --- WebSocket hub ---
	hub := notify.NewHub(cfg.CORS.AllowedOrigins...)
	go hub.Run()
	cleanup = append(cleanup, hub.Stop)

	// --- History ledger ---
	localLedger := history.NewLedger(sessions)
	var hist ledger = localLedger
	if cfg.Ledger.URL != "" {
		hist = ledgerclient.New(cfg.Ledger.URL, cfg.Ledger.Timeout)
		slog.Info("using remote history service", "url", cfg.Ledger.URL)
	}

	// --- Export archive ---
	var archiver export.Archiver
	if cfg.Export.S3Bucket != "" {
		a, err := export.NewS3ArchiverFromConfig(ctx, cfg.Export)
		if err != nil {
			fail("export archive setup failed", err)
		}
		archiver = a
	}

	// --- Currency conversion ---
	var rateSource currency.Source
	if cfg.Currency.APIURL != "" {
		rateSource = currency.NewHTTPSource(cfg.Currency.APIURL, cfg.Currency.Timeout)
		slog.Info("live exchange rates enabled", "ttl", cfg.Currency.CacheTTL)
	}
	fx := currency.NewConverter(rateSource, cfg.Currency.CacheTTL)

	registry := tariff.NewRegistry(st, tariff.Notifiers{hub, events.OverrideNotifier{Publisher: publisher}})
	simStore := simulator.NewStore(sessions)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.HeaderName},
		ExposedHeaders:   []string{session.HeaderName, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(session.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tariff-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)

		if cfg.Enabled(config.ServiceRates) {
			tariff.NewHandler(registry, st).Mount(r)
		}
		if cfg.Enabled(config.ServiceSimulator) {
			simulator.NewHandler(simStore).Mount(r)
		}
		if cfg.Enabled(config.ServiceHistory) {
			history.NewHandler(localLedger).Mount(r)
		}
		if cfg.Enabled(config.ServiceCart) {
			coord := cart.NewCoordinator(hist, sessions, publisher)
			cart.NewHandler(coord, archiver).Mount(r)
		}
		if cfg.Enabled(config.ServiceQuote) {
			calc := quote.NewCalculator(registry, simStore, st, hist, publisher, fx)
			quote.NewHandler(calc).Mount(r)
			currency.NewHandler(fx).Mount(r)
		}
	})
	slog.Info("services mounted", "services", cfg.Services)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tariff-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down tariff-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tariff-engine stopped")
}
