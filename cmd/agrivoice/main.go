// Command agrivoice is the main entry point for the AgriVoice inference server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/skawahara/agrivoice/internal/config"
	"github.com/skawahara/agrivoice/internal/fieldreg"
	"github.com/skawahara/agrivoice/internal/health"
	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/internal/observe"
	"github.com/skawahara/agrivoice/internal/records"
	"github.com/skawahara/agrivoice/internal/server"
	"github.com/skawahara/agrivoice/internal/vocab"
	"github.com/skawahara/agrivoice/pkg/geo"
	"github.com/skawahara/agrivoice/pkg/location"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "agrivoice: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "agrivoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("agrivoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "agrivoice",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Field registry ────────────────────────────────────────────────────────
	registry, registryCheck, closeRegistry, err := buildRegistry(ctx, cfg.Registry)
	if err != nil {
		slog.Error("failed to open field registry", "backend", cfg.Registry.Backend, "err", err)
		return 1
	}
	defer closeRegistry()
	slog.Info("field registry ready", "backend", cfg.Registry.Backend)

	// ── Record store ──────────────────────────────────────────────────────────
	recordStore, closeRecords, err := buildRecords(ctx, cfg.Records)
	if err != nil {
		slog.Error("failed to open record store", "path", cfg.Records.Path, "err", err)
		return 1
	}
	defer closeRecords()

	// ── Vocabulary ────────────────────────────────────────────────────────────
	dict := vocab.Builtin()
	if cfg.Speech.TermsFile != "" {
		extra, err := vocab.LoadTerms(cfg.Speech.TermsFile)
		if err != nil {
			slog.Error("failed to load supplemental terms", "path", cfg.Speech.TermsFile, "err", err)
			return 1
		}
		if err := dict.Extend(extra); err != nil {
			slog.Error("supplemental terms rejected", "path", cfg.Speech.TermsFile, "err", err)
			return 1
		}
		slog.Info("supplemental terms loaded", "path", cfg.Speech.TermsFile, "count", len(extra))
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(cfg.Server.ListenAddr, server.Deps{
		Normalizer: vocab.NewNormalizer(dict),
		Engine:     inference.NewEngine(),
		Fields:     registry,
		Records:    recordStore,
		Matcher:    geo.NewMatcher(cfg.Location.ThresholdKm),
		Location:   buildLocation(cfg.Location),
		Client: server.ClientConfig{
			Language:              cfg.Speech.Language,
			ThresholdKm:           cfg.Location.ThresholdKm,
			RequestTimeoutSeconds: cfg.Location.RequestTimeoutSeconds,
			MaxAgeMinutes:         cfg.Location.MaxAgeMinutes,
		},
		Health: health.New(registryCheck),
		Logger: logger,
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildRegistry opens the configured field-registry backend. It returns the
// store, a readiness checker for it, and a close function.
func buildRegistry(ctx context.Context, cfg config.RegistryConfig) (fieldreg.Store, health.Checker, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
		store := fieldreg.NewMemStore()
		check := health.Checker{Name: "registry", Check: func(context.Context) error { return nil }}
		return store, check, noop, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, health.Checker{}, noop, fmt.Errorf("open sqlite %q: %w", cfg.Path, err)
		}
		store := fieldreg.NewSQLiteStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, health.Checker{}, noop, err
		}
		check := health.Checker{Name: "registry", Check: store.Ping}
		return store, check, func() { db.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, health.Checker{}, noop, fmt.Errorf("connect postgres: %w", err)
		}
		store := fieldreg.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, health.Checker{}, noop, err
		}
		check := health.Checker{Name: "registry", Check: pool.Ping}
		return store, check, pool.Close, nil
	}

	return nil, health.Checker{}, noop, fmt.Errorf("unknown registry backend %q", cfg.Backend)
}

// buildRecords opens the work-record store: SQLite when a path is configured,
// in-memory otherwise.
func buildRecords(ctx context.Context, cfg config.RecordsConfig) (records.Store, func(), error) {
	noop := func() {}

	if cfg.Path == "" {
		slog.Warn("no records.path configured, work records are kept in memory only")
		return records.NewMemStore(), noop, nil
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, noop, fmt.Errorf("open sqlite %q: %w", cfg.Path, err)
	}
	store := records.NewSQLiteStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, noop, err
	}
	return store, func() { db.Close() }, nil
}

// buildLocation returns the server-side coordinate provider for suggestion
// requests that carry no coordinate, or nil when none is configured.
func buildLocation(cfg config.LocationConfig) location.Provider {
	if !cfg.HasStaticCoordinate() {
		return nil
	}
	slog.Info("static server coordinate configured", "lat", cfg.StaticLat, "lng", cfg.StaticLng)
	return location.NewCached(
		location.Static{Coordinate: geo.Coordinate{Lat: cfg.StaticLat, Lng: cfg.StaticLng}},
		location.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second),
		location.WithMaxAge(time.Duration(cfg.MaxAgeMinutes)*time.Minute),
	)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
