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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/nuka-bonds/internal/api"
	"github.com/nidhogg/nuka-bonds/internal/bus"
	"github.com/nidhogg/nuka-bonds/internal/config"
	"github.com/nidhogg/nuka-bonds/internal/graph"
	"github.com/nidhogg/nuka-bonds/internal/sandbox"
	"github.com/nidhogg/nuka-bonds/internal/snapshot"
	"github.com/nidhogg/nuka-bonds/internal/society"
	pgstore "github.com/nidhogg/nuka-bonds/internal/store"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// newLogger builds a development logger at debug level and a production
// logger otherwise.
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/bonds.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Nuka Bonds...", zap.String("config", cfgPath))

	socCfg, err := cfg.Society()
	if err != nil {
		logger.Fatal("invalid relation config", zap.Error(err))
	}

	// Sandbox population stands in for a host
	registry := world.NewRegistry()
	scheduleMgr := world.NewScheduleManager(logger.Named("schedule"))
	sb := sandbox.Generate(sandbox.Config{
		Seed:        cfg.Simulation.Seed,
		Population:  cfg.Simulation.Population,
		Settlements: cfg.Simulation.Settlements,
		WorldSize:   cfg.Simulation.WorldSize,
		WanderEvery: 10,
	}, registry, scheduleMgr, logger.Named("sandbox"))
	stateMgr := world.NewStateManager(scheduleMgr, registry, logger.Named("state"))

	engine := society.New(socCfg, registry, logger.Named("society"))

	// Persistence: PostgreSQL first, SQLite save slot otherwise
	ctx := context.Background()
	var saver society.Saver
	var closers []func()
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger.Named("store"))
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			saver = ps
			closers = append(closers, ps.Close)
		}
	}
	if saver == nil && cfg.Database.SQLite.Path != "" {
		db, dbErr := snapshot.Open(cfg.Database.SQLite.Path, logger.Named("snapshot"))
		if dbErr != nil {
			logger.Warn("SQLite save slot unavailable", zap.Error(dbErr))
		} else {
			saver = db
			closers = append(closers, func() { db.Close() })
		}
	}

	clock := world.NewClock(time.Duration(cfg.Simulation.TickMillis)*time.Millisecond, logger.Named("clock"))
	clock.SetSpeed(cfg.Simulation.Speed)

	if saver != nil {
		snap, ok, loadErr := saver.Load(ctx)
		switch {
		case loadErr != nil:
			logger.Warn("failed to load saved relations", zap.Error(loadErr))
		case ok:
			engine.Resume(snap)
			clock.SetTick(snap.State.Tick)
			logger.Info("Relations restored",
				zap.Int("records", len(snap.Records)),
				zap.Uint64("tick", snap.State.Tick))
		}
	}

	// Graph mirror requires Neo4j
	var mirror *graph.Graph
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := graph.Open(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger.Named("graph"))
		if gErr == nil {
			gErr = g.Ping(ctx)
		}
		if gErr == nil {
			gErr = g.EnsureSchema(ctx)
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(gErr))
			if g != nil {
				g.Close(ctx)
			}
		} else {
			mirror = g
		}
	}

	// Listener order: host movement, schedules, derived activities, relations,
	// then the persistence heartbeats that read the finished tick.
	clock.AddListener(sb)
	clock.AddListener(scheduleMgr)
	clock.AddListener(stateMgr)
	clock.AddListener(engine)

	var autosave *world.Heartbeat
	if saver != nil {
		autosave = world.NewHeartbeat("autosave", cfg.Simulation.AutosaveEvery, 30*time.Second,
			func(ctx context.Context, info world.TickInfo) error {
				return saver.Save(ctx, engine.Snapshot())
			}, logger.Named("autosave"))
		clock.AddListener(autosave)
	}
	var graphReader api.GraphReader
	if mirror != nil {
		clock.AddListener(world.NewHeartbeat("graph-sync", cfg.Simulation.GraphSyncEvery, time.Minute,
			func(ctx context.Context, info world.TickInfo) error {
				return mirror.Sync(ctx, engine.Ledger().Export(), info.Tick)
			}, logger.Named("graph-sync")))
		graphReader = mirror
	}

	// Request ingress over Redis
	pumpCtx, stopPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	var requestBus *bus.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := bus.New(cfg.Database.Redis.URL, cfg.Database.Redis.Stream, logger.Named("bus"))
		if busErr != nil {
			logger.Warn("Redis unavailable, running without request stream", zap.Error(busErr))
		} else {
			requestBus = b
		}
	}
	if requestBus != nil {
		go func() {
			defer close(pumpDone)
			if err := requestBus.Pump(pumpCtx, engine.Queue()); err != nil {
				logger.Error("request pump stopped", zap.Error(err))
			}
		}()
		logger.Info("Request stream attached", zap.String("stream", cfg.Database.Redis.Stream))
	} else {
		close(pumpDone)
	}

	clock.Start()
	logger.Info("World simulation started")

	// Build HTTP handler
	handler := api.NewHandler(engine, clock, scheduleMgr, stateMgr, autosave, graphReader, logger.Named("api"))

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Nuka Bonds listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Nuka Bonds...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	clock.Stop()
	stopPump()
	<-pumpDone

	if autosave != nil {
		if err := autosave.FireNow(clock.Info()); err != nil {
			logger.Error("final save failed", zap.Error(err))
		} else {
			logger.Info("Relations saved", zap.Int("records", engine.Ledger().Len()))
		}
	}
	if mirror != nil {
		if err := mirror.Sync(shutdownCtx, engine.Ledger().Export(), clock.Info().Tick); err != nil {
			logger.Warn("final graph sync failed", zap.Error(err))
		}
		mirror.Close(shutdownCtx)
	}
	if requestBus != nil {
		requestBus.Close()
	}
	for _, c := range closers {
		c()
	}
	logger.Info("Nuka Bonds stopped")
}
