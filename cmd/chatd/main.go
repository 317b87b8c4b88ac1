package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pampa/chatd/internal/config"
	"github.com/pampa/chatd/internal/database"
	"github.com/pampa/chatd/internal/history"
	"github.com/pampa/chatd/internal/httpapi"
	"github.com/pampa/chatd/internal/registry"
	"github.com/pampa/chatd/internal/room"
	"github.com/pampa/chatd/internal/router"
	"github.com/pampa/chatd/internal/session"
	"github.com/pampa/chatd/internal/transport"
	"github.com/pampa/chatd/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chatd.yaml", "path to config file")
	flag.Parse()

	// .env feeds the ${VAR} references in the config file.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chatd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := registry.New(logger.With("component", "registry"))

	dir := room.New(room.Config{
		ReclaimEmpty: !cfg.Rooms.KeepEmpty,
		MaxMembers:   cfg.Rooms.MaxMembers,
	}, reg, logger.With("component", "rooms"))

	rt := router.New(router.Config{
		EchoToSender: !cfg.Router.NoEcho,
	}, reg, dir, store, logger.With("component", "router"))

	coord := session.New(session.Config{
		ReplayLimit: cfg.Session.ReplayLimit,
	}, reg, dir, rt, store, logger.With("component", "session"))

	seeds := make([]room.Seed, 0, len(cfg.Rooms.Seed))
	for _, s := range cfg.Rooms.Seed {
		seeds = append(seeds, room.Seed{ID: s.ID, MaxMembers: s.MaxMembers})
	}
	if err := dir.SeedRooms(ctx, seeds); err != nil {
		logger.Error("failed to seed rooms", "error", err)
		os.Exit(1)
	}

	ws := transport.NewServer(transport.Config{
		QueueSize:      cfg.Transport.QueueSize,
		Overflow:       cfg.Transport.Overflow,
		WriteWait:      cfg.Transport.WriteWait,
		PongWait:       cfg.Transport.PongWait,
		PingPeriod:     cfg.Transport.PingPeriod,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
	}, coord, logger.With("component", "transport"))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/ws", ws.Handle)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	httpapi.New(coord, logger.With("component", "api")).Mount(engine)

	if cfg.Server.StaticDir != "" {
		engine.Static("/static", cfg.Server.StaticDir)
		engine.StaticFile("/", cfg.Server.StaticDir+"/index.html")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("chatd stopped")
}

// buildStore opens the configured history backend.
func buildStore(ctx context.Context, cfg *config.ChatdConfig, logger *slog.Logger) (history.Store, error) {
	switch cfg.History.Backend {
	case "memory":
		logger.Info("history backend: memory", "retain", cfg.History.Retain)
		return history.NewMemoryStore(cfg.History.Retain), nil

	case "postgres":
		logger.Info("history backend: postgres",
			"host", cfg.History.Postgres.Host,
			"database", cfg.History.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.History.Postgres)
		if err != nil {
			return nil, err
		}
		store := history.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case "redis":
		logger.Info("history backend: redis", "addr", cfg.History.Redis.Addr)
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.History.Redis.Addr,
			Password: cfg.History.Redis.Password,
			DB:       cfg.History.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return history.NewRedisStore(client, cfg.History.Retain), nil

	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// logLevel maps the config level string to slog.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
