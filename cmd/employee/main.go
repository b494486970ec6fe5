package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eddisonso.com/edd-directory/internal/api"
	"eddisonso.com/edd-directory/internal/auth"
	"eddisonso.com/edd-directory/internal/cache"
	"eddisonso.com/edd-directory/internal/config"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/directory"
	"eddisonso.com/edd-directory/internal/events"
	"eddisonso.com/edd-directory/internal/kv"
	"eddisonso.com/edd-directory/internal/logging"
	"eddisonso.com/edd-directory/internal/middleware"
	"eddisonso.com/edd-directory/internal/photos"
	"eddisonso.com/edd-directory/internal/server"
	"eddisonso.com/edd-directory/internal/session"
	"eddisonso.com/edd-directory/internal/token"
)

func main() {
	cfg, err := config.LoadEmployee(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slog.SetDefault(logging.NewLogger(logging.Config{
		Source:   "edd-employee",
		MinLevel: cfg.Log.Level,
		Format:   cfg.Log.Format,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, db.Options{
		MaxOpen:      cfg.Database.MaxOpen,
		MaxIdle:      cfg.Database.MaxIdle,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	// Sessions always live in Redis. The result cache may stay in process.
	rdb, err := kv.Open(ctx, kv.Config{
		Addr:          cfg.Redis.Addr,
		SentinelAddrs: cfg.Redis.SentinelAddrs,
		MasterName:    cfg.Redis.MasterName,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		Timeout:       cfg.Redis.Timeout,
	})
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	var resultCache cache.Cache = cache.NewRedisCache(rdb)
	if cfg.CacheBackend == "memory" {
		mc := cache.NewMemoryCache(cfg.CacheMaxMB<<20, time.Minute)
		defer mc.Close()
		resultCache = mc
	}

	dirCfg := directory.Config{
		Store:          database,
		Cache:          resultCache,
		Photos:         photos.NewClient(cfg.PhotoURL, cfg.PhotoTimeout),
		ListTTL:        cfg.ListCacheTTL,
		EntryTTL:       cfg.EntryCacheTTL,
		PhotoURLPrefix: cfg.PhotoURLPrefix,
	}

	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(ctx, cfg.NATSURL, "employee-service", events.DirectoryStream)
		if err != nil {
			slog.Warn("failed to connect to NATS, events will not be published", "error", err)
		} else {
			defer publisher.Close()
			dirCfg.Events = publisher
			slog.Info("connected to NATS", "url", cfg.NATSURL)
		}
	} else {
		slog.Info("NATS_URL not set, events will not be published")
	}

	gate := auth.NewGate(token.NewSigner(cfg.JWTSecret, 0), session.NewRedisRegistry(rdb))
	handler := api.NewEmployeeHandler(gate, directory.NewService(dirCfg))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	slog.Info("starting employee service", "addr", cfg.Addr, "photo_service", cfg.PhotoURL, "cache", cfg.CacheBackend)
	srv := server.New(cfg.Addr, middleware.Chain(mux, middleware.Recover, middleware.LogRequests))
	if err := server.Run(ctx, srv); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
