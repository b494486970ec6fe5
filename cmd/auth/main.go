package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/bcrypt"

	"eddisonso.com/edd-directory/internal/api"
	"eddisonso.com/edd-directory/internal/auth"
	"eddisonso.com/edd-directory/internal/config"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/events"
	"eddisonso.com/edd-directory/internal/kv"
	"eddisonso.com/edd-directory/internal/logging"
	"eddisonso.com/edd-directory/internal/middleware"
	"eddisonso.com/edd-directory/internal/server"
	"eddisonso.com/edd-directory/internal/session"
	"eddisonso.com/edd-directory/internal/token"
)

func main() {
	cfg, err := config.LoadAuth(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slog.SetDefault(logging.NewLogger(logging.Config{
		Source:   "edd-auth",
		MinLevel: cfg.Log.Level,
		Format:   cfg.Log.Format,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, db.Options{
		MaxOpen:      cfg.Database.MaxOpen,
		MaxIdle:      cfg.Database.MaxIdle,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

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

	issuerCfg := auth.IssuerConfig{
		Accounts: database,
		Sessions: session.NewRedisRegistry(rdb),
		Signer:   token.NewSigner(cfg.JWTSecret, cfg.SessionTTL),
		Hasher:   auth.BcryptHasher{Cost: bcrypt.DefaultCost},
	}

	// Connect to NATS (optional)
	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(ctx, cfg.NATSURL, "auth-service", events.AuthStream)
		if err != nil {
			slog.Warn("failed to connect to NATS, events will not be published", "error", err)
		} else {
			defer publisher.Close()
			issuerCfg.Events = publisher
			slog.Info("connected to NATS", "url", cfg.NATSURL)
		}
	} else {
		slog.Info("NATS_URL not set, events will not be published")
	}

	handler := api.NewAuthHandler(auth.NewIssuer(issuerCfg))
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	slog.Info("starting auth service", "addr", cfg.Addr, "session_ttl", cfg.SessionTTL)
	srv := server.New(cfg.Addr, middleware.Chain(mux, middleware.Recover, middleware.LogRequests))
	if err := server.Run(ctx, srv); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
