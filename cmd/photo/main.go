package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"eddisonso.com/edd-directory/internal/api"
	"eddisonso.com/edd-directory/internal/config"
	"eddisonso.com/edd-directory/internal/logging"
	"eddisonso.com/edd-directory/internal/middleware"
	"eddisonso.com/edd-directory/internal/photos"
	"eddisonso.com/edd-directory/internal/server"
)

func main() {
	cfg, err := config.LoadPhoto(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slog.SetDefault(logging.NewLogger(logging.Config{
		Source:   "edd-photo",
		MinLevel: cfg.Log.Level,
		Format:   cfg.Log.Format,
	}))

	maxBytes := cfg.MaxUploadMB << 20
	store, err := photos.NewStore(cfg.Dir, maxBytes)
	if err != nil {
		log.Fatalf("failed to prepare photos dir: %v", err)
	}

	mux := http.NewServeMux()
	api.NewPhotoHandler(store, maxBytes).RegisterRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting photo service", "addr", cfg.Addr, "dir", cfg.Dir)
	srv := server.New(cfg.Addr, middleware.Chain(mux, middleware.Recover, middleware.LogRequests))
	if err := server.Run(ctx, srv); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
