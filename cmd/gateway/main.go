package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"eddisonso.com/edd-directory/internal/config"
	"eddisonso.com/edd-directory/internal/logging"
	"eddisonso.com/edd-directory/internal/middleware"
	"eddisonso.com/edd-directory/internal/proxy"
	"eddisonso.com/edd-directory/internal/router"
	"eddisonso.com/edd-directory/internal/server"
)

func main() {
	cfg, err := config.LoadGateway(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slog.SetDefault(logging.NewLogger(logging.Config{
		Source:   "edd-gateway",
		MinLevel: cfg.Log.Level,
		Format:   cfg.Log.Format,
	}))

	routes := router.Defaults(cfg.AuthURL, cfg.EmployeeURL, cfg.PhotoURL)
	if cfg.RoutesFile != "" {
		routes, err = router.Load(cfg.RoutesFile)
		if err != nil {
			log.Fatalf("failed to load routes: %v", err)
		}
	}
	r, err := router.New(routes)
	if err != nil {
		log.Fatalf("invalid routes: %v", err)
	}
	gw := proxy.New(r, cfg.Timeout)

	mux := http.NewServeMux()
	mux.Handle("/", gw)

	servers := []*http.Server{
		server.New(cfg.Addr, middleware.Chain(mux, middleware.Recover, middleware.CORS(cfg.CORSOrigins), middleware.LogRequests)),
	}
	if cfg.HealthAddr != "" {
		healthMux := http.NewServeMux()
		gw.HandleHealth(healthMux)
		servers = append(servers, server.New(cfg.HealthAddr, healthMux))
	} else {
		gw.HandleHealth(mux)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, route := range r.Routes() {
		slog.Info("route", "name", route.Name, "prefix", route.PathPrefix, "target", route.Target)
	}
	slog.Info("starting gateway", "addr", cfg.Addr, "health_addr", cfg.HealthAddr)
	if err := server.Run(ctx, servers...); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
