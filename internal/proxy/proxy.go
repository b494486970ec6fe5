// Package proxy forwards public requests to the upstream services.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"golang.org/x/sync/errgroup"

	"eddisonso.com/edd-directory/internal/router"
)

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Status: status, Message: message})
}

// Gateway is an http.Handler that proxies matched routes.
type Gateway struct {
	router  *router.Router
	proxies map[string]*httputil.ReverseProxy
	client  *http.Client
}

// New builds one reverse proxy per route. timeout bounds the wait for
// upstream response headers.
func New(r *router.Router, timeout time.Duration) *Gateway {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = timeout

	g := &Gateway{
		router:  r,
		proxies: make(map[string]*httputil.ReverseProxy),
		client:  &http.Client{Transport: transport, Timeout: 2 * time.Second},
	}
	for _, route := range r.Routes() {
		g.proxies[route.PathPrefix] = newReverseProxy(route, transport)
	}
	return g
}

func newReverseProxy(route router.Route, transport http.RoundTripper) *httputil.ReverseProxy {
	target := route.TargetURL()
	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = route.UpstreamPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("upstream request failed", "route", route.Name, "method", r.Method, "path", r.URL.Path, "error", err)
			writeError(w, http.StatusServiceUnavailable, "upstream service unavailable")
		},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, upstreamPath, err := g.router.Resolve(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	g.proxies[route.PathPrefix].ServeHTTP(rec, r)

	slog.Info(fmt.Sprintf("%s %s -> %s%s", r.Method, r.URL.Path, route.Target, upstreamPath),
		"route", route.Name, "status", rec.status, "duration", time.Since(start))
}

// CheckUpstreams probes every route target's /healthz concurrently.
func (g *Gateway) CheckUpstreams(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, route := range g.router.Routes() {
		eg.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, route.TargetURL().JoinPath("/healthz").String(), nil)
			if err != nil {
				return err
			}
			resp, err := g.client.Do(req)
			if err != nil {
				return fmt.Errorf("%s: %w", route.Name, err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: %w", route.Name, errors.New(resp.Status))
			}
			return nil
		})
	}
	return eg.Wait()
}

// HandleHealth registers liveness and readiness endpoints.
func (g *Gateway) HandleHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := g.CheckUpstreams(r.Context()); err != nil {
			slog.Warn("gateway not ready", "error", err)
			writeError(w, http.StatusServiceUnavailable, "upstream services not ready")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}
