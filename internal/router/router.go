package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoRoute = errors.New("no matching route")

// Route maps a public path prefix onto an upstream service.
type Route struct {
	Name        string `yaml:"name"`
	PathPrefix  string `yaml:"prefix"`  // e.g. "/api/auth/"
	Target      string `yaml:"target"`  // e.g. "http://auth-server:5001"
	StripPrefix bool   `yaml:"strip"`   // Whether to strip the path prefix when proxying
	Rewrite     string `yaml:"rewrite"` // Replacement for a stripped prefix, "/" when empty

	target *url.URL
}

// TargetURL is the parsed upstream base.
func (r *Route) TargetURL() *url.URL {
	return r.target
}

// UpstreamPath returns the path forwarded for a request path this route matched.
func (r *Route) UpstreamPath(path string) string {
	if !r.StripPrefix {
		return path
	}
	rest := strings.TrimPrefix(path, r.PathPrefix)
	base := r.Rewrite
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(rest, "/")
}

type file struct {
	Routes []Route `yaml:"routes"`
}

// Load reads routes from a YAML file of the form
//
//	routes:
//	  - name: auth
//	    prefix: /api/auth/
//	    target: http://auth-server:5001
//	    strip: true
//	    rewrite: /auth/
func Load(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	return f.Routes, nil
}

// Defaults returns the built-in public routes: /api/auth/ onto the auth
// service's /auth/ tree, /api/employee/ onto the employee service root,
// /api/photos/ onto the photo service's /photos/ tree and /static/uploads/
// onto the photo service unchanged.
func Defaults(authURL, employeeURL, photoURL string) []Route {
	return []Route{
		{Name: "auth", PathPrefix: "/api/auth/", Target: authURL, StripPrefix: true, Rewrite: "/auth/"},
		{Name: "employee", PathPrefix: "/api/employee/", Target: employeeURL, StripPrefix: true, Rewrite: "/"},
		{Name: "photos", PathPrefix: "/api/photos/", Target: photoURL, StripPrefix: true, Rewrite: "/photos/"},
		{Name: "static", PathPrefix: "/static/uploads/", Target: photoURL},
	}
}

// Router resolves request paths to static routes.
// Simple implementation with linear scanning, no caching.
type Router struct {
	routes []Route // sorted by path length (longest first)
}

// New validates routes and orders them for longest-prefix matching.
func New(routes []Route) (*Router, error) {
	if len(routes) == 0 {
		return nil, errors.New("no routes configured")
	}
	sorted := make([]Route, len(routes))
	copy(sorted, routes)

	seen := make(map[string]bool)
	for i := range sorted {
		route := &sorted[i]
		if !strings.HasPrefix(route.PathPrefix, "/") {
			return nil, fmt.Errorf("route %q: prefix must start with /", route.Name)
		}
		if seen[route.PathPrefix] {
			return nil, fmt.Errorf("route %q: duplicate prefix %s", route.Name, route.PathPrefix)
		}
		seen[route.PathPrefix] = true

		u, err := url.Parse(route.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("route %q: invalid target %q", route.Name, route.Target)
		}
		route.target = u
		if route.Name == "" {
			route.Name = route.PathPrefix
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})

	for _, route := range sorted {
		slog.Debug("loaded route", "name", route.Name, "path", route.PathPrefix, "target", route.Target)
	}
	return &Router{routes: sorted}, nil
}

// Resolve finds the longest matching route and the path to forward.
func (r *Router) Resolve(path string) (*Route, string, error) {
	for i := range r.routes {
		route := &r.routes[i]
		if strings.HasPrefix(path, route.PathPrefix) {
			return route, route.UpstreamPath(path), nil
		}
	}
	slog.Debug("no route matched", "path", path)
	return nil, "", ErrNoRoute
}

// Routes returns all routes in match order.
func (r *Router) Routes() []Route {
	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)
	return routes
}
