// Package config loads service settings from flags, falling back to the
// environment and then to built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"eddisonso.com/edd-directory/internal/logging"
)

// Log holds the settings shared by every binary.
type Log struct {
	Level  slog.Level
	Format string
}

type Database struct {
	Driver       string // "postgres" or "sqlite"
	DSN          string
	MaxOpen      int
	MaxIdle      int
	ConnLifetime time.Duration
}

type Redis struct {
	Addr          string
	SentinelAddrs []string
	MasterName    string
	Password      string
	DB            int
	Timeout       time.Duration
}

// Auth configures the credential issuer.
type Auth struct {
	Addr       string
	Log        Log
	Database   Database
	Redis      Redis
	JWTSecret  []byte
	SessionTTL time.Duration
	NATSURL    string
}

// Employee configures the directory service.
type Employee struct {
	Addr           string
	Log            Log
	Database       Database
	Redis          Redis
	JWTSecret      []byte
	CacheBackend   string // "redis" or "memory"
	CacheMaxMB     int
	ListCacheTTL   time.Duration
	EntryCacheTTL  time.Duration
	PhotoURL       string
	PhotoTimeout   time.Duration
	PhotoURLPrefix string
	NATSURL        string
}

// Photo configures the blob store.
type Photo struct {
	Addr        string
	Log         Log
	Dir         string
	MaxUploadMB int64
}

// Gateway configures the edge proxy.
type Gateway struct {
	Addr        string
	HealthAddr  string
	Log         Log
	RoutesFile  string
	AuthURL     string
	EmployeeURL string
	PhotoURL    string
	Timeout     time.Duration
	CORSOrigins []string
}

// loader registers flags whose defaults come from the environment. The first
// malformed environment value is kept and reported after parsing.
type loader struct {
	fs  *pflag.FlagSet
	err error
}

func newLoader(name string) *loader {
	return &loader{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
}

func (l *loader) string(p *string, name, env, def, usage string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		def = v
	}
	l.fs.StringVar(p, name, def, usage)
}

func (l *loader) duration(p *time.Duration, name, env string, def time.Duration, usage string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.fail(fmt.Errorf("%s: %w", env, err))
		} else {
			def = d
		}
	}
	l.fs.DurationVar(p, name, def, usage)
}

func (l *loader) int(p *int, name, env string, def int, usage string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.fail(fmt.Errorf("%s: %w", env, err))
		} else {
			def = n
		}
	}
	l.fs.IntVar(p, name, def, usage)
}

func (l *loader) int64(p *int64, name, env string, def int64, usage string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			l.fail(fmt.Errorf("%s: %w", env, err))
		} else {
			def = n
		}
	}
	l.fs.Int64Var(p, name, def, usage)
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *loader) parse(args []string) error {
	if err := l.fs.Parse(args); err != nil {
		return err
	}
	return l.err
}

func (l *loader) log(cfg *Log, level *string) {
	l.string(level, "log-level", "LOG_LEVEL", "info", "Minimum log level (debug, info, warn, error)")
	l.string(&cfg.Format, "log-format", "LOG_FORMAT", "text", "Log output format (text or json)")
}

func (l *loader) database(cfg *Database) {
	l.string(&cfg.Driver, "db-driver", "DATABASE_DRIVER", "postgres", "Record store driver (postgres or sqlite)")
	l.string(&cfg.DSN, "db-url", "DATABASE_URL", "", "Record store connection string")
	l.int(&cfg.MaxOpen, "db-max-open", "DATABASE_MAX_OPEN", 30, "Maximum open record store connections")
	l.int(&cfg.MaxIdle, "db-max-idle", "DATABASE_MAX_IDLE", 10, "Maximum idle record store connections")
	l.duration(&cfg.ConnLifetime, "db-conn-lifetime", "DATABASE_CONN_LIFETIME", time.Hour, "Recycle record store connections after this long")
}

func (l *loader) redis(cfg *Redis, sentinels *string) {
	l.string(&cfg.Addr, "redis-addr", "REDIS_ADDR", "", "Standalone Redis address")
	l.string(sentinels, "redis-sentinels", "REDIS_SENTINEL_ADDRS", "", "Comma-separated Sentinel addresses")
	l.string(&cfg.MasterName, "redis-master", "REDIS_MASTER_NAME", "mymaster", "Sentinel master name")
	l.string(&cfg.Password, "redis-password", "REDIS_PASSWORD", "", "Redis password")
	l.int(&cfg.DB, "redis-db", "REDIS_DB", 0, "Redis logical database")
	l.duration(&cfg.Timeout, "redis-timeout", "REDIS_TIMEOUT", 500*time.Millisecond, "Redis dial, read and write timeout")
}

func finishLog(cfg *Log, level string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg.Level = lvl
	return nil
}

func finishRedis(cfg *Redis, sentinels string) error {
	cfg.SentinelAddrs = splitList(sentinels)
	if cfg.Addr == "" && len(cfg.SentinelAddrs) == 0 {
		return errors.New("REDIS_ADDR or REDIS_SENTINEL_ADDRS required")
	}
	return nil
}

func requireDatabase(cfg *Database) error {
	if cfg.DSN == "" {
		return errors.New("DATABASE_URL required")
	}
	switch cfg.Driver {
	case "postgres", "sqlite":
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func requireSecret() ([]byte, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET environment variable required")
	}
	return []byte(secret), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadAuth reads the credential issuer configuration.
func LoadAuth(args []string) (*Auth, error) {
	cfg := &Auth{}
	var level, sentinels string

	l := newLoader("auth")
	l.string(&cfg.Addr, "addr", "AUTH_ADDR", ":5001", "HTTP listen address")
	l.log(&cfg.Log, &level)
	l.database(&cfg.Database)
	l.redis(&cfg.Redis, &sentinels)
	l.duration(&cfg.SessionTTL, "session-ttl", "SESSION_TTL", time.Hour, "Token and session lifetime")
	l.string(&cfg.NATSURL, "nats-url", "NATS_URL", "", "NATS server URL; events are disabled when empty")
	if err := l.parse(args); err != nil {
		return nil, err
	}

	if err := finishLog(&cfg.Log, level); err != nil {
		return nil, err
	}
	if err := requireDatabase(&cfg.Database); err != nil {
		return nil, err
	}
	if err := finishRedis(&cfg.Redis, sentinels); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session-ttl must be positive")
	}
	secret, err := requireSecret()
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret
	return cfg, nil
}

// LoadEmployee reads the directory service configuration.
func LoadEmployee(args []string) (*Employee, error) {
	cfg := &Employee{}
	var level, sentinels string

	l := newLoader("employee")
	l.string(&cfg.Addr, "addr", "EMPLOYEE_ADDR", ":5002", "HTTP listen address")
	l.log(&cfg.Log, &level)
	l.database(&cfg.Database)
	l.redis(&cfg.Redis, &sentinels)
	l.string(&cfg.CacheBackend, "cache-backend", "CACHE_BACKEND", "redis", "Result cache backend (redis or memory)")
	l.int(&cfg.CacheMaxMB, "cache-max-mb", "CACHE_MAX_MB", 64, "Size bound of the in-process cache in megabytes")
	l.duration(&cfg.ListCacheTTL, "list-cache-ttl", "LIST_CACHE_TTL", 30*time.Second, "Lifetime of cached employee lists")
	l.duration(&cfg.EntryCacheTTL, "entry-cache-ttl", "ENTRY_CACHE_TTL", 5*time.Minute, "Lifetime of cached single employees")
	l.string(&cfg.PhotoURL, "photo-service", "PHOTO_SERVICE_URL", "http://photo-service:5003", "Photo service base URL")
	l.duration(&cfg.PhotoTimeout, "photo-timeout", "PHOTO_TIMEOUT", 10*time.Second, "Timeout for photo service calls")
	l.string(&cfg.PhotoURLPrefix, "photo-url-prefix", "PHOTO_URL_PREFIX", "/static/uploads", "Public path prefix for photo URLs")
	l.string(&cfg.NATSURL, "nats-url", "NATS_URL", "", "NATS server URL; events are disabled when empty")
	if err := l.parse(args); err != nil {
		return nil, err
	}

	if err := finishLog(&cfg.Log, level); err != nil {
		return nil, err
	}
	if err := requireDatabase(&cfg.Database); err != nil {
		return nil, err
	}
	if err := finishRedis(&cfg.Redis, sentinels); err != nil {
		return nil, err
	}
	if cfg.ListCacheTTL <= 0 || cfg.EntryCacheTTL <= 0 {
		return nil, errors.New("cache TTLs must be positive")
	}
	switch cfg.CacheBackend {
	case "redis":
	case "memory":
		if cfg.CacheMaxMB <= 0 {
			return nil, errors.New("cache-max-mb must be positive")
		}
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
	secret, err := requireSecret()
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret
	cfg.PhotoURLPrefix = strings.TrimRight(cfg.PhotoURLPrefix, "/")
	return cfg, nil
}

// LoadPhoto reads the blob store configuration.
func LoadPhoto(args []string) (*Photo, error) {
	cfg := &Photo{}
	var level string

	l := newLoader("photo")
	l.string(&cfg.Addr, "addr", "PHOTO_ADDR", ":5003", "HTTP listen address")
	l.log(&cfg.Log, &level)
	l.string(&cfg.Dir, "photos-dir", "PHOTOS_DIR", "/app/static/uploads", "Directory holding uploaded photos")
	l.int64(&cfg.MaxUploadMB, "max-upload-mb", "MAX_UPLOAD_MB", 10, "Maximum accepted upload size in megabytes")
	if err := l.parse(args); err != nil {
		return nil, err
	}

	if err := finishLog(&cfg.Log, level); err != nil {
		return nil, err
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, errors.New("max-upload-mb must be positive")
	}
	return cfg, nil
}

// LoadGateway reads the edge proxy configuration. The upstream URLs only
// matter when no routes file is given.
func LoadGateway(args []string) (*Gateway, error) {
	cfg := &Gateway{}
	var level string

	l := newLoader("gateway")
	l.string(&cfg.Addr, "addr", "GATEWAY_ADDR", ":5000", "HTTP listen address")
	l.string(&cfg.HealthAddr, "health-addr", "GATEWAY_HEALTH_ADDR", "", "Separate listen address for health checks; served on addr when empty")
	l.log(&cfg.Log, &level)
	l.string(&cfg.RoutesFile, "routes", "GATEWAY_ROUTES", "", "Path to routes.yaml")
	l.string(&cfg.AuthURL, "auth-service", "AUTH_SERVICE_URL", "http://auth-server:5001", "Auth service base URL")
	l.string(&cfg.EmployeeURL, "employee-service", "EMPLOYEE_SERVICE_URL", "http://employee-server:5002", "Employee service base URL")
	l.string(&cfg.PhotoURL, "photo-service", "PHOTO_SERVICE_URL", "http://photo-service:5003", "Photo service base URL")
	l.duration(&cfg.Timeout, "upstream-timeout", "UPSTREAM_TIMEOUT", 30*time.Second, "Timeout for proxied requests")
	var origins string
	l.string(&origins, "cors-origins", "CORS_ORIGINS", "*", "Comma-separated allowed browser origins")
	if err := l.parse(args); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitList(origins)

	if err := finishLog(&cfg.Log, level); err != nil {
		return nil, err
	}
	return cfg, nil
}
