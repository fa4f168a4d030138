package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	GatewayAddr string // console-gateway
	StaticDir   string // optional SPA build served for allowed navigations

	// Backend API reached through the interceptor pipeline
	APIBaseURL     string
	UploadTimeout  time.Duration
	RequestTimeout time.Duration // 0 = no client-side limit

	// Credential slot
	SessionBackend string // file | memory | redis | postgres
	SessionSlotKey string
	SessionFile    string
	CookieSecure   bool

	// Authorization
	RoutesFile       string
	PermissionsClaim string // JMESPath into the decoded claim set
	PolicyFile       string // optional rego grant policy

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:              env("CONSOLE_ENV", "dev"),
		GatewayAddr:      env("GATEWAY_ADDR", ":8090"),
		StaticDir:        env("STATIC_DIR", ""),
		APIBaseURL:       env("API_BASE_URL", "http://localhost:8000/api/"),
		UploadTimeout:    envDur("UPLOAD_TIMEOUT_SEC", 60) * time.Second,
		RequestTimeout:   envDur("REQUEST_TIMEOUT_SEC", 0) * time.Second,
		SessionBackend:   env("SESSION_BACKEND", "file"),
		SessionSlotKey:   env("SESSION_SLOT_KEY", "accessToken"),
		SessionFile:      env("SESSION_FILE", defaultSessionFile()),
		CookieSecure:     envBool("COOKIE_SECURE", false),
		RoutesFile:       env("ROUTES_FILE", ""),
		PermissionsClaim: env("PERMISSIONS_CLAIM", "permissions"),
		PolicyFile:       env("AUTHZ_POLICY_FILE", ""),
		RedisURL:         env("REDIS_URL", ""),
		DatabaseURL:      env("DATABASE_URL", ""),
	}
	if cfg.SessionBackend == "redis" && cfg.RedisURL == "" {
		log.Println("[WARN] SESSION_BACKEND=redis but REDIS_URL not set, falling back to file slot")
		cfg.SessionBackend = "file"
	}
	if cfg.SessionBackend == "postgres" && cfg.DatabaseURL == "" {
		log.Println("[WARN] SESSION_BACKEND=postgres but DATABASE_URL not set, falling back to file slot")
		cfg.SessionBackend = "file"
	}
	return cfg
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "opsconsole", "accessToken")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
