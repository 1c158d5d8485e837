package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment     string
	HTTPPort        string
	ServiceName     string
	ShutdownTimeout time.Duration

	// SyncOriginID names this process in the session replication mesh. It
	// keys the mirrored session record, so it must survive restarts for the
	// process to restore its own record on boot.
	SyncOriginID string

	// Tenant addressing.
	RootDomain      string
	PreviewRoots    []string
	DevTenantKey    string
	ReservedSubs    []string
	SessionCookie   string
	VerifierCookie  string
	SessionMaxAge   time.Duration
	PaymentHoldTTL  time.Duration
	HandoffParam    string
	SecureCookies   bool
	ProvisionSecret string

	// DNS provider (signed API).
	DNSEndpoint    string
	DNSAppKey      string
	DNSAppSecret   string
	DNSConsumerKey string
	DNSZone        string
	DNSTarget      string
	DNSCallTimeout time.Duration
	DNSCallsPerSec float64

	// Edge hosting provider (bearer API).
	EdgeAPIURL      string
	EdgeToken       string
	EdgeProjectID   string
	EdgeCallTimeout time.Duration

	// Upstream identity provider (authorization code flow).
	AuthAuthorizeURL string
	AuthTokenURL     string
	AuthUserInfoURL  string
	AuthClientID     string
	AuthClientSecret string
	AuthScopes       []string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AvailabilityLimit  int
	AvailabilityWindow time.Duration

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	rootDomain := strings.TrimSpace(os.Getenv("ROOT_DOMAIN"))
	if rootDomain == "" {
		return Config{}, fmt.Errorf("ROOT_DOMAIN is required")
	}

	cfg := Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ServiceName:     getEnv("SERVICE_NAME", "saas-sub001-tenancy"),
		ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		SyncOriginID:    strings.TrimSpace(os.Getenv("SESSION_ORIGIN_ID")),

		RootDomain:      strings.ToLower(rootDomain),
		PreviewRoots:    getList("PREVIEW_ROOT_DOMAINS", []string{"vercel.app", "netlify.app"}),
		DevTenantKey:    getEnv("DEV_TENANT_KEY", "dev"),
		ReservedSubs:    getList("RESERVED_SUBDOMAINS", []string{"www", "api", "app", "admin", "mail", "ftp", "auth", "cdn", "static"}),
		SessionCookie:   getEnv("SESSION_COOKIE_NAME", "ss_session"),
		VerifierCookie:  getEnv("VERIFIER_COOKIE_NAME", "ss_verifier"),
		SessionMaxAge:   getDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		PaymentHoldTTL:  getDuration("PAYMENT_HOLD_TTL", 10*time.Minute),
		HandoffParam:    getEnv("SESSION_HANDOFF_PARAM", "session"),
		SecureCookies:   getEnv("APP_ENV", "development") == "production",
		ProvisionSecret: os.Getenv("PROVISION_SECRET"),

		DNSEndpoint:    getEnv("DNS_API_ENDPOINT", "https://eu.api.ovh.com/1.0"),
		DNSAppKey:      os.Getenv("DNS_APP_KEY"),
		DNSAppSecret:   os.Getenv("DNS_APP_SECRET"),
		DNSConsumerKey: os.Getenv("DNS_CONSUMER_KEY"),
		DNSZone:        getEnv("DNS_ZONE", rootDomain),
		DNSTarget:      getEnv("DNS_CNAME_TARGET", "cname.vercel-dns.com."),
		DNSCallTimeout: getDuration("DNS_CALL_TIMEOUT", 10*time.Second),
		DNSCallsPerSec: getFloat("DNS_CALLS_PER_SEC", 5),

		EdgeAPIURL:      getEnv("EDGE_API_URL", "https://api.vercel.com"),
		EdgeToken:       os.Getenv("EDGE_API_TOKEN"),
		EdgeProjectID:   os.Getenv("EDGE_PROJECT_ID"),
		EdgeCallTimeout: getDuration("EDGE_CALL_TIMEOUT", 10*time.Second),

		AuthAuthorizeURL: os.Getenv("AUTH_AUTHORIZE_URL"),
		AuthTokenURL:     os.Getenv("AUTH_TOKEN_URL"),
		AuthUserInfoURL:  os.Getenv("AUTH_USERINFO_URL"),
		AuthClientID:     os.Getenv("AUTH_CLIENT_ID"),
		AuthClientSecret: os.Getenv("AUTH_CLIENT_SECRET"),
		AuthScopes:       getList("AUTH_SCOPES", []string{"openid", "profile", "email"}),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		AvailabilityLimit:  getInt("AVAILABILITY_RATE_LIMIT", 30),
		AvailabilityWindow: getDuration("AVAILABILITY_RATE_WINDOW", time.Minute),

		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ProvisionSecret == "" {
		return Config{}, fmt.Errorf("PROVISION_SECRET is required")
	}
	if cfg.SyncOriginID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.SyncOriginID = strings.TrimSpace(host)
		}
	}
	if cfg.SyncOriginID == "" {
		cfg.SyncOriginID = cfg.ServiceName
	}

	return cfg, nil
}

// RootCandidates returns the configured root first, then the preview fallbacks.
func (c Config) RootCandidates() []string {
	return append([]string{c.RootDomain}, c.PreviewRoots...)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
