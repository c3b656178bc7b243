// Package config loads the recipe notebook settings from the environment.
//
// Every value has a default, so an empty environment yields a working local
// setup backed by recipes.db. Durations accept Go syntax ("90s") or ISO-8601
// ("PT90S", "P1D"), the same notation recipes use for prep and cook times.
// Byte sizes accept an optional KiB/MiB/GiB (or KB/MB/GB) suffix.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// CORSConfig lists the browser origins allowed to call the API. Empty means
// any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS, which is only sent over HTTPS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig controls trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// Config is the full runtime configuration for the server and the CLI.
type Config struct {
	// HTTP server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBDriver string // sqlite|postgres
	DBDSN    string // SQLite path or Postgres DSN

	ImportMaxBytes   int64         // largest accepted import file
	ImportSessionTTL time.Duration // idle time before a preview is discarded
	ImageMaxHeight   int           // cap for the image height query parameter

	RateRPS   float64 // tokens per second; 0 disables limiting
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	// How long a confirm report is replayable under its Idempotency-Key.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Load reads the environment, applies defaults and validates the result.
// All problems are reported together, one per line.
func Load() (Config, error) {
	var p problems
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       p.durv("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: p.durv("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      p.durv("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       p.durv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    int(p.bytesv("MAX_HEADER_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", getenv("DB_PATH", "recipes.db")),

		ImportMaxBytes:   p.bytesv("IMPORT_MAX_BYTES", 10<<20),
		ImportSessionTTL: p.durv("IMPORT_SESSION_TTL", 30*time.Minute),
		ImageMaxHeight:   p.intv("IMAGE_MAX_HEIGHT", 2048),

		RateRPS:   p.floatv("RATE_RPS", 5),
		RateBurst: p.intv("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: p.durv("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: p.durv("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "recipe-notebook"),
			SampleRatio: p.floatv("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	cfg.validate(&p)
	return cfg, p.err()
}

func (cfg Config) validate(p *problems) {
	p.check(slices.Contains([]string{"debug", "info", "warn", "error", "fatal", "panic"}, cfg.LogLevel),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	p.check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	p.check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	p.check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	p.check(slices.Contains([]string{"sqlite", "postgres"}, cfg.DBDriver), "DB_DRIVER must be one of: sqlite, postgres")
	p.check(strings.TrimSpace(cfg.DBDSN) != "", "DB_DSN must not be empty")
	p.check(cfg.ImportMaxBytes > 0, "IMPORT_MAX_BYTES must be > 0")
	p.check(cfg.ImportSessionTTL > 0, "IMPORT_SESSION_TTL must be > 0")
	p.check(cfg.ImageMaxHeight >= 1, "IMAGE_MAX_HEIGHT must be >= 1")
	p.check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	p.check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	p.check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	p.check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	p.check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
}

// problems accumulates unparsable and invalid settings.
type problems []error

func (p *problems) check(ok bool, msg string) {
	if !ok {
		*p = append(*p, errors.New(msg))
	}
}

func (p *problems) bad(key, v, want string) {
	*p = append(*p, fmt.Errorf("%s: %q is not %s", key, v, want))
}

func (p *problems) err() error { return errors.Join(*p...) }

func (p *problems) intv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.bad(key, v, "an integer")
		return def
	}
	return n
}

func (p *problems) floatv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.bad(key, v, "a number")
		return def
	}
	return f
}

func (p *problems) durv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := parseDuration(v)
	if err != nil {
		p.bad(key, v, "a duration")
		return def
	}
	return d
}

func (p *problems) bytesv(key string, def int64) int64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := parseBytes(v)
	if err != nil {
		p.bad(key, v, "a byte size")
		return def
	}
	return n
}

// parseDuration accepts Go durations and ISO-8601 durations.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		iso, err := duration.Parse(s)
		if err != nil {
			return 0, err
		}
		return iso.ToTimeDuration(), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

var byteUnits = []struct {
	suffix string
	mult   int64
}{
	{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
	{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
	{"B", 1},
}

// parseBytes reads "2048", "512KiB" or "10MB".
func parseBytes(s string) (int64, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, unit := range byteUnits {
		if strings.HasSuffix(u, unit.suffix) {
			u, mult = strings.TrimSpace(strings.TrimSuffix(u, unit.suffix)), unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(u, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	v, _ := os.LookupEnv(k)
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones, except
// for the root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
