package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
	"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
	"API_BASE_PATH", "DB_DRIVER", "DB_DSN", "DB_PATH", "IMPORT_MAX_BYTES",
	"IMPORT_SESSION_TTL", "IMAGE_MAX_HEIGHT", "RATE_RPS", "RATE_BURST",
	"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
}

// cleanEnv blanks every setting so the host environment cannot leak in.
func cleanEnv(t *testing.T, set map[string]string) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	for k, v := range set {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t, nil)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "recipes.db" {
		t.Fatalf("storage defaults: %q %q", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.ImportMaxBytes != 10<<20 || cfg.ImportSessionTTL != 30*time.Minute || cfg.ImageMaxHeight != 2048 {
		t.Fatalf("import defaults: %+v", cfg)
	}
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("limits: %+v", cfg)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.Security.EnableHSTS || cfg.OTEL.Enabled {
		t.Fatalf("protection/otel defaults: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t, map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "PT3S",
		"MAX_HEADER_BYTES":            "8KiB",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "Warning",
		"LOG_PRETTY":                  "yes",
		"API_BASE_PATH":               "api/v2/",
		"DB_DRIVER":                   "Postgres",
		"DB_DSN":                      "postgres://u:p@db/recipes",
		"IMPORT_MAX_BYTES":            "2MB",
		"IMPORT_SESSION_TTL":          "PT5M",
		"IMAGE_MAX_HEIGHT":            "640",
		"RATE_RPS":                    "0",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"IDEMPOTENCY_TTL":             "P2D",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"port", cfg.Port, "8088"},
		{"read timeout", cfg.ReadTimeout, 2 * time.Second},
		{"iso write timeout", cfg.WriteTimeout, 3 * time.Second},
		{"header bytes", cfg.MaxHeaderBytes, 8 << 10},
		{"gin mode fallback", cfg.GinMode, "release"},
		{"log level alias", cfg.LogLevel, "warn"},
		{"pretty", cfg.LogPretty, true},
		{"base path", cfg.APIBasePath, "/api/v2"},
		{"driver lowercased", cfg.DBDriver, "postgres"},
		{"dsn", cfg.DBDSN, "postgres://u:p@db/recipes"},
		{"import bytes", cfg.ImportMaxBytes, int64(2_000_000)},
		{"session ttl", cfg.ImportSessionTTL, 5 * time.Minute},
		{"image height", cfg.ImageMaxHeight, 640},
		{"rate disabled", cfg.RateRPS, 0.0},
		{"origins", cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}},
		{"hsts", cfg.Security.EnableHSTS, true},
		{"idempotency ttl", cfg.IdempotencyTTL, 48 * time.Hour},
		{"otel enabled", cfg.OTEL.Enabled, true},
		{"otel insecure", cfg.OTEL.Insecure, false},
		{"sample ratio", cfg.OTEL.SampleRatio, 0.25},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %#v; want %#v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_LegacyDBPath(t *testing.T) {
	cleanEnv(t, map[string]string{"DB_PATH": "legacy.db"})
	cfg, err := Load()
	if err != nil || cfg.DBDSN != "legacy.db" {
		t.Fatalf("DSN = %q, err = %v", cfg.DBDSN, err)
	}
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL must be one of"},
		{"PORT", "   ", "PORT must not be empty"},
		{"READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"READ_TIMEOUT", "soon", `READ_TIMEOUT: "soon" is not a duration`},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES must be > 0"},
		{"MAX_HEADER_BYTES", "lots", "MAX_HEADER_BYTES"},
		{"DB_DRIVER", "mysql", "DB_DRIVER must be one of"},
		{"DB_PATH", "   ", "DB_DSN must not be empty"},
		{"IMPORT_MAX_BYTES", "0", "IMPORT_MAX_BYTES must be > 0"},
		{"IMPORT_MAX_BYTES", "10XB", `IMPORT_MAX_BYTES: "10XB" is not a byte size`},
		{"IMPORT_SESSION_TTL", "PT0S", "IMPORT_SESSION_TTL must be > 0"},
		{"IMAGE_MAX_HEIGHT", "0", "IMAGE_MAX_HEIGHT must be >= 1"},
		{"IMAGE_MAX_HEIGHT", "tall", "IMAGE_MAX_HEIGHT: \"tall\" is not an integer"},
		{"RATE_RPS", "-1", "RATE_RPS must be >= 0"},
		{"RATE_RPS", "x", `RATE_RPS: "x" is not a number`},
		{"RATE_BURST", "0", "RATE_BURST must be >= 1"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE must be >= 0"},
		{"IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL must be > 0"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cleanEnv(t, map[string]string{tt.key: tt.value})
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v; want %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	cleanEnv(t, map[string]string{
		"DB_DRIVER":  "oracle",
		"RATE_BURST": "0",
		"LOG_LEVEL":  "chatty",
	})
	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d problems: %q", len(lines), lines)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"150ms", 150 * time.Millisecond, true},
		{" 1h30m ", 90 * time.Minute, true},
		{"PT1H30M", 90 * time.Minute, true},
		{"P1D", 24 * time.Hour, true},
		{"PXYZ", 0, false},
		{"tomorrow", 0, false},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"2048", 2048, true},
		{"512KiB", 512 << 10, true},
		{"10 mib", 10 << 20, true},
		{"1GB", 1_000_000_000, true},
		{"64B", 64, true},
		{"MiB", 0, false},
		{"1.5MiB", 0, false},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseBytes(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestGetbool(t *testing.T) {
	for _, v := range []string{"1", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("FLAG", v)
		if !getbool("FLAG", false) {
			t.Errorf("getbool(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "False", " no ", "n", "OFF"} {
		t.Setenv("FLAG", v)
		if getbool("FLAG", true) {
			t.Errorf("getbool(%q) = true", v)
		}
	}
	t.Setenv("FLAG", "maybe")
	if !getbool("FLAG", true) || getbool("FLAG", false) {
		t.Error("unrecognised value should yield the default")
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if got := splitCSV(" , "); got != nil {
		t.Fatalf("splitCSV blanks = %#v", got)
	}
	if got := splitCSV(" a, ,b ,c,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "//api/v1//": "/api/v1"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
