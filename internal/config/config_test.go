package config

import (
	"strings"
	"testing"
	"time"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{}))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.MagicLinkDefaultTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl defaults: session=%v link=%v", cfg.SessionTTL, cfg.MagicLinkDefaultTTL)
	}
	if cfg.MagicLinkMaxTTL != 168*time.Hour {
		t.Fatalf("expected 168h max ttl, got %v", cfg.MagicLinkMaxTTL)
	}
	if cfg.CollaboratorTimeout != 10*time.Second {
		t.Fatalf("expected 10s collaborator timeout, got %v", cfg.CollaboratorTimeout)
	}
	if cfg.DirectoryDriver != DirectoryDriverMonday || cfg.StoreDriver != StoreDriverMonday {
		t.Fatalf("unexpected drivers: directory=%q store=%q", cfg.DirectoryDriver, cfg.StoreDriver)
	}
}

func TestLoadOverridesAndTrimsBaseURL(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{
		"PUBLIC_BASE_URL":         "https://portal.example.com/",
		"JWT_SECRET":              "abcdefghijklmnopqrstuvwxyz123456",
		"SESSION_TTL":             "2h",
		"STORE_DRIVER":            "REDIS",
		"REDIS_ADDR":              "localhost:6379",
		"CORS_ORIGINS":            "https://a.example, ,https://b.example",
		"RATE_LIMIT_EXCHANGE_RPM": "5",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PublicBaseURL != "https://portal.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected 2h session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.StoreDriver != StoreDriverRedis {
		t.Fatalf("expected lower-cased redis driver, got %q", cfg.StoreDriver)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %+v", cfg.CORSOrigins)
	}
	if cfg.RateLimitExchangeRPM != 5 {
		t.Fatalf("expected exchange rpm 5, got %d", cfg.RateLimitExchangeRPM)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantMsg string
		class   string
	}{
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "forever"}, wantMsg: "parse SESSION_TTL", class: "parse"},
		{name: "bad int", env: map[string]string{"MONDAY_MAX_PAGES": "many"}, wantMsg: "parse MONDAY_MAX_PAGES", class: "parse"},
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}, wantMsg: "JWT_SECRET must be at least 32", class: "validation"},
		{name: "timeout out of range", env: map[string]string{"COLLABORATOR_TIMEOUT": "1m"}, wantMsg: "COLLABORATOR_TIMEOUT", class: "validation"},
		{name: "redis without addr", env: map[string]string{"STORE_DRIVER": "redis"}, wantMsg: "REDIS_ADDR is required", class: "validation"},
		{name: "gorm without dsn", env: map[string]string{"DIRECTORY_DRIVER": "gorm"}, wantMsg: "DATABASE_URL is required", class: "validation"},
		{name: "unknown store", env: map[string]string{"STORE_DRIVER": "etcd"}, wantMsg: "unsupported STORE_DRIVER", class: "validation"},
		{name: "miss cache too long", env: map[string]string{"DIRECTORY_MISS_CACHE_TTL": "1h"}, wantMsg: "DIRECTORY_MISS_CACHE_TTL", class: "validation"},
		{name: "max below default", env: map[string]string{"MAGIC_LINK_MAX_TTL": "1h"}, wantMsg: "MAGIC_LINK_MAX_TTL", class: "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(envFrom(tc.env))
			if err == nil {
				t.Fatal("expected load error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected %q in error, got %v", tc.wantMsg, err)
			}
			if got := classifyLoadError(err); got != tc.class {
				t.Fatalf("classifyLoadError()=%q want %q", got, tc.class)
			}
		})
	}
}
