package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromMapDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromMap(map[string]string{"JWT_SECRET": "0123456789abcdef"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverPostgres || cfg.OfferTTL != 24*time.Hour {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.SweepSchedule != "@every 1m" || cfg.Locale != "en" || cfg.DefaultCurrency != "IDR" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if dsn := cfg.DB.Database().DSN(); dsn != "host=localhost port=5432 user=postgres password=postgres dbname=events sslmode=disable" {
		t.Fatalf("dsn = %q", dsn)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("location = %v", cfg.Location())
	}
}

func TestFromMapOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := FromMap(map[string]string{
		"JWT_SECRET":         "0123456789abcdef",
		"STORE_DRIVER":       "SQLite",
		"DATABASE_URL":       "postgres://u:p@db:5432/events",
		"ADMIN_EMAILS":       "a@example.com,b@example.com",
		"WAITLIST_OFFER_TTL": "90m",
		"PUBLIC_BASE_URL":    "https://events.example.com/",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite || cfg.OfferTTL != 90*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@example.com" {
		t.Fatalf("admin emails = %v", cfg.AdminEmails)
	}
	if cfg.DB.Database().DSN() != "postgres://u:p@db:5432/events" {
		t.Fatalf("dsn = %q", cfg.DB.Database().DSN())
	}
	if cfg.PublicBaseURL != "https://events.example.com" {
		t.Fatalf("base url = %q", cfg.PublicBaseURL)
	}
}

func TestFromMapRejectsBadSettings(t *testing.T) {
	t.Parallel()

	_, err := FromMap(map[string]string{"STORE_DRIVER": "mysql", "TIMEZONE": "Mars/Olympus"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"STORE_DRIVER", "JWT_SECRET", "TIMEZONE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	if _, err := FromMap(map[string]string{"JWT_SECRET": "0123456789abcdef", "WAITLIST_OFFER_TTL": "soon"}); err == nil {
		t.Fatal("expected duration parse error")
	}
}
