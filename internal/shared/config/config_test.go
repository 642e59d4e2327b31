package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("PRODUCT_REGISTRY_URL", "http://registry:8085")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Registry.URL != "http://registry:8085" {
		t.Errorf("Registry.URL = %q, want %q", cfg.Registry.URL, "http://registry:8085")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Ledger.Driver != LedgerPostgres {
		t.Errorf("Ledger.Driver = %q, want %q", cfg.Ledger.Driver, LedgerPostgres)
	}
	if cfg.Registry.CallTimeout != 2*time.Second || cfg.Registry.MinRequests != 10 {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Registry)
	}
	if cfg.Scheduler.Monthly != "L@23:00" {
		t.Errorf("Scheduler.Monthly = %q, want L@23:00", cfg.Scheduler.Monthly)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location)
	}
}

func TestLoad_MissingRegistryURL(t *testing.T) {
	t.Setenv("PRODUCT_REGISTRY_URL", "")
	os.Unsetenv("PRODUCT_REGISTRY_URL")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing PRODUCT_REGISTRY_URL, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DB_PORT", "not-a-number"},
		{"REGISTRY_CALL_TIMEOUT", "soon"},
		{"BREAKER_FAILURE_RATE", "half"},
		{"BREAKER_FAILURE_RATE", "1.5"},
		{"BREAKER_MIN_REQUESTS", "0"},
		{"BATCH_WORKERS", "0"},
		{"LEDGER_DRIVER", "mongo"},
		{"TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() expected error for %s=%s, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_CollectsAllParseErrors(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "x")
	t.Setenv("SCHEDULER_JOB_DELAY", "y")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "DB_PORT") || !strings.Contains(err.Error(), "SCHEDULER_JOB_DELAY") {
		t.Errorf("expected both keys in error, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LEDGER_DRIVER", "MEMORY")
	t.Setenv("SCHEDULER_COMPENSATION_TIMES", " 01:00 , ,13:30")
	t.Setenv("ALERT_TOKENS", "a,b")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("TIMEZONE", "America/Lima")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Ledger.Driver != LedgerMemory {
		t.Errorf("Ledger.Driver = %q, want %q", cfg.Ledger.Driver, LedgerMemory)
	}
	if want := []string{"01:00", "13:30"}; !reflect.DeepEqual(cfg.Scheduler.CompensationTimes, want) {
		t.Errorf("CompensationTimes = %v, want %v", cfg.Scheduler.CompensationTimes, want)
	}
	if len(cfg.Firebase.AlertTokens) != 2 {
		t.Errorf("AlertTokens = %v, want 2 tokens", cfg.Firebase.AlertTokens)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
	if cfg.Location.String() != "America/Lima" {
		t.Errorf("Location = %v, want America/Lima", cfg.Location)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"TRUE", "TRUE", false, true},
		{"1", "1", false, true},
		{"yes", "yes", false, true},
		{"false", "false", true, false},
		{"0", "0", true, false},
		{"no", "no", true, false},
		{"empty uses default", "", true, true},
		{"invalid uses default", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getBoolEnv("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "ledger", SSLMode: "require"}
	want := "host=db port=5433 user=u password=p dbname=ledger sslmode=require"
	if got := db.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
