package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Concurrency.MaxPerOrg != 8 {
		t.Fatalf("expected max_per_org 8, got %d", cfg.Concurrency.MaxPerOrg)
	}
	if cfg.Concurrency.ActiveWindow != 10*time.Minute {
		t.Fatalf("expected active window 10m, got %s", cfg.Concurrency.ActiveWindow)
	}
	if cfg.Scheduler.TickInterval != 2*time.Minute || cfg.Scheduler.DefaultTimezone != "America/New_York" {
		t.Fatalf("unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if cfg.Availability.BusinessStartHour != 9 || cfg.Availability.BusinessEndHour != 17 {
		t.Fatalf("unexpected business hours %+v", cfg.Availability)
	}
	if cfg.Availability.DefaultDuration != 30 || cfg.Availability.MinDuration != 15 || cfg.Availability.MaxDuration != 240 {
		t.Fatalf("unexpected durations %+v", cfg.Availability)
	}
	if cfg.HTTP.Port != 8080 || cfg.App.Env != "test" {
		t.Fatalf("unexpected app settings %+v %+v", cfg.App, cfg.HTTP)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DISPATCH_CONCURRENCY_MAX_PER_ORG", "3")
	t.Setenv("DISPATCH_SCHEDULER_CRON", "0 */5 * * * *")

	cfg, err := Load(writeConfig(t, "concurrency:\n  max_per_org: 12\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Concurrency.MaxPerOrg != 3 {
		t.Fatalf("expected env to win, got %d", cfg.Concurrency.MaxPerOrg)
	}
	if cfg.Scheduler.Cron != "0 */5 * * * *" {
		t.Fatalf("expected cron from env, got %q", cfg.Scheduler.Cron)
	}
}

func TestLoadRejectsInvertedBusinessHours(t *testing.T) {
	_, err := Load(writeConfig(t, "availability:\n  business_start_hour: 18\n  business_end_hour: 9\n"))
	if err == nil {
		t.Fatalf("expected error for inverted business hours")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
