package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	shared "github.com/ripixel/fitglue-sync/pkg"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.BaseURL != shared.DefaultBaseURL {
		t.Errorf("Expected default base URL, got %s", cfg.BaseURL)
	}
	if cfg.DaysBack != shared.DefaultDaysBack {
		t.Errorf("Expected default days back %d, got %d", shared.DefaultDaysBack, cfg.DaysBack)
	}
	if cfg.PollInterval() != shared.DefaultPollInterval {
		t.Errorf("Expected default poll interval %v, got %v", shared.DefaultPollInterval, cfg.PollInterval())
	}
	if cfg.MaxPollFailures != shared.DefaultMaxPollFailures {
		t.Errorf("Expected default max poll failures %d, got %d", shared.DefaultMaxPollFailures, cfg.MaxPollFailures)
	}
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `base_url: https://staging.fitglue.app/v1
access_token: tok-123
workout_dir: /data/fit
days_back: 30
poll_interval_seconds: 10
poll_backoff: true
listen_addr: 127.0.0.1:7070
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.BaseURL != "https://staging.fitglue.app/v1" {
		t.Errorf("Expected YAML base URL, got %s", cfg.BaseURL)
	}
	if cfg.AccessToken != "tok-123" {
		t.Errorf("Expected access token from YAML, got %q", cfg.AccessToken)
	}
	if cfg.DaysBack != 30 {
		t.Errorf("Expected 30 days back, got %d", cfg.DaysBack)
	}
	if cfg.PollInterval() != 10*time.Second {
		t.Errorf("Expected 10s poll interval, got %v", cfg.PollInterval())
	}
	if !cfg.PollBackoff {
		t.Error("Expected poll backoff enabled")
	}
	if cfg.ListenAddr != "127.0.0.1:7070" {
		t.Errorf("Expected listen addr from YAML, got %q", cfg.ListenAddr)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("base_url: https://file.example\ndays_back: 30\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("FITGLUE_BASE_URL", "https://env.example")
	t.Setenv("FITGLUE_DAYS_BACK", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.BaseURL != "https://env.example" {
		t.Errorf("Expected env to win over file, got %s", cfg.BaseURL)
	}
	if cfg.DaysBack != 7 {
		t.Errorf("Expected env days back 7, got %d", cfg.DaysBack)
	}
}

func TestLoadConfigRejectsBadNumericEnv(t *testing.T) {
	t.Setenv("FITGLUE_DAYS_BACK", "ninety")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for non-numeric FITGLUE_DAYS_BACK")
	}

	t.Setenv("FITGLUE_DAYS_BACK", "0")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for non-positive FITGLUE_DAYS_BACK")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestNewServiceRequiresCredentials(t *testing.T) {
	cfg := &Config{BaseURL: shared.DefaultBaseURL}
	if _, err := NewService(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("Expected error when no credentials are configured")
	}
}

func TestNewServiceWiresDependencies(t *testing.T) {
	cfg := &Config{
		BaseURL:     shared.DefaultBaseURL,
		AccessToken: "tok-abc",
		WorkoutDir:  t.TempDir(),
		CachePath:   filepath.Join(t.TempDir(), "cache.json"),
		DaysBack:    30,
	}

	svc, err := NewService(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if svc.API == nil {
		t.Error("Expected API client to be wired")
	}
	if svc.Source == nil {
		t.Error("Expected workout source to be wired when workout_dir is set")
	}
	if svc.Reconciler == nil {
		t.Error("Expected reconciler to be wired")
	}
}

func TestComponentHandlerPrefixesMessage(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, GetSlogHandlerOptions(slog.LevelInfo))
	logger := slog.New(&ComponentHandler{Handler: handler})

	logger.Info("Sync session started", "component", "orchestrator")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	msg, _ := entry["message"].(string)
	if !strings.HasPrefix(msg, "[orchestrator] ") {
		t.Errorf("Expected component prefix, got %q", msg)
	}
	if _, ok := entry["severity"]; !ok {
		t.Error("Expected severity key in log output")
	}
}

func TestComponentHandlerWithAttrsCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, GetSlogHandlerOptions(slog.LevelInfo))
	logger := slog.New(&ComponentHandler{Handler: handler}).With("component", "poller")

	logger.Info("Polling import status")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	msg, _ := entry["message"].(string)
	if !strings.HasPrefix(msg, "[poller] ") {
		t.Errorf("Expected component from WithAttrs, got %q", msg)
	}
}
