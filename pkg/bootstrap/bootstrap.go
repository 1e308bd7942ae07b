// Package bootstrap wires configuration, logging, and the standard
// dependency set for the sync client.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	shared "github.com/ripixel/fitglue-sync/pkg"
	"github.com/ripixel/fitglue-sync/pkg/cache"
	"github.com/ripixel/fitglue-sync/pkg/infrastructure/oauth"
	sentryutil "github.com/ripixel/fitglue-sync/pkg/infrastructure/sentry"
	"github.com/ripixel/fitglue-sync/pkg/integrations/fitglue"
	"github.com/ripixel/fitglue-sync/pkg/sources/fitdir"
)

// Config holds standard configuration for the sync client. Environment
// variables take precedence over the YAML file.
type Config struct {
	BaseURL string `yaml:"base_url"`

	// Auth: either a static access token or a token file refreshed
	// through the OAuth2 endpoint.
	AccessToken string `yaml:"access_token"`
	TokenPath   string `yaml:"token_path"`
	TokenURL    string `yaml:"token_url"`
	ClientID    string `yaml:"client_id"`

	WorkoutDir string `yaml:"workout_dir"`
	CachePath  string `yaml:"cache_path"`

	DaysBack        int  `yaml:"days_back"`
	PollIntervalSec int  `yaml:"poll_interval_seconds"`
	MaxPollFailures int  `yaml:"max_poll_failures"`
	PollBackoff     bool `yaml:"poll_backoff"`

	ListenAddr string `yaml:"listen_addr"`

	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
}

// Service holds initialized dependencies
type Service struct {
	API        *fitglue.Client
	Source     shared.WorkoutSource
	Reconciler shared.Reconciler
	Config     *Config
}

// LoadConfig reads configuration from environment variables, optionally
// layered on top of a YAML file.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		BaseURL:         shared.DefaultBaseURL,
		DaysBack:        shared.DefaultDaysBack,
		PollIntervalSec: int(shared.DefaultPollInterval / time.Second),
		MaxPollFailures: shared.DefaultMaxPollFailures,
		Environment:     "production",
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.BaseURL, "FITGLUE_BASE_URL")
	setString(&cfg.AccessToken, "FITGLUE_ACCESS_TOKEN")
	setString(&cfg.TokenPath, "FITGLUE_TOKEN_PATH")
	setString(&cfg.TokenURL, "FITGLUE_TOKEN_URL")
	setString(&cfg.ClientID, "FITGLUE_CLIENT_ID")
	setString(&cfg.WorkoutDir, "FITGLUE_WORKOUT_DIR")
	setString(&cfg.CachePath, "FITGLUE_CACHE_PATH")
	setString(&cfg.ListenAddr, "FITGLUE_LISTEN_ADDR")
	setString(&cfg.SentryDSN, "SENTRY_DSN")
	setString(&cfg.Environment, "FITGLUE_ENVIRONMENT")

	if v := os.Getenv("FITGLUE_DAYS_BACK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FITGLUE_DAYS_BACK %q", v)
		}
		cfg.DaysBack = n
	}
	if v := os.Getenv("FITGLUE_POLL_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FITGLUE_POLL_INTERVAL_SECONDS %q", v)
		}
		cfg.PollIntervalSec = n
	}
	if os.Getenv("FITGLUE_POLL_BACKOFF") == "true" {
		cfg.PollBackoff = true
	}

	return cfg, nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// GetSlogHandlerOptions returns standard handler options for structured
// log collectors (Cloud Logging compatible keys).
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false // stop
		}
		return true
	})

	if comp != "" {
		newMsg := fmt.Sprintf("[%s] %s", comp, r.Message)
		newRecord := slog.NewRecord(r.Time, r.Level, newMsg, r.PC)
		// Keep the component attribute in the structured payload; only the
		// message gets the prefix.
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// NewLogger creates a configured logger instance
func NewLogger(serviceName string) *slog.Logger {
	logLevelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := GetSlogHandlerOptions(level)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

// NewService initializes all standard dependencies
func NewService(ctx context.Context, cfg *Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initializing sync client", "base_url", cfg.BaseURL, "environment", cfg.Environment)

	if err := sentryutil.Init(sentryutil.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}, logger); err != nil {
		return nil, err
	}

	var httpClient *http.Client
	switch {
	case cfg.TokenPath != "" && cfg.TokenURL != "":
		httpClient = oauth.NewHTTPClient(oauth.NewFileTokenSource(cfg.TokenPath, cfg.TokenURL, cfg.ClientID))
	case cfg.AccessToken != "":
		httpClient = oauth.NewHTTPClient(&oauth.StaticTokenSource{AccessToken: cfg.AccessToken})
	default:
		return nil, fmt.Errorf("no credentials configured: set FITGLUE_ACCESS_TOKEN or FITGLUE_TOKEN_PATH + FITGLUE_TOKEN_URL")
	}

	api := fitglue.NewClient(cfg.BaseURL, httpClient)

	var source shared.WorkoutSource
	if cfg.WorkoutDir != "" {
		source = fitdir.NewSource(cfg.WorkoutDir, shared.DefaultSourceFanOut, logger)
	}

	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = "fitglue-activities.json"
	}
	window := time.Duration(cfg.DaysBack) * 24 * time.Hour
	reconciler := cache.NewRefresher(cachePath, window, api, logger)

	return &Service{
		API:        api,
		Source:     source,
		Reconciler: reconciler,
		Config:     cfg,
	}, nil
}
