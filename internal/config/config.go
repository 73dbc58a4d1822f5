package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the dialout server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	HTTPPort          int
	AppID             string        // application (client) id registered with the platform; also the expected token audience
	AppSecret         string        // client secret for outbound token acquisition
	TenantID          string        // default tenant for outbound calls
	BotBaseURL        string        // externally reachable base URL for callbacks and prompt audio
	PlatformBaseURL   string        // base URL of the remote calling platform API
	DiscoveryURL      string        // well-known OpenID configuration URL for inbound token validation
	TokenURL          string        // OAuth2 token endpoint template; %s is replaced with the tenant id
	HeartbeatInterval time.Duration // keep-alive period per active call
	LogLevel          string
	LogFormat         string // log output format: "text" or "json"
}

// defaults
const (
	defaultHTTPPort          = 8080
	defaultPlatformBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultDiscoveryURL      = "https://api.aps.skype.com/v1/.well-known/OpenIdConfiguration"
	defaultTokenURL          = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	defaultHeartbeatInterval = 10 * time.Minute
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// envPrefix is the prefix for all dialout environment variables.
const envPrefix = "DIALOUT_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("dialout", flag.ContinueOnError)

	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.AppID, "app-id", "", "application id registered with the calling platform")
	fs.StringVar(&cfg.AppSecret, "app-secret", "", "client secret for outbound platform authentication")
	fs.StringVar(&cfg.TenantID, "tenant-id", "", "default tenant id for outbound calls")
	fs.StringVar(&cfg.BotBaseURL, "bot-base-url", "", "externally reachable base URL for callbacks (e.g., https://bot.example.com)")
	fs.StringVar(&cfg.PlatformBaseURL, "platform-base-url", defaultPlatformBaseURL, "base URL of the calling platform API")
	fs.StringVar(&cfg.DiscoveryURL, "discovery-url", defaultDiscoveryURL, "well-known OpenID configuration URL for webhook token validation")
	fs.StringVar(&cfg.TokenURL, "token-url", defaultTokenURL, "OAuth2 token endpoint template (%s is replaced with the tenant id)")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", defaultHeartbeatInterval, "keep-alive period for active call sessions")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"http-port":          envPrefix + "HTTP_PORT",
		"app-id":             envPrefix + "APP_ID",
		"app-secret":         envPrefix + "APP_SECRET",
		"tenant-id":          envPrefix + "TENANT_ID",
		"bot-base-url":       envPrefix + "BOT_BASE_URL",
		"platform-base-url":  envPrefix + "PLATFORM_BASE_URL",
		"discovery-url":      envPrefix + "DISCOVERY_URL",
		"token-url":          envPrefix + "TOKEN_URL",
		"heartbeat-interval": envPrefix + "HEARTBEAT_INTERVAL",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "app-id":
			cfg.AppID = val
		case "app-secret":
			cfg.AppSecret = val
		case "tenant-id":
			cfg.TenantID = val
		case "bot-base-url":
			cfg.BotBaseURL = val
		case "platform-base-url":
			cfg.PlatformBaseURL = val
		case "discovery-url":
			cfg.DiscoveryURL = val
		case "token-url":
			cfg.TokenURL = val
		case "heartbeat-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.HeartbeatInterval = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.AppID == "" {
		return fmt.Errorf("app-id is required")
	}
	if c.AppSecret == "" {
		return fmt.Errorf("app-secret is required")
	}
	if c.BotBaseURL == "" {
		return fmt.Errorf("bot-base-url is required")
	}
	for name, raw := range map[string]string{
		"bot-base-url":      c.BotBaseURL,
		"platform-base-url": c.PlatformBaseURL,
		"discovery-url":     c.DiscoveryURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if !strings.Contains(c.TokenURL, "%s") {
		return fmt.Errorf("token-url must contain a %%s tenant placeholder, got %q", c.TokenURL)
	}
	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("heartbeat-interval must be at least 1s, got %s", c.HeartbeatInterval)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	// Callback and audio URLs are built by joining onto BotBaseURL; keep the
	// bases slash-free so joins stay predictable.
	c.BotBaseURL = strings.TrimRight(c.BotBaseURL, "/")
	c.PlatformBaseURL = strings.TrimRight(c.PlatformBaseURL, "/")

	return nil
}

// CallbackURL returns the absolute URL the platform should POST call
// notifications to.
func (c *Config) CallbackURL() string {
	return c.BotBaseURL + "/api/v1/callbacks"
}

// TokenEndpoint returns the OAuth2 token endpoint for the given tenant.
// An empty tenant falls back to the multi-tenant "common" endpoint.
func (c *Config) TokenEndpoint(tenant string) string {
	if strings.TrimSpace(tenant) == "" {
		tenant = "common"
	}
	return fmt.Sprintf(c.TokenURL, tenant)
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
