// ABOUTME: kodejam configuration: optional YAML file, then KODEJAM_* environment overrides, then defaults.
// ABOUTME: Enforces the security constraint that remote binds require opting in and an auth token.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrRemoteWithoutToken = errors.New(
		"allow_remote is true but auth_token is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"bind is a non-loopback address but allow_remote is not true; set allow_remote and auth_token to allow remote access",
	)
)

// Defaults.
const (
	DefaultBind          = "127.0.0.1:3001"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultBuildMaxTurns = 50
)

// AgentConfig configures the external agent process.
type AgentConfig struct {
	Binary         string        `yaml:"binary"`
	MaxTurns       int           `yaml:"max_turns"`
	BuildMaxTurns  int           `yaml:"build_max_turns"`
	ExtraArgs      []string      `yaml:"extra_args"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	MaxLineBytes   int           `yaml:"max_line_bytes"`
	TerminateGrace time.Duration `yaml:"terminate_grace"`
	// EnvPolicy is inherit_all, inherit_core, or inherit_none.
	EnvPolicy string            `yaml:"env_policy"`
	Env       map[string]string `yaml:"env"`
}

// CaptureConfig configures screenshot capture.
type CaptureConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ChromePath      string        `yaml:"chrome_path"`
	Headless        *bool         `yaml:"headless"`
}

// IsEnabled reports whether capture is on; it defaults to true.
func (c CaptureConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsHeadless reports whether Chrome runs headless; it defaults to true.
func (c CaptureConfig) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// Config is the full kodejam configuration.
type Config struct {
	Bind           string        `yaml:"bind"`
	AllowRemote    bool          `yaml:"allow_remote"`
	AuthToken      string        `yaml:"auth_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	DataDir        string        `yaml:"data_dir"`
	BrowseRoot     string        `yaml:"browse_root"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	Agent          AgentConfig   `yaml:"agent"`
	Capture        CaptureConfig `yaml:"capture"`
}

// Load reads path (skipped when empty or missing), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = parseBool(v)
		}
	}
	optBool := func(key string, dst **bool) {
		if v, ok := lookup(key); ok && v != "" {
			b := parseBool(v)
			*dst = &b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("KODEJAM_BIND", &c.Bind)
	boolean("KODEJAM_ALLOW_REMOTE", &c.AllowRemote)
	str("KODEJAM_AUTH_TOKEN", &c.AuthToken)
	if v, ok := lookup("KODEJAM_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	str("KODEJAM_DATA_DIR", &c.DataDir)
	str("KODEJAM_BROWSE_ROOT", &c.BrowseRoot)
	str("KODEJAM_LOG_LEVEL", &c.LogLevel)
	str("KODEJAM_LOG_FORMAT", &c.LogFormat)

	str("KODEJAM_AGENT_BINARY", &c.Agent.Binary)
	integer("KODEJAM_AGENT_MAX_TURNS", &c.Agent.MaxTurns)
	integer("KODEJAM_AGENT_BUILD_MAX_TURNS", &c.Agent.BuildMaxTurns)
	duration("KODEJAM_AGENT_TURN_TIMEOUT", &c.Agent.TurnTimeout)
	integer("KODEJAM_AGENT_MAX_LINE_BYTES", &c.Agent.MaxLineBytes)
	duration("KODEJAM_AGENT_TERMINATE_GRACE", &c.Agent.TerminateGrace)
	str("KODEJAM_AGENT_ENV_POLICY", &c.Agent.EnvPolicy)

	optBool("KODEJAM_CAPTURE_ENABLED", &c.Capture.Enabled)
	integer("KODEJAM_CAPTURE_WIDTH", &c.Capture.Width)
	integer("KODEJAM_CAPTURE_HEIGHT", &c.Capture.Height)
	duration("KODEJAM_CAPTURE_NAVIGATE_TIMEOUT", &c.Capture.NavigateTimeout)
	duration("KODEJAM_CAPTURE_SETTLE_DELAY", &c.Capture.SettleDelay)
	str("KODEJAM_CAPTURE_CHROME_PATH", &c.Capture.ChromePath)
	optBool("KODEJAM_CAPTURE_HEADLESS", &c.Capture.Headless)

	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Bind == "" {
		c.Bind = DefaultBind
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Agent.BuildMaxTurns <= 0 {
		c.Agent.BuildMaxTurns = DefaultBuildMaxTurns
	}
	if c.Agent.EnvPolicy == "" {
		c.Agent.EnvPolicy = "inherit_all"
	}
}

// Validate checks value ranges and the remote-access rules.
func (c *Config) Validate() error {
	if c.AllowRemote && c.AuthToken == "" {
		return ErrRemoteWithoutToken
	}

	// Only 127.0.0.0/8, ::1, and "localhost" count as loopback.
	if !c.AllowRemote {
		host, _, err := net.SplitHostPort(c.Bind)
		if err != nil {
			return fmt.Errorf("invalid bind %q: %w", c.Bind, err)
		}
		ip := net.ParseIP(host)
		switch {
		case ip != nil && ip.IsLoopback():
		case host == "localhost":
		default:
			return fmt.Errorf("%w: bind=%s", ErrNonLoopbackBind, c.Bind)
		}
	}

	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log_format must be text, json, or logfmt, got %q", c.LogFormat)
	}
	switch c.Agent.EnvPolicy {
	case "inherit_all", "inherit_core", "inherit_none":
	default:
		return fmt.Errorf("agent.env_policy must be inherit_all, inherit_core, or inherit_none, got %q", c.Agent.EnvPolicy)
	}
	if c.Agent.MaxTurns < 0 || c.Agent.MaxLineBytes < 0 || c.Agent.TurnTimeout < 0 {
		return errors.New("agent limits must not be negative")
	}
	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return errors.New("capture viewport must not be negative")
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
