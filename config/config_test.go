// ABOUTME: Tests for configuration loading: YAML parsing, KODEJAM_* overrides, defaults, and remote-access validation.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != DefaultBind {
		t.Errorf("Bind = %q, want %q", cfg.Bind, DefaultBind)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Agent.BuildMaxTurns != DefaultBuildMaxTurns {
		t.Errorf("BuildMaxTurns = %d", cfg.Agent.BuildMaxTurns)
	}
	if cfg.Agent.EnvPolicy != "inherit_all" {
		t.Errorf("EnvPolicy = %q", cfg.Agent.EnvPolicy)
	}
	if !cfg.Capture.IsEnabled() || !cfg.Capture.IsHeadless() {
		t.Error("capture should default to enabled and headless")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
bind: "localhost:4000"
log_level: debug
log_format: json
browse_root: /srv/projects
allowed_origins: ["http://localhost:5173"]
agent:
  binary: /opt/claude
  max_turns: 12
  extra_args: ["--model", "sonnet"]
  turn_timeout: 5m
  terminate_grace: 3s
  env_policy: inherit_core
  env:
    FOO: bar
capture:
  enabled: false
  width: 1440
  height: 900
  settle_delay: 250ms
  headless: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != "localhost:4000" || cfg.LogFormat != "json" || cfg.LogLevel != "debug" {
		t.Errorf("top-level fields: %+v", cfg)
	}
	if cfg.BrowseRoot != "/srv/projects" || len(cfg.AllowedOrigins) != 1 {
		t.Errorf("browse_root/allowed_origins: %q %v", cfg.BrowseRoot, cfg.AllowedOrigins)
	}
	a := cfg.Agent
	if a.Binary != "/opt/claude" || a.MaxTurns != 12 || len(a.ExtraArgs) != 2 {
		t.Errorf("agent: %+v", a)
	}
	if a.TurnTimeout != 5*time.Minute || a.TerminateGrace != 3*time.Second {
		t.Errorf("agent durations: %v %v", a.TurnTimeout, a.TerminateGrace)
	}
	if a.EnvPolicy != "inherit_core" || a.Env["FOO"] != "bar" {
		t.Errorf("agent env: %q %v", a.EnvPolicy, a.Env)
	}
	c := cfg.Capture
	if c.IsEnabled() || c.IsHeadless() {
		t.Error("capture enabled/headless should be false")
	}
	if c.Width != 1440 || c.Height != 900 || c.SettleDelay != 250*time.Millisecond {
		t.Errorf("capture: %+v", c)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "bind: \"127.0.0.1:4000\"\nagent:\n  max_turns: 3\n")
	t.Setenv("KODEJAM_BIND", "127.0.0.1:5000")
	t.Setenv("KODEJAM_AGENT_MAX_TURNS", "9")
	t.Setenv("KODEJAM_AGENT_TURN_TIMEOUT", "90s")
	t.Setenv("KODEJAM_CAPTURE_ENABLED", "false")
	t.Setenv("KODEJAM_ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != "127.0.0.1:5000" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.Agent.MaxTurns != 9 || cfg.Agent.TurnTimeout != 90*time.Second {
		t.Errorf("agent overrides: %+v", cfg.Agent)
	}
	if cfg.Capture.IsEnabled() {
		t.Error("capture should be disabled by env")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsBadEnvValues(t *testing.T) {
	t.Setenv("KODEJAM_AGENT_MAX_TURNS", "many")
	t.Setenv("KODEJAM_CAPTURE_SETTLE_DELAY", "soon")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for malformed env values")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "bind: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRemoteAccess(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"loopback ipv4", Config{Bind: "127.0.0.1:3001"}, nil},
		{"loopback ipv6", Config{Bind: "[::1]:3001"}, nil},
		{"localhost", Config{Bind: "localhost:3001"}, nil},
		{"wildcard without opt-in", Config{Bind: "0.0.0.0:3001"}, ErrNonLoopbackBind},
		{"lan address without opt-in", Config{Bind: "192.168.1.10:3001"}, ErrNonLoopbackBind},
		{"remote without token", Config{Bind: "0.0.0.0:3001", AllowRemote: true}, ErrRemoteWithoutToken},
		{"remote with token", Config{Bind: "0.0.0.0:3001", AllowRemote: true, AuthToken: "s3cret"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.applyDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cfg := Config{LogFormat: "xml"}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for log_format xml")
	}

	cfg = Config{Agent: AgentConfig{EnvPolicy: "inherit_some"}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown env policy")
	}
}

func TestValidateRejectsBadBind(t *testing.T) {
	cfg := Config{Bind: "no-port"}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for bind without port")
	}
}
