// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers JSON loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
  "gateway": {"port": 16161, "bind": "127.0.0.1", "auth": {"mode": "token", "token": "secret"}},
  "channels": {"telegram": {"botToken": "bot:123"}},
  "agents": {"defaultBackend": "lmstudio", "defaultModel": "gpt-oss-20b"},
  "skills": {"enabled": ["notesmd-cli"], "contextMode": "readOnDemand", "allowScripts": true},
  "logging": {"level": "debug", "format": "json"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 16161 {
		t.Errorf("port = %d, want 16161", cfg.Gateway.Port)
	}
	if cfg.Gateway.Auth.Mode != "token" {
		t.Errorf("auth mode = %q", cfg.Gateway.Auth.Mode)
	}
	if cfg.DefaultBackend() != "lmstudio" {
		t.Errorf("default backend = %q", cfg.DefaultBackend())
	}
	if got := cfg.Skills.Enabled; len(got) != 1 || got[0] != "notesmd-cli" {
		t.Errorf("skills.enabled = %v", got)
	}
	if !cfg.Skills.AllowScripts {
		t.Error("allowScripts should be true")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 15151 {
		t.Errorf("port = %d, want 15151", cfg.Gateway.Port)
	}
	if cfg.Gateway.Bind != "127.0.0.1" {
		t.Errorf("bind = %q", cfg.Gateway.Bind)
	}
	if cfg.Gateway.Auth.Mode != "none" {
		t.Errorf("auth mode = %q", cfg.Gateway.Auth.Mode)
	}
	if cfg.DefaultBackend() != "ollama" {
		t.Errorf("default backend = %q", cfg.DefaultBackend())
	}
	if cfg.Skills.ContextMode != "full" {
		t.Errorf("contextMode = %q", cfg.Skills.ContextMode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CHAI_TOKEN", "from-env")
	path := writeConfig(t, `{"gateway": {"auth": {"mode": "token", "token": "${TEST_CHAI_TOKEN}"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Auth.Token != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Gateway.Auth.Token)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateRejectsNonLoopbackWithoutToken(t *testing.T) {
	path := writeConfig(t, `{"gateway": {"bind": "0.0.0.0"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "non-loopback") {
		t.Fatalf("expected non-loopback error, got %v", err)
	}

	// Same bind with token auth passes.
	path = writeConfig(t, `{"gateway": {"bind": "0.0.0.0", "auth": {"mode": "token", "token": "s"}}}`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestValidateRejectsNonLoopbackWithUnenforcedToken(t *testing.T) {
	t.Setenv("CHAI_GATEWAY_TOKEN", "")

	// A token value under auth.mode "none" is never checked at connect, so
	// the bind is still unauthenticated.
	path := writeConfig(t, `{"gateway": {"bind": "0.0.0.0", "auth": {"mode": "none", "token": "s"}}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "non-loopback") {
		t.Fatalf("expected non-loopback error, got %v", err)
	}

	// An env token does not help either while mode stays "none".
	t.Setenv("CHAI_GATEWAY_TOKEN", "from-env")
	path = writeConfig(t, `{"gateway": {"bind": "0.0.0.0"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "non-loopback") {
		t.Fatalf("expected non-loopback error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", `{"gateway": {"port": 70000}}`, "out of range"},
		{"bad auth mode", `{"gateway": {"auth": {"mode": "basic"}}}`, "auth.mode"},
		{"bad backend", `{"agents": {"defaultBackend": "claude"}}`, "defaultBackend"},
		{"bad context mode", `{"skills": {"contextMode": "lazy"}}`, "contextMode"},
		{"bad endpoint type", `{"agents": {"backends": {"lmStudio": {"endpointType": "grpc"}}}}`, "endpointType"},
		{"bad log format", `{"logging": {"format": "xml"}}`, "logging.format"},
		{"tailscale without hostname", `{"gateway": {"tailscale": {"enabled": true}}}`, "hostname"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGatewayTokenEnvOverride(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Auth.Token = "from-config"
	t.Setenv("CHAI_GATEWAY_TOKEN", "")
	if got := cfg.GatewayToken(); got != "from-config" {
		t.Errorf("token = %q", got)
	}

	t.Setenv("CHAI_GATEWAY_TOKEN", "  from-env  ")
	if got := cfg.GatewayToken(); got != "from-env" {
		t.Errorf("token = %q, want env override", got)
	}
}

func TestTelegramTokenEnvOverride(t *testing.T) {
	cfg := &Config{}
	cfg.Channels.Telegram.BotToken = "config-token"
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	if got := cfg.TelegramToken(); got != "env-token" {
		t.Errorf("token = %q", got)
	}
}

func TestIsLoopback(t *testing.T) {
	for _, bind := range []string{"127.0.0.1", "::1", "localhost", " 127.0.0.1 "} {
		if !IsLoopback(bind) {
			t.Errorf("IsLoopback(%q) = false", bind)
		}
	}
	for _, bind := range []string{"0.0.0.0", "192.168.1.10", ""} {
		if IsLoopback(bind) {
			t.Errorf("IsLoopback(%q) = true", bind)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if got := cfg.SkillsDir(); got != filepath.Join(dir, "skills") {
		t.Errorf("SkillsDir = %q", got)
	}
	if got := cfg.WorkspaceDir(); got != filepath.Join(dir, "workspace") {
		t.Errorf("WorkspaceDir = %q", got)
	}
	if got := cfg.StorePath(); got != filepath.Join(dir, "chai.db") {
		t.Errorf("StorePath = %q", got)
	}

	cfg.Skills.Directory = "my-skills"
	if got := cfg.SkillsDir(); got != filepath.Join(dir, "my-skills") {
		t.Errorf("relative SkillsDir = %q", got)
	}
	cfg.Skills.Directory = "/abs/skills"
	if got := cfg.SkillsDir(); got != "/abs/skills" {
		t.Errorf("absolute SkillsDir = %q", got)
	}
}

func TestDiscoveryEnabled(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	// Default: only the default backend is discovered.
	if !cfg.DiscoveryEnabled("ollama") {
		t.Error("ollama should be discovered by default")
	}
	if cfg.DiscoveryEnabled("lmstudio") {
		t.Error("lmstudio should not be discovered by default")
	}

	cfg.Agents.EnabledBackends = []string{"LMStudio"}
	if cfg.DiscoveryEnabled("ollama") {
		t.Error("explicit list excludes ollama")
	}
	if !cfg.DiscoveryEnabled("lmstudio") {
		t.Error("explicit list includes lmstudio, case-insensitive")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("CHAI_CONFIG_PATH", "/tmp/override.json")
	if got := DefaultPath(); got != "/tmp/override.json" {
		t.Errorf("DefaultPath = %q", got)
	}

	t.Setenv("CHAI_CONFIG_PATH", "")
	got := DefaultPath()
	if !strings.HasSuffix(got, filepath.Join(".chai", "config.json")) {
		t.Errorf("DefaultPath = %q", got)
	}
}
