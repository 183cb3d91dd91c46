// ABOUTME: Configuration loading and parsing for the chai gateway
// ABOUTME: JSON config with environment variable expansion and startup validation

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the complete gateway configuration.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Channels ChannelsConfig `json:"channels"`
	Agents   AgentsConfig   `json:"agents"`
	Skills   SkillsConfig   `json:"skills"`
	Store    StoreConfig    `json:"store"`
	Logging  LoggingConfig  `json:"logging"`

	// path the config was loaded from, used to resolve relative dirs.
	path string
}

// GatewayConfig holds bind, port, auth, and tailnet settings.
type GatewayConfig struct {
	Port      int             `json:"port"`
	Bind      string          `json:"bind"`
	Auth      AuthConfig      `json:"auth"`
	Tailscale TailscaleConfig `json:"tailscale"`
}

// AuthConfig selects the connect auth mode.
type AuthConfig struct {
	// Mode is "none" (loopback only) or "token".
	Mode  string `json:"mode"`
	Token string `json:"token"`
}

// TailscaleConfig enables serving on a tailnet via tsnet.
type TailscaleConfig struct {
	Enabled   bool   `json:"enabled"`
	Hostname  string `json:"hostname"`
	AuthKey   string `json:"authKey"`
	StateDir  string `json:"stateDir"`
	Ephemeral bool   `json:"ephemeral"`
}

// ChannelsConfig holds per-channel connector settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Matrix   MatrixConfig   `json:"matrix"`
}

// TelegramConfig configures the Telegram bot connector.
type TelegramConfig struct {
	BotToken string `json:"botToken"`
	// WebhookURL switches from long polling to webhook delivery.
	WebhookURL    string `json:"webhookUrl"`
	WebhookSecret string `json:"webhookSecret"`
}

// MatrixConfig configures the Matrix connector.
type MatrixConfig struct {
	Enabled      bool     `json:"enabled"`
	Homeserver   string   `json:"homeserver"`
	UserID       string   `json:"userId"`
	AccessToken  string   `json:"accessToken"`
	AllowedRooms []string `json:"allowedRooms"`
}

// AgentsConfig holds backend selection and workspace settings.
type AgentsConfig struct {
	// DefaultBackend is "ollama" or "lmstudio". Empty means ollama.
	DefaultBackend string `json:"defaultBackend"`
	DefaultModel   string `json:"defaultModel"`
	// EnabledBackends opts backends into startup model discovery. Empty
	// means only the default backend.
	EnabledBackends []string       `json:"enabledBackends"`
	Workspace       string         `json:"workspace"`
	Backends        BackendsConfig `json:"backends"`
}

// BackendsConfig carries per-backend overrides.
type BackendsConfig struct {
	Ollama   OllamaBackendConfig   `json:"ollama"`
	LMStudio LMStudioBackendConfig `json:"lmStudio"`
}

type OllamaBackendConfig struct {
	BaseURL string `json:"baseUrl"`
}

type LMStudioBackendConfig struct {
	BaseURL string `json:"baseUrl"`
	// EndpointType is "openai" or "native". Empty means openai.
	EndpointType string `json:"endpointType"`
}

// SkillsConfig holds skill load paths and options.
type SkillsConfig struct {
	// Directory overrides the default skill root (<configdir>/skills).
	Directory string   `json:"directory"`
	ExtraDirs []string `json:"extraDirs"`
	// Enabled is the allowlist of skill names. Default empty: no skills.
	Enabled []string `json:"enabled"`
	// ContextMode is "full" or "readOnDemand".
	ContextMode  string `json:"contextMode"`
	AllowScripts bool   `json:"allowScripts"`
}

// StoreConfig locates the sqlite database for devices, secrets, and audit.
type StoreConfig struct {
	Path string `json:"path"`
}

// LoggingConfig maps onto slog handler options.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultPath returns the config file location: CHAI_CONFIG_PATH when set,
// else ~/.chai/config.json.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv("CHAI_CONFIG_PATH")); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".chai", "config.json")
}

// Load reads and validates the config at path. A missing file yields the
// defaults. ${VAR_NAME} references are expanded from the environment before
// parsing.
func Load(path string) (*Config, error) {
	cfg := &Config{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		name := re.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func (c *Config) applyDefaults() {
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 15151
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1"
	}
	if c.Gateway.Auth.Mode == "" {
		c.Gateway.Auth.Mode = "none"
	}
	if c.Agents.DefaultBackend == "" {
		c.Agents.DefaultBackend = "ollama"
	}
	if c.Skills.ContextMode == "" {
		c.Skills.ContextMode = "full"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks field values and the bind/auth combination. Returns the
// first problem found.
func (c *Config) Validate() error {
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	switch c.Gateway.Auth.Mode {
	case "none", "token":
	default:
		return fmt.Errorf("gateway.auth.mode must be \"none\" or \"token\", got %q", c.Gateway.Auth.Mode)
	}
	if !IsLoopback(c.Gateway.Bind) && !c.Gateway.Tailscale.Enabled {
		// A token value alone is not enough: connect only enforces it when
		// auth.mode is "token".
		if c.Gateway.Auth.Mode != "token" || c.GatewayToken() == "" {
			return fmt.Errorf("refusing non-loopback bind %q without token auth", c.Gateway.Bind)
		}
	}
	if c.Gateway.Tailscale.Enabled && c.Gateway.Tailscale.Hostname == "" {
		return fmt.Errorf("gateway.tailscale.hostname is required when tailscale is enabled")
	}
	switch NormalizeBackend(c.Agents.DefaultBackend) {
	case "ollama", "lmstudio":
	default:
		return fmt.Errorf("agents.defaultBackend must be \"ollama\" or \"lmstudio\", got %q", c.Agents.DefaultBackend)
	}
	switch c.Skills.ContextMode {
	case "full", "readOnDemand":
	default:
		return fmt.Errorf("skills.contextMode must be \"full\" or \"readOnDemand\", got %q", c.Skills.ContextMode)
	}
	switch c.Agents.Backends.LMStudio.EndpointType {
	case "", "openai", "native":
	default:
		return fmt.Errorf("agents.backends.lmStudio.endpointType must be \"openai\" or \"native\", got %q", c.Agents.Backends.LMStudio.EndpointType)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// IsLoopback reports whether the bind address is a loopback interface.
func IsLoopback(bind string) bool {
	switch strings.TrimSpace(bind) {
	case "127.0.0.1", "::1", "localhost":
		return true
	}
	return false
}

// GatewayToken resolves the shared connect secret. CHAI_GATEWAY_TOKEN
// overrides the config value.
func (c *Config) GatewayToken() string {
	if t := strings.TrimSpace(os.Getenv("CHAI_GATEWAY_TOKEN")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Gateway.Auth.Token)
}

// TelegramToken resolves the bot token. TELEGRAM_BOT_TOKEN overrides the
// config value.
func (c *Config) TelegramToken() string {
	if t := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Channels.Telegram.BotToken)
}

// TailscaleAuthKey resolves the tsnet auth key with TS_AUTHKEY fallback.
func (c *Config) TailscaleAuthKey() string {
	if k := strings.TrimSpace(c.Gateway.Tailscale.AuthKey); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv("TS_AUTHKEY"))
}

// Dir returns the directory holding the config file.
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// SkillsDir returns the skill root: skills.directory when set (relative
// paths resolve against the config dir), else <configdir>/skills.
func (c *Config) SkillsDir() string {
	dir := strings.TrimSpace(c.Skills.Directory)
	if dir == "" {
		return filepath.Join(c.Dir(), "skills")
	}
	if !filepath.IsAbs(dir) {
		return filepath.Join(c.Dir(), dir)
	}
	return dir
}

// WorkspaceDir returns agents.workspace or <configdir>/workspace.
func (c *Config) WorkspaceDir() string {
	if w := strings.TrimSpace(c.Agents.Workspace); w != "" {
		return w
	}
	return filepath.Join(c.Dir(), "workspace")
}

// StorePath returns store.path or <configdir>/chai.db.
func (c *Config) StorePath() string {
	if p := strings.TrimSpace(c.Store.Path); p != "" {
		return p
	}
	return filepath.Join(c.Dir(), "chai.db")
}

// DefaultBackend returns the normalized default backend name.
func (c *Config) DefaultBackend() string {
	return NormalizeBackend(c.Agents.DefaultBackend)
}

// DiscoveryEnabled reports whether startup model discovery should poll the
// given backend. Opt-in: an empty enabledBackends list polls only the
// default backend.
func (c *Config) DiscoveryEnabled(backend string) bool {
	backend = NormalizeBackend(backend)
	if len(c.Agents.EnabledBackends) == 0 {
		return backend == c.DefaultBackend()
	}
	for _, b := range c.Agents.EnabledBackends {
		if NormalizeBackend(b) == backend {
			return true
		}
	}
	return false
}

// NormalizeBackend canonicalizes a backend name; empty means ollama.
func NormalizeBackend(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "lm_studio" || n == "lmstudio" {
		return "lmstudio"
	}
	if n == "" {
		return "ollama"
	}
	return n
}
