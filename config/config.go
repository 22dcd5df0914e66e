// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (CONFIG_FILE or ./config.yaml, with ${VAR} and ${VAR:-default} expansion),
// a .env file, and finally environment variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Provider types selectable through LLM_PROVIDER
const (
	ProviderPlaceholder = "placeholder"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderOllama      = "ollama"
	ProviderGemini      = "gemini"
)

// Log formats accepted by LOG_FORMAT
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

const (
	// DefaultConfigFile is looked up in the working directory when CONFIG_FILE is unset
	DefaultConfigFile = "config.yaml"
	// DefaultBodySizeLimit caps request bodies
	DefaultBodySizeLimit = "10M"
	// DefaultServiceName is reported by the health endpoint
	DefaultServiceName = "custom-llm-server"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// Debug enables debug logging and echo debug mode
	Debug bool `yaml:"debug"`
	// APIKey is the bearer secret. Empty disables authentication.
	APIKey string `yaml:"api_key"`
	// BodySizeLimit uses echo's size notation (e.g. "10M", "512K")
	BodySizeLimit string `yaml:"body_size_limit"`
	// StreamDelay is the pause between streamed words of the placeholder reply
	StreamDelay time.Duration `yaml:"stream_delay"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CORSAllowOrigins defaults to every origin
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// Address returns host:port for the listener.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// ModelConfig describes the single model advertised by the server
type ModelConfig struct {
	Name        string `yaml:"name"`
	OwnedBy     string `yaml:"owned_by"`
	ServiceName string `yaml:"service_name"`
}

// ProvidersConfig selects the active text provider and holds per-provider settings
type ProvidersConfig struct {
	Active    string         `yaml:"active"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Ollama    ProviderConfig `yaml:"ollama"`
	Gemini    ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds the settings of one upstream provider
type ProviderConfig struct {
	Type    string `yaml:"-"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Model overrides the model name sent upstream; empty forwards the request's model
	Model string `yaml:"model"`
}

// Selected returns the configuration of the active provider with Type filled in.
func (p ProvidersConfig) Selected() ProviderConfig {
	var pc ProviderConfig
	switch p.Active {
	case ProviderOpenAI:
		pc = p.OpenAI
	case ProviderAnthropic:
		pc = p.Anthropic
	case ProviderOllama:
		pc = p.Ollama
	case ProviderGemini:
		pc = p.Gemini
	}
	pc.Type = p.Active
	return pc
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	// Format is auto (text on a terminal, JSON otherwise), json or text
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// AuditConfig controls per-request audit events
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PubSubProject string `yaml:"pubsub_project"`
	PubSubTopic   string `yaml:"pubsub_topic"`
}

// HTTPConfig holds upstream HTTP client timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             "8000",
			BodySizeLimit:    DefaultBodySizeLimit,
			StreamDelay:      50 * time.Millisecond,
			ShutdownTimeout:  30 * time.Second,
			CORSAllowOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Name:        "custom-llm",
			OwnedBy:     "custom-llm",
			ServiceName: DefaultServiceName,
		},
		Providers: ProvidersConfig{
			Active: ProviderPlaceholder,
			OpenAI: ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Anthropic: ProviderConfig{
				BaseURL: "https://api.anthropic.com/v1",
				Model:   "claude-3-opus-20240229",
			},
			Ollama: ProviderConfig{BaseURL: "http://localhost:11434", Model: "llama2"},
			Gemini: ProviderConfig{Model: "gemini-1.5-flash"},
		},
		Logging: LoggingConfig{Format: LogFormatAuto},
		Metrics: MetricsConfig{Enabled: true, Endpoint: "/metrics"},
		HTTP:    HTTPConfig{Timeout: 600, ResponseHeaderTimeout: 600},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := buildDefaultConfig()

	// Variables already present in the environment win over .env values
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := loadYAMLFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := expandString(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. Unset variables without a
// default are left as-is.
func expandString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides maps environment variables onto cfg. Only variables that are
// set take effect.
func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	boolean := func(key string, dst *bool) error {
		if !v.IsSet(key) {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		*dst = b
		return nil
	}
	// Only "true", in any case, turns a flag on; any other value turns it off.
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = strings.EqualFold(strings.TrimSpace(v.GetString(key)), "true")
		}
	}
	integer := func(key string, dst *int) error {
		if !v.IsSet(key) {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, unit time.Duration, dst *time.Duration) error {
		if !v.IsSet(key) {
			return nil
		}
		d, err := parseDuration(v.GetString(key), unit)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("HOST", &cfg.Server.Host)
	str("PORT", &cfg.Server.Port)
	str("API_KEY", &cfg.Server.APIKey)
	str("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)
	if v.IsSet("CORS_ALLOW_ORIGINS") {
		cfg.Server.CORSAllowOrigins = splitList(v.GetString("CORS_ALLOW_ORIGINS"))
	}
	str("MODEL_NAME", &cfg.Model.Name)
	str("MODEL_OWNED_BY", &cfg.Model.OwnedBy)
	str("LLM_PROVIDER", &cfg.Providers.Active)

	str("OPENAI_API_KEY", &cfg.Providers.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &cfg.Providers.OpenAI.BaseURL)
	str("OPENAI_MODEL", &cfg.Providers.OpenAI.Model)
	str("ANTHROPIC_API_KEY", &cfg.Providers.Anthropic.APIKey)
	str("ANTHROPIC_BASE_URL", &cfg.Providers.Anthropic.BaseURL)
	str("ANTHROPIC_MODEL", &cfg.Providers.Anthropic.Model)
	str("OLLAMA_URL", &cfg.Providers.Ollama.BaseURL)
	str("OLLAMA_MODEL", &cfg.Providers.Ollama.Model)
	str("GEMINI_API_KEY", &cfg.Providers.Gemini.APIKey)
	str("GEMINI_MODEL", &cfg.Providers.Gemini.Model)

	flag("DEBUG", &cfg.Server.Debug)

	str("LOG_FORMAT", &cfg.Logging.Format)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	str("AUDIT_PUBSUB_PROJECT", &cfg.Audit.PubSubProject)
	str("AUDIT_PUBSUB_TOPIC", &cfg.Audit.PubSubTopic)

	return errors.Join(
		boolean("METRICS_ENABLED", &cfg.Metrics.Enabled),
		boolean("AUDIT_ENABLED", &cfg.Audit.Enabled),
		integer("HTTP_TIMEOUT", &cfg.HTTP.Timeout),
		integer("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout),
		duration("STREAM_DELAY", time.Millisecond, &cfg.Server.StreamDelay),
		duration("SHUTDOWN_TIMEOUT", time.Second, &cfg.Server.ShutdownTimeout),
	)
}

// parseDuration accepts plain integers (in unit) or Go duration strings ("50ms", "1m").
func parseDuration(s string, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	var errs []error

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Server.Port))
	}
	if _, err := bytes.Parse(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, fmt.Errorf("invalid body size limit %q: %w", c.Server.BodySizeLimit, err))
	}
	if c.Server.StreamDelay < 0 {
		errs = append(errs, errors.New("stream delay must not be negative"))
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		errs = append(errs, errors.New("model name must not be empty"))
	}

	switch c.Providers.Active {
	case ProviderPlaceholder, ProviderOllama:
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if c.Providers.Selected().APIKey == "" {
			errs = append(errs, fmt.Errorf("provider %q requires an API key", c.Providers.Active))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Providers.Active))
	}

	switch c.Logging.Format {
	case LogFormatAuto, LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	if c.Audit.Enabled && (c.Audit.PubSubProject == "") != (c.Audit.PubSubTopic == "") {
		errs = append(errs, errors.New("audit pub/sub needs both project and topic"))
	}

	return errors.Join(errs...)
}
