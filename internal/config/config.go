package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"gamemaster/internal"
)

type HTTPConfig struct {
	Address string `toml:"address"`
}

type OpenAIConfig struct {
	APIKey       string `toml:"api_key"`
	Organization string `toml:"organization"`
	BaseURL      string `toml:"base_url"`
	Timeout      int    `toml:"timeout"` // seconds, per vendor call
}

type AssistantConfig struct {
	// ID of an existing assistant. When empty the assistant is looked up
	// by Name and created from the built-in persona if missing.
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Model        string `toml:"model"`
	Instructions string `toml:"instructions"`
}

type RunConfig struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
	MaxPolls       int `toml:"max_polls"`
}

type UsersConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout int    `toml:"timeout"`
}

type IRCConfig struct {
	Server   string   `toml:"server"`
	Nick     string   `toml:"nick"`
	User     string   `toml:"user"`
	RealName string   `toml:"real_name"`
	Password string   `toml:"password"`
	Channels []string `toml:"channels"`
	Trigger  string   `toml:"trigger"`
}

type Config struct {
	LogDir       string `toml:"log_dir"`
	APITokenHash string `toml:"api_token_hash"`

	HTTP      HTTPConfig      `toml:"http"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Assistant AssistantConfig `toml:"assistant"`
	Run       RunConfig       `toml:"run"`
	Users     UsersConfig     `toml:"users"`
	IRC       IRCConfig       `toml:"irc"`
}

// IRCEnabled reports whether the IRC front end should be started.
func (c *Config) IRCEnabled() bool {
	return c.IRC.Server != ""
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Run.PollIntervalMS) * time.Millisecond
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.OpenAI.Timeout) * time.Second
}

func (c *Config) UsersTimeout() time.Duration {
	return time.Duration(c.Users.Timeout) * time.Second
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.LogDir == "" {
		cfg.LogDir = internal.DEFAULT_LOG_DIR
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = internal.DEFAULT_HTTP_ADDR
	}
	if cfg.OpenAI.Timeout <= 0 {
		cfg.OpenAI.Timeout = internal.DEFAULT_API_TIMEOUT
	}
	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = internal.DEFAULT_ASSISTANT_NAME
	}
	if cfg.Assistant.Model == "" {
		cfg.Assistant.Model = internal.DEFAULT_MODEL
	}
	if cfg.Run.PollIntervalMS <= 0 {
		cfg.Run.PollIntervalMS = internal.DEFAULT_POLL_INTERVAL_MS
	}
	if cfg.Run.MaxPolls <= 0 {
		cfg.Run.MaxPolls = internal.DEFAULT_MAX_POLLS
	}
	if cfg.Users.BaseURL == "" {
		cfg.Users.BaseURL = internal.DEFAULT_USERS_URL
	}
	if cfg.Users.Timeout <= 0 {
		cfg.Users.Timeout = internal.DEFAULT_API_TIMEOUT
	}
	if cfg.IRC.Trigger == "" {
		cfg.IRC.Trigger = "!gm"
	}
}

// ApplyEnv overrides config values with the environment. Secrets are
// expected to come from here rather than from the config file.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_ORGANIZATION"); v != "" {
		cfg.OpenAI.Organization = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("ASSISTANT_ID"); v != "" {
		cfg.Assistant.ID = v
	}
	if v := os.Getenv("USERS_BASE_URL"); v != "" {
		cfg.Users.BaseURL = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("API_TOKEN_HASH"); v != "" {
		cfg.APITokenHash = v
	}
	if v := os.Getenv("RUN_MAX_POLLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RUN_MAX_POLLS %q: %w", v, err)
		}
		cfg.Run.MaxPolls = n
	}
	return nil
}

// ValidateConfig checks if all required configuration fields are properly set
func ValidateConfig(cfg *Config) error {
	var missingFields []string

	if cfg.OpenAI.APIKey == "" {
		missingFields = append(missingFields, "openai.api_key")
	}

	if cfg.IRCEnabled() {
		if cfg.IRC.Nick == "" {
			missingFields = append(missingFields, "irc.nick")
		}
		if cfg.IRC.User == "" {
			missingFields = append(missingFields, "irc.user")
		}
		if cfg.IRC.RealName == "" {
			missingFields = append(missingFields, "irc.real_name")
		}
		if !strings.Contains(cfg.IRC.Server, ":") {
			return errors.New("irc server address does not contain a port (format should be host:port)")
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	// This server has no /user route, so user tools would only ever get 404s
	if servesURL(cfg.HTTP.Address, cfg.Users.BaseURL) {
		return fmt.Errorf("users.base_url %s points at this server's own address %s", cfg.Users.BaseURL, cfg.HTTP.Address)
	}

	return nil
}

// LoadConfig reads path (if it exists), applies environment overrides and
// defaults, then validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// servesURL reports whether a listener on addr would receive requests sent to rawURL.
func servesURL(addr, rawURL string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	urlPort := u.Port()
	if urlPort == "" {
		switch u.Scheme {
		case "http":
			urlPort = "80"
		case "https":
			urlPort = "443"
		}
	}
	if urlPort != port {
		return false
	}

	urlHost := u.Hostname()
	if host == "" || host == "0.0.0.0" || host == "::" {
		return isLoopback(urlHost) || urlHost == host
	}
	return strings.EqualFold(urlHost, host) || (isLoopback(host) && isLoopback(urlHost))
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
