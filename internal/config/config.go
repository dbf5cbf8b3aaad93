package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override, e.g. THREADBOARD_API_URL.
const EnvPrefix = "THREADBOARD_"

// Config represents the application configuration
type Config struct {
	API struct {
		URL       string        `koanf:"url"`
		Timeout   time.Duration `koanf:"timeout"`
		Retries   int           `koanf:"retries"`    // reads only
		RateLimit float64       `koanf:"rate_limit"` // requests per second, 0 disables
		Burst     int           `koanf:"burst"`
	} `koanf:"api"`

	Session struct {
		// Path of the credentials file; empty means ~/.threadboard/credentials.json.
		Path string `koanf:"path"`
	} `koanf:"session"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
		File   string `koanf:"file"`
	} `koanf:"log"`

	UI struct {
		Color bool `koanf:"color"`
	} `koanf:"ui"`

	DevServer struct {
		Port   int    `koanf:"port"`
		Secret string `koanf:"secret"`
	} `koanf:"devserver"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.url":          "http://localhost:4000/api",
		"api.timeout":      "0s",
		"api.retries":      0,
		"api.rate_limit":   0,
		"api.burst":        5,
		"session.path":     "",
		"log.level":        "warn",
		"log.format":       "console",
		"log.file":         "",
		"ui.color":         true,
		"devserver.port":   4000,
		"devserver.secret": "threadboard-dev-secret",
	}
}

// LoadConfig loads the configuration from a file. An empty path searches the
// default locations and silently skips missing files; an explicit path must
// exist.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./threadboard.toml", "$HOME/.threadboard/config.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix THREADBOARD_. Only the first
	// underscore separates section from key: API_RATE_LIMIT -> api.rate_limit.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# threadboard configuration

[api]
url = "http://localhost:4000/api"
# All three are off by default: no client timeout, no retries, no pacing.
# Retries only ever apply to GET requests.
timeout = "0s"
retries = 0
# Requests per second.
rate_limit = 0
burst = 5

[session]
# path = "/home/me/.threadboard/credentials.json"

[log]
level = "warn"
format = "console"

[ui]
color = true

[devserver]
port = 4000
secret = "change-me"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.API.URL == "" {
		return fmt.Errorf("api url is required")
	}
	u, err := url.Parse(config.API.URL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api url must include a host")
	}

	if config.API.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	if config.API.Retries < 0 || config.API.Retries > 10 {
		return fmt.Errorf("api retries must be between 0 and 10, got %d", config.API.Retries)
	}

	if config.API.RateLimit < 0 {
		return fmt.Errorf("api rate_limit must not be negative")
	}
	if config.API.RateLimit > 0 && config.API.Burst < 1 {
		return fmt.Errorf("api burst must be at least 1 when rate_limit is set")
	}

	if config.Log.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(config.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level %q", config.Log.Level)
		}
	}
	switch strings.ToLower(config.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be console or json)", config.Log.Format)
	}

	if config.DevServer.Port < 0 || config.DevServer.Port > 65535 {
		return fmt.Errorf("devserver port out of range: %d", config.DevServer.Port)
	}

	return nil
}
