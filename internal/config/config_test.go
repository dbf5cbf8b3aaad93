package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("THREADBOARD_API_URL", "https://board.example.com/api")
	t.Setenv("THREADBOARD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "https://board.example.com/api", cfg.API.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4000, cfg.DevServer.Port)
	assert.Zero(t, cfg.API.Timeout)
	assert.Zero(t, cfg.API.Retries)
	assert.Zero(t, cfg.API.RateLimit)
	assert.True(t, cfg.UI.Color)
	require.NoError(t, Validate(cfg))
}

func TestLoadConfig_EnvKeysWithUnderscores(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("THREADBOARD_API_URL", "http://example.com/api")
	t.Setenv("THREADBOARD_API_RATE_LIMIT", "3")
	t.Setenv("THREADBOARD_DEVSERVER_SECRET", "from-env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/api", cfg.API.URL)
	assert.Equal(t, 3.0, cfg.API.RateLimit)
	assert.Equal(t, "from-env", cfg.DevServer.Secret)
	require.NoError(t, Validate(cfg))
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "threadboard.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
url = "http://10.0.0.5:9000/api"
timeout = "3s"
retries = 1

[session]
path = "/tmp/creds.json"

[devserver]
port = 9100
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000/api", cfg.API.URL)
	assert.Equal(t, "/tmp/creds.json", cfg.Session.Path)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 1, cfg.API.Retries)
	assert.Equal(t, 9100, cfg.DevServer.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestInitConfig_WritesLoadableSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadboard.toml")
	require.NoError(t, InitConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "change-me", cfg.DevServer.Secret)

	assert.Error(t, InitConfig(path), "refuses to overwrite")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.API.URL = "http://localhost:4000/api"
		cfg.Log.Level = "info"
		cfg.DevServer.Port = 4000
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty url", func(c *Config) { c.API.URL = "" }, true},
		{"relative url", func(c *Config) { c.API.URL = "/api" }, true},
		{"ftp url", func(c *Config) { c.API.URL = "ftp://host/api" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad port", func(c *Config) { c.DevServer.Port = 70000 }, true},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, true},
		{"too many retries", func(c *Config) { c.API.Retries = 11 }, true},
		{"negative rate", func(c *Config) { c.API.RateLimit = -1 }, true},
		{"rate without burst", func(c *Config) { c.API.RateLimit = 2; c.API.Burst = 0 }, true},
		{"paced", func(c *Config) { c.API.RateLimit = 2; c.API.Burst = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
