// Package config loads runner configuration from agent.yaml files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the workspace configuration. Zero values fall back to the
// defaults from Default().
type Config struct {
	// ServerURL is the automation server base URL.
	ServerURL string `yaml:"serverUrl"`

	// Device is the device serial. Empty means auto-detect via adb.
	Device string `yaml:"device"`

	App    AppConfig    `yaml:"app"`
	Appium AppiumConfig `yaml:"appium"`
	Policy PolicyConfig `yaml:"policy"`
	Output OutputConfig `yaml:"output"`

	// Env is merged into every scenario's variable set.
	Env map[string]string `yaml:"env"`
}

// AppConfig identifies the app under test.
type AppConfig struct {
	Package  string `yaml:"package"`
	Activity string `yaml:"activity"`
}

// AppiumConfig tunes the session against the automation server.
type AppiumConfig struct {
	// MinVersion is a semver constraint checked against the server
	// version before opening a session.
	MinVersion string `yaml:"minVersion"`

	// WaitForIdleTimeoutMs is pushed as a server setting at session open.
	WaitForIdleTimeoutMs int `yaml:"waitForIdleTimeoutMs"`

	// OpenRetryTimeoutMs bounds the exponential backoff around session open.
	OpenRetryTimeoutMs int `yaml:"openRetryTimeoutMs"`
}

// PolicyConfig tunes the built-in decision policies.
type PolicyConfig struct {
	// WaitLimit is the maximum consecutive no-match waits before a
	// policy fails.
	WaitLimit int `yaml:"waitLimit"`

	// RetryDelayMs is the wait duration between match retries.
	RetryDelayMs int `yaml:"retryDelayMs"`

	// MaxActions is the safety ceiling on actions per scenario.
	MaxActions int `yaml:"maxActions"`
}

// OutputConfig controls where run results land.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		ServerURL: "http://localhost:4723",
		Appium: AppiumConfig{
			MinVersion:           ">= 1.22.0",
			WaitForIdleTimeoutMs: 5000,
			OpenRetryTimeoutMs:   30000,
		},
		Policy: PolicyConfig{
			WaitLimit:    5,
			RetryDelayMs: 2000,
			MaxActions:   25,
		},
		Output: OutputConfig{
			Dir: "results",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for
// fields the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for agent.yaml or agent.yml in dir. A missing file
// is not an error; the defaults are returned.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"agent.yaml", "agent.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}
