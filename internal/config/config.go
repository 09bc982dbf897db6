// Package config handles Parley configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "config.yaml"))
	}

	paths = append(paths, "/etc/parley/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Parley configuration.
type Config struct {
	Listen       ListenConfig     `yaml:"listen"`
	Provider     ProviderConfig   `yaml:"provider"`
	Agent        AgentConfig      `yaml:"agent"`
	PythonExec   PythonExecConfig `yaml:"python_exec"`
	WebFetch     WebFetchConfig   `yaml:"web_fetch"`
	DatabasePath string           `yaml:"database_path"`
	LogLevel     string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig defines the completion backend.
// Both OpenAI and Ollama speak the OpenAI chat-completions wire format;
// Kind selects sensible defaults for BaseURL and Model.
type ProviderConfig struct {
	Kind    string `yaml:"kind"`     // "openai" or "ollama"
	BaseURL string `yaml:"base_url"` // override the provider endpoint
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// SystemPrompt seeds every new conversation. Empty uses the built-in default.
	SystemPrompt string `yaml:"system_prompt"`
	// MaxToolRounds bounds tool-call cycles within one user turn (default 8).
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// PythonExecConfig defines the Python sandbox tool settings.
type PythonExecConfig struct {
	// Interpreter is the Python binary to invoke (default "python3").
	Interpreter string `yaml:"interpreter"`
	// TimeoutSec bounds a single execution (default 10).
	TimeoutSec int `yaml:"timeout_sec"`
	// MaxOutputBytes truncates captured stdout (default 100KB).
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// WebFetchConfig defines the web_fetch tool settings.
type WebFetchConfig struct {
	// Enabled exposes the web_fetch tool to the model (default true).
	Enabled *bool `yaml:"enabled"`
	// MaxChars limits extracted text length per fetch.
	MaxChars int `yaml:"max_chars"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Provider: ProviderConfig{
			Kind:  "openai",
			Model: "gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxToolRounds: 8,
		},
		PythonExec: PythonExecConfig{
			Interpreter: "python3",
			TimeoutSec:  10,
		},
		DatabasePath: "./conversations.db",
	}
}

// FetchEnabled reports whether the web_fetch tool should be registered.
func (c *Config) FetchEnabled() bool {
	if c.WebFetch.Enabled == nil {
		return true
	}
	return *c.WebFetch.Enabled
}
