// Package config loads the marvin configuration file: provider
// credentials, default provider and model selection, and the workspace
// directory the file, shell and git tools resolve paths against.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration document. Fields map 1:1 onto
// marvin.yaml keys; FieldNameTag "yaml" on JSONSchema
// reflects the same names into the generated schema.
type Config struct {
	// ProfilesRoot is the directory holding one subdirectory per
	// profile name. Defaults to ~/.marvin/profiles. The profile package
	// does not read this field; it always uses ~/.marvin/profiles.
	ProfilesRoot string `yaml:"profiles_root"`

	// Workspace is the sandbox root the files/shell/git tools resolve
	// paths against. Defaults to the current working directory.
	Workspace string `yaml:"workspace"`

	// Provider selects the default LLM backend: copilot, gemini, groq,
	// ollama, or openai.
	Provider string `yaml:"provider"`

	// Model is the default model id passed to the selected provider.
	Model string `yaml:"model"`

	// CodingMode seeds the session's coding sub-flag at startup.
	CodingMode bool `yaml:"coding_mode"`

	// Providers carries per-provider connection settings keyed by name
	// ("openai", "copilot", "ollama", "llama-server", "gemini", "groq").
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one provider entry.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		ProfilesRoot: defaultProfilesRoot(),
		Workspace:    ".",
		Provider:     "openai",
	}
}

// Load reads path (resolving $include directives and expanding
// environment variables, per LoadRaw) and decodes it into a Config. A
// missing path yields Default() rather than an error, so a first run
// with no config file still starts.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.ProfilesRoot == "" {
		cfg.ProfilesRoot = defaultProfilesRoot()
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	return cfg, nil
}

func defaultProfilesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marvin/profiles"
	}
	return filepath.Join(home, ".marvin", "profiles")
}
