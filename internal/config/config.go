// Package config holds the CLI configuration: which AAP and USI
// environments to talk to and where the session token is kept.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"usirest/client"
)

// Config models .usirest.yml.
type Config struct {
	// AAPURL is the AAP service root.
	AAPURL string `yaml:"aap_url"`
	// RootURL is the USI service root (without the /api suffix).
	RootURL string `yaml:"root_url"`
	// User is the default AAP username for login.
	User string `yaml:"user,omitempty"`
	// TokenFile is where login stores the token and other commands read
	// it back. Tokens are short-lived; nothing else is persisted.
	TokenFile string `yaml:"token_file,omitempty"`
}

// FileName is the config file looked up in the working directory and home.
const FileName = ".usirest.yml"

// Default returns the EBI test environment configuration.
func Default() *Config {
	return &Config{
		AAPURL:    client.DefaultAAPURL,
		RootURL:   client.DefaultRootURL,
		TokenFile: filepath.Join(os.TempDir(), "usirest-token"),
	}
}

// Load reads config from path, falling back to defaults for unset fields.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the endpoint URLs.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"aap_url": c.AAPURL, "root_url": c.RootURL} {
		if raw == "" {
			return fmt.Errorf("config.%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.%s is not a valid URL: %s", name, raw)
		}
	}
	return nil
}

// Path returns the config file path: an explicit path wins, then the
// working directory, then the home directory.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, FileName)
}
