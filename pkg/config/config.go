package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds process-wide configuration, populated from the environment
// with the FLEET_-less variable names the deployment tooling exports.
type Config struct {
	// DataDir is where the bbolt database lives.
	DataDir string `envconfig:"DATA_DIR" default:"/var/lib/fleet"`

	// CacheRoot holds one immutable snapshot directory per commit.
	CacheRoot string `envconfig:"CACHE_ROOT" default:"/var/cache/fleet"`

	// SSHKeyPath is the private key used for transfer and command sessions.
	SSHKeyPath string `envconfig:"SSH_KEY_PATH" default:""`

	// AnsibleDir is the working directory for playbook invocations.
	AnsibleDir string `envconfig:"ANSIBLE_DIR" default:"/opt/autobot/ansible"`

	// InventoryPath is the Ansible inventory handed to every playbook run.
	InventoryPath string `envconfig:"INVENTORY_PATH" default:"/opt/autobot/ansible/inventory.ini"`

	// EncryptionKey is the base64-encoded 32-byte AES key for the vault.
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`

	// MaxConcurrentSSH caps simultaneous outbound SSH sessions.
	MaxConcurrentSSH int `envconfig:"MAX_CONCURRENT_SSH" default:"16"`

	// ListenAddr is the REST API bind address.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8400"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogJSON switches between JSON and console log output.
	LogJSON bool `envconfig:"LOG_JSON" default:"true"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants that envconfig cannot express.
func (c *Config) Validate() error {
	if _, err := c.DecodeEncryptionKey(); err != nil {
		return err
	}

	if c.MaxConcurrentSSH <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SSH must be positive, got %d", c.MaxConcurrentSSH)
	}

	if c.SSHKeyPath != "" {
		if _, err := os.Stat(c.SSHKeyPath); err != nil {
			return fmt.Errorf("SSH key not readable at %s: %w", c.SSHKeyPath, err)
		}
	}

	return nil
}

// DecodeEncryptionKey decodes and length-checks the vault key.
func (c *Config) DecodeEncryptionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DatabasePath returns the bbolt file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fleet.db")
}

// EnsureDirs creates the data and cache directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.CacheRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
