package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/powersafefs/fsguard/internal/validation"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/fsguard/fsguard.conf"
	// DefaultSocketPath is the default Unix socket path for the plugin
	DefaultSocketPath = "/run/podman/plugins/fsguard.sock"
	// DefaultMountPath is the default mount point for the guarded device
	DefaultMountPath = "/mnt/fsguard"
	// DefaultBackend is the default device backend
	DefaultBackend = "syscall"
	// DefaultFSType is the default filesystem type for the syscall backend
	DefaultFSType = "vfat"
	// DefaultMode is the guard mode the daemon starts in
	DefaultMode = "normal"
)

// Config holds the daemon configuration
type Config struct {
	// Device is the block device node to guard (e.g. /dev/mmcblk0p1)
	Device string `toml:"device"`
	// Backend is the device backend to use: "syscall" or "udisks"
	Backend string `toml:"backend"`
	// FSType is the filesystem type passed to the syscall backend
	FSType string `toml:"fstype"`
	// MountPath is the mount point used by the syscall backend
	MountPath string `toml:"mount_path"`
	// SocketPath is the Unix socket path for the plugin
	SocketPath string `toml:"socket"`
	// Mode is the initial guard mode
	Mode string `toml:"mode"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored.
func (c *Config) Merge(device, backend, fsType, mountPath, socketPath, mode string) {
	if device != "" {
		c.Device = device
	}
	if backend != "" {
		c.Backend = backend
	}
	if fsType != "" {
		c.FSType = fsType
	}
	if mountPath != "" {
		c.MountPath = mountPath
	}
	if socketPath != "" {
		c.SocketPath = socketPath
	}
	if mode != "" {
		c.Mode = mode
	}
}

// ApplyDefaults applies default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.FSType == "" {
		c.FSType = DefaultFSType
	}
	if c.MountPath == "" {
		c.MountPath = DefaultMountPath
	}
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend != "syscall" && c.Backend != "udisks" {
		return fmt.Errorf("backend must be 'syscall' or 'udisks', got %q", c.Backend)
	}

	if c.Device == "" {
		return fmt.Errorf("device is required (use --device or set 'device' in config file)")
	}
	if err := validation.ValidateDevicePath(c.Device); err != nil {
		return err
	}

	if err := validation.ValidateMode(c.Mode); err != nil {
		return err
	}

	return nil
}
