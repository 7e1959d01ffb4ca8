// Package config holds node-wide configuration, matching the shape of
// the teacher's node.Config: a struct plus DefaultConfig/Validate. The
// package parses no flags itself; cmd/voxelnode starts from DefaultConfig
// and overrides fields from its command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Config is the node's runtime configuration.
type Config struct {
	BindAddr     string        `json:"bind_addr"`
	DataDir      string        `json:"data_dir"`
	LogLevel     string        `json:"log_level"`
	TickInterval time.Duration `json:"tick_interval"`
	RandomKey    bool          `json:"-"`
}

// DefaultDataDir mirrors the teacher's home-relative data directory
// fallback.
func DefaultDataDir() string {
	return "./config"
}

// DefaultConfig returns the node's default configuration: a 50ms tick
// cadence (spec.md §4.7), UDP broadcast bound to all interfaces, and
// info-level logging.
func DefaultConfig() Config {
	return Config{
		BindAddr:     "0.0.0.0:19192",
		DataDir:      DefaultDataDir(),
		LogLevel:     "info",
		TickInterval: 50 * time.Millisecond,
	}
}

// Validate checks cfg for internal consistency, mirroring the teacher's
// ValidateConfig.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("config: invalid bind_addr: %w", err)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("config: invalid log_level %q", cfg.LogLevel)
	}
	if cfg.TickInterval <= 0 {
		return errors.New("config: tick_interval must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	return nil
}

// KeysPath returns the path to the persisted signing seed file.
func (c Config) KeysPath() string {
	return filepath.Join(c.DataDir, "keys.json")
}
