// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
	"github.com/rbmk-project/chainemu/topology"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates an invalid configuration value.
var ErrInvalidConfig = errclass.Sentinel(errclass.EINVALID_CONFIG, "invalid configuration")

// MaxRunFor is the longest simulation duration in seconds.
const MaxRunFor = 65535

// BridgeConfig configures the OS interface of one side of the chain.
type BridgeConfig struct {
	// Interface is the OS interface name.
	Interface string `yaml:"interface"`

	// Namespace is the optional network namespace of the interface.
	Namespace string `yaml:"namespace,omitempty"`
}

// EngineConfig configures the simulation engine.
type EngineConfig struct {
	// RealTime paces the simulation against the wall clock.
	RealTime bool `yaml:"realtime"`

	// Checksum enables computing and verifying checksums.
	Checksum bool `yaml:"checksum"`

	// Sync is the synchronization mode: BestEffort or HardLimit.
	Sync string `yaml:"sync"`

	// HardLimit is the maximum lag when Sync is HardLimit.
	HardLimit time.Duration `yaml:"hardlimit,omitempty"`
}

// NamesConfig configures the router name service.
type NamesConfig struct {
	// Enabled makes routers answer DNS queries on port 53.
	Enabled bool `yaml:"enabled"`

	// Zone is the zone containing the router names.
	Zone string `yaml:"zone"`
}

// Config is the emulator configuration.
type Config struct {
	// RunFor is the simulation duration in seconds.
	RunFor int `yaml:"runfor"`

	// Delay is the per-link propagation delay in nanoseconds.
	Delay int64 `yaml:"delay"`

	// Routers is the number of routers.
	Routers int `yaml:"routers"`

	// DataRate is the per-link data rate (e.g., 1000Mbps).
	DataRate string `yaml:"datarate"`

	// Mode is the bridge mode for both sides.
	Mode tapbridge.Mode `yaml:"mode"`

	// Left configures the OS interface before the first router.
	Left BridgeConfig `yaml:"left"`

	// Right configures the OS interface after the last router.
	Right BridgeConfig `yaml:"right"`

	// Engine configures the simulation engine.
	Engine EngineConfig `yaml:"engine"`

	// Names configures the router name service.
	Names NamesConfig `yaml:"names"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RunFor:   100,
		Delay:    50000,
		Routers:  1,
		DataRate: "1000Mbps",
		Mode:     tapbridge.UseBridge,
		Left:     BridgeConfig{Interface: "ns3_em0"},
		Right:    BridgeConfig{Interface: "ns3_em1"},
		Engine: EngineConfig{
			RealTime: true,
			Checksum: true,
			Sync:     netsim.SyncBestEffort.String(),
		},
		Names: NamesConfig{Zone: "chain.internal"},
	}
}

// LoadConfig reads a YAML configuration file on top of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration on top of [DefaultConfig].
// Unknown fields are errors.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return config, nil
}

// Marshal returns the YAML representation of the configuration.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate returns an error when the configuration is invalid.
func (c *Config) Validate() error {
	if err := topology.ValidateRouterCount(c.Routers); err != nil {
		return err
	}
	if c.RunFor <= 0 || c.RunFor > MaxRunFor {
		return fmt.Errorf("%w: runfor must be in 1..%d: %d", ErrInvalidConfig, MaxRunFor, c.RunFor)
	}
	if c.Delay <= 0 {
		return fmt.Errorf("%w: delay must be positive: %d", ErrInvalidConfig, c.Delay)
	}
	if _, err := c.LinkConfig(); err != nil {
		return err
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	switch c.Mode {
	case tapbridge.UseBridge, tapbridge.ConfigureLocal:
	default:
		return fmt.Errorf("%w: unknown mode: %s", ErrInvalidConfig, c.Mode)
	}
	if c.Left.Interface == "" || c.Right.Interface == "" {
		return fmt.Errorf("%w: empty interface name", ErrInvalidConfig)
	}
	if c.Left.Interface == c.Right.Interface {
		return fmt.Errorf("%w: both sides use %s", ErrInvalidConfig, c.Left.Interface)
	}
	if c.Mode == tapbridge.ConfigureLocal && !c.distinctNamespaces() {
		return fmt.Errorf("%w: %s needs a distinct namespace on each side", ErrInvalidConfig, c.Mode)
	}
	if c.Names.Enabled && c.Names.Zone == "" {
		return fmt.Errorf("%w: empty names zone", ErrInvalidConfig)
	}
	return nil
}

// distinctNamespaces returns whether both sides live in their own
// named namespace. Two hosts sharing a namespace would conflict on the
// route towards the chain and deliver to each other locally.
func (c *Config) distinctNamespaces() bool {
	return c.Left.Namespace != "" && c.Right.Namespace != "" &&
		c.Left.Namespace != c.Right.Namespace
}

// Duration returns the simulation duration.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.RunFor) * time.Second
}

// LinkConfig returns the configuration shared by all the links.
func (c *Config) LinkConfig() (link.Config, error) {
	rate, err := link.ParseDataRate(c.DataRate)
	if err != nil {
		return link.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return link.Config{DataRate: rate, Delay: time.Duration(c.Delay)}, nil
}

// EngineConfig returns the engine configuration.
func (c *Config) EngineConfig() (*netsim.Config, error) {
	mode, err := netsim.ParseSyncMode(c.Engine.Sync)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Engine.HardLimit < 0 {
		return nil, fmt.Errorf("%w: negative hard limit", ErrInvalidConfig)
	}
	return &netsim.Config{
		RealTime:        c.Engine.RealTime,
		ChecksumEnabled: c.Engine.Checksum,
		SyncMode:        mode,
		HardLimit:       c.Engine.HardLimit,
	}, nil
}

// Zone returns the DNS zone, or the empty string when disabled.
func (c *Config) Zone() string {
	if !c.Names.Enabled {
		return ""
	}
	return c.Names.Zone
}

// Bridges returns the bridge configuration of each side.
func (c *Config) Bridges() [2]BridgeConfig {
	return [2]BridgeConfig{c.Left, c.Right}
}
