// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
	"github.com/rbmk-project/chainemu/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, 100*time.Second, config.Duration())
	assert.Equal(t, 1, config.Routers)
	assert.Equal(t, "ns3_em0", config.Left.Interface)
	assert.Equal(t, "ns3_em1", config.Right.Interface)
	assert.Equal(t, "", config.Zone())

	lc, err := config.LinkConfig()
	require.NoError(t, err)
	assert.Equal(t, link.Config{DataRate: link.GbitPerSecond, Delay: 50 * time.Microsecond}, lc)

	ec, err := config.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, netsim.RealTimeConfig(), ec)
}

func TestConfig_Validate(t *testing.T) {
	type testcase struct {
		name   string
		modify func(c *Config)
		class  string
	}

	cases := []testcase{{
		name:   "zero routers",
		modify: func(c *Config) { c.Routers = 0 },
		class:  errclass.EINVALID_TOPOLOGY,
	}, {
		name:   "too many routers",
		modify: func(c *Config) { c.Routers = 64 },
		class:  errclass.EINVALID_TOPOLOGY,
	}, {
		name:   "zero runfor",
		modify: func(c *Config) { c.RunFor = 0 },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "runfor overflowing the duration",
		modify: func(c *Config) { c.RunFor = 10_000_000_000 },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "longest run",
		modify: func(c *Config) { c.RunFor = MaxRunFor },
		class:  "",
	}, {
		name:   "negative delay",
		modify: func(c *Config) { c.Delay = -1 },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "invalid data rate",
		modify: func(c *Config) { c.DataRate = "fast" },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "invalid sync mode",
		modify: func(c *Config) { c.Engine.Sync = "Sometimes" },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "negative hard limit",
		modify: func(c *Config) { c.Engine.HardLimit = -time.Second },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "unknown mode",
		modify: func(c *Config) { c.Mode = tapbridge.Mode(9) },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "empty interface",
		modify: func(c *Config) { c.Right.Interface = "" },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "same interface",
		modify: func(c *Config) { c.Right.Interface = c.Left.Interface },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "ConfigureLocal in the default namespace",
		modify: func(c *Config) { c.Mode = tapbridge.ConfigureLocal },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name: "ConfigureLocal with one namespace",
		modify: func(c *Config) {
			c.Mode = tapbridge.ConfigureLocal
			c.Left.Namespace = "client"
		},
		class: errclass.EINVALID_CONFIG,
	}, {
		name: "ConfigureLocal with the same namespace",
		modify: func(c *Config) {
			c.Mode = tapbridge.ConfigureLocal
			c.Left.Namespace = "hosts"
			c.Right.Namespace = "hosts"
		},
		class: errclass.EINVALID_CONFIG,
	}, {
		name: "ConfigureLocal with distinct namespaces",
		modify: func(c *Config) {
			c.Mode = tapbridge.ConfigureLocal
			c.Left.Namespace = "client"
			c.Right.Namespace = "server"
		},
		class: "",
	}, {
		name:   "empty zone",
		modify: func(c *Config) { c.Names = NamesConfig{Enabled: true} },
		class:  errclass.EINVALID_CONFIG,
	}, {
		name:   "largest chain",
		modify: func(c *Config) { c.Routers = topology.MaxRouters },
		class:  "",
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(config)
			assert.Equal(t, tc.class, errclass.New(config.Validate()))
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("overrides the defaults", func(t *testing.T) {
		config, err := ParseConfig([]byte(`
routers: 3
datarate: 100Mbps
mode: ConfigureLocal
left:
  interface: tap0
  namespace: client
right:
  namespace: server
engine:
  sync: HardLimit
  hardlimit: 250ms
names:
  enabled: true
`))
		require.NoError(t, err)
		require.NoError(t, config.Validate())
		assert.Equal(t, 3, config.Routers)
		assert.Equal(t, 100, config.RunFor)
		assert.Equal(t, tapbridge.ConfigureLocal, config.Mode)
		assert.Equal(t, BridgeConfig{Interface: "tap0", Namespace: "client"}, config.Left)
		assert.Equal(t, BridgeConfig{Interface: "ns3_em1", Namespace: "server"}, config.Right)
		assert.Equal(t, "chain.internal", config.Zone())

		ec, err := config.EngineConfig()
		require.NoError(t, err)
		assert.Equal(t, netsim.SyncHardLimit, ec.SyncMode)
		assert.Equal(t, 250*time.Millisecond, ec.HardLimit)
		assert.True(t, ec.RealTime)
	})

	t.Run("empty document", func(t *testing.T) {
		config, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("unknown fields", func(t *testing.T) {
		_, err := ParseConfig([]byte("routerz: 3\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := ParseConfig([]byte("mode: Bridged\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := DefaultConfig().Marshal()
		require.NoError(t, err)
		assert.Contains(t, string(data), "mode: UseBridge")
		config, err := ParseConfig(data)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainemu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routers: 7\nrunfor: 5\n"), 0600))
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Routers)
	assert.Equal(t, 5*time.Second, config.Duration())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
