// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
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

// fakeFactory opens bridges backed by [net.Pipe].
type fakeFactory struct {
	closeErr error
	configs  []tapbridge.Config
	fail     string
	mu       sync.Mutex
	names    []string
}

// closeErrConn is a [net.Conn] whose Close fails after closing.
type closeErrConn struct {
	net.Conn
	err error
}

func (c *closeErrConn) Close() error {
	c.Conn.Close()
	return c.err
}

func (f *fakeFactory) Open(sched tapbridge.Scheduler, dev tapbridge.Device,
	ifname string, config *tapbridge.Config) (*tapbridge.Bridge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ifname == f.fail {
		return nil, tapbridge.ErrNoInterface
	}
	f.configs = append(f.configs, *config)
	f.names = append(f.names, ifname)
	_, bridgeSide := net.Pipe()
	if f.closeErr != nil {
		bridgeSide = &closeErrConn{Conn: bridgeSide, err: f.closeErr}
	}
	return tapbridge.New(sched, dev, ifname, bridgeSide, nil), nil
}

func newTestConfig() *Config {
	config := DefaultConfig()
	config.RunFor = 2
	config.Routers = 3
	config.Engine.RealTime = false
	return config
}

func TestEmulator_Run(t *testing.T) {
	t.Run("successful run", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		factory := &fakeFactory{}
		em := New(newTestConfig(), logger)
		em.Factory = factory

		require.NoError(t, em.Run(context.Background()))
		assert.Equal(t, []string{"ns3_em0", "ns3_em1"}, factory.names)
		for _, msg := range []string{
			"buildStart", "bridgeAttached", "routesInstalled", "runStart",
			"engineStart", "engineDone", "routerStats", "runDone",
		} {
			assert.Contains(t, buf.String(), "msg="+msg)
		}
		assert.Contains(t, buf.String(), "simTime=2s")
	})

	t.Run("namespaces and local configuration", func(t *testing.T) {
		config := newTestConfig()
		config.Mode = tapbridge.ConfigureLocal
		config.Left.Namespace = "client"
		config.Right.Namespace = "server"
		factory := &fakeFactory{}
		em := New(config, nil)
		em.Factory = factory

		require.NoError(t, em.Run(context.Background()))
		require.Len(t, factory.configs, 2)
		assert.Equal(t, "client", factory.configs[0].Namespace)
		assert.Equal(t, "172.20.0.2/24", factory.configs[0].Addr.String())
		assert.Equal(t, "server", factory.configs[1].Namespace)
		assert.Equal(t, "172.20.3.2/24", factory.configs[1].Addr.String())
	})

	t.Run("invalid configuration", func(t *testing.T) {
		config := newTestConfig()
		config.Routers = 64
		factory := &fakeFactory{}
		em := New(config, nil)
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, topology.ErrInvalidTopology)
		assert.Len(t, factory.names, 0)
	})

	t.Run("local configuration in a shared namespace", func(t *testing.T) {
		config := newTestConfig()
		config.Mode = tapbridge.ConfigureLocal
		factory := &fakeFactory{}
		em := New(config, nil)
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Len(t, factory.names, 0)
	})

	t.Run("runfor too large", func(t *testing.T) {
		var buf bytes.Buffer
		config := newTestConfig()
		config.RunFor = 10_000_000_000
		factory := &fakeFactory{}
		em := New(config, slog.New(slog.NewTextHandler(&buf, nil)))
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Equal(t, errclass.EINVALID_CONFIG, errclass.New(err))
		assert.Contains(t, buf.String(), "msg=configInvalid")
		assert.Len(t, factory.names, 0)
	})

	t.Run("invalid engine configuration", func(t *testing.T) {
		config := newTestConfig()
		config.Engine.Sync = "Sometimes"
		factory := &fakeFactory{}
		em := New(config, nil)
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Len(t, factory.names, 0)
	})

	t.Run("bridge failure", func(t *testing.T) {
		factory := &fakeFactory{fail: "ns3_em1"}
		em := New(newTestConfig(), nil)
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, topology.ErrBridgeUnavailable)
		assert.ErrorIs(t, err, tapbridge.ErrNoInterface)
		assert.Equal(t, errclass.EBRIDGE_UNAVAILABLE, errclass.New(err))
		assert.Equal(t, []string{"ns3_em0"}, factory.names)
	})

	t.Run("bridge failure and close error", func(t *testing.T) {
		errClose := errors.New("close failed")
		factory := &fakeFactory{closeErr: errClose, fail: "ns3_em1"}
		em := New(newTestConfig(), nil)
		em.Factory = factory

		err := em.Run(context.Background())
		assert.ErrorIs(t, err, tapbridge.ErrNoInterface)
		assert.ErrorIs(t, err, errClose)
		assert.Equal(t, errclass.EBRIDGE_UNAVAILABLE, errclass.New(err))
	})
}

func TestEmulator_Build(t *testing.T) {
	config := newTestConfig()
	config.Names.Enabled = true
	chain, err := New(config, nil).Build()
	require.NoError(t, err)
	assert.Len(t, chain.Routers(), 3)
	assert.NotNil(t, chain.Names())
	assert.Equal(t, link.GbitPerSecond, chain.Links()[0].DataRate())
}

func TestRunner_Run(t *testing.T) {
	newChain := func(t *testing.T) *topology.Chain {
		b := &topology.Builder{
			Engine: netsim.NewEngine(),
			Link:   link.Config{DataRate: link.GbitPerSecond, Delay: time.Millisecond},
		}
		chain, err := b.Build(2)
		require.NoError(t, err)
		return chain
	}

	t.Run("runs for the given duration", func(t *testing.T) {
		chain := newChain(t)
		engine := chain.Engine()
		var at time.Duration
		engine.Schedule(time.Second, func() { at = engine.Now() })
		engine.Schedule(time.Hour, func() { t.Error("event after the end of the run") })

		r := &Runner{Config: &netsim.Config{}}
		require.NoError(t, r.Run(context.Background(), chain, 10*time.Second))
		assert.Equal(t, time.Second, at)
		assert.Equal(t, 10*time.Second, engine.Now())
		assert.True(t, engine.Started())
		assert.False(t, engine.Running())
	})

	t.Run("interruption is not an error", func(t *testing.T) {
		var buf bytes.Buffer
		chain := newChain(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := &Runner{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
		require.NoError(t, r.Run(ctx, chain, time.Hour))
		assert.Contains(t, buf.String(), "interrupted=true")
	})

	t.Run("hard limit", func(t *testing.T) {
		chain := newChain(t)
		engine := chain.Engine()
		engine.Schedule(0, func() { time.Sleep(50 * time.Millisecond) })
		engine.Schedule(time.Millisecond, func() {})
		r := &Runner{Config: &netsim.Config{
			RealTime:  true,
			SyncMode:  netsim.SyncHardLimit,
			HardLimit: 10 * time.Millisecond,
		}}
		err := r.Run(context.Background(), chain, time.Second)
		assert.ErrorIs(t, err, netsim.ErrHardLimit)
		assert.Equal(t, errclass.EHARD_LIMIT, errclass.New(err))
	})
}

func TestPlan(t *testing.T) {
	config := newTestConfig()
	config.Routers = 1
	config.Names.Enabled = true
	chain, err := New(config, nil).Build()
	require.NoError(t, err)

	plan := NewPlan(config, chain)
	assert.Equal(t, 1, plan.Routers)
	assert.Equal(t, "1Gbps", plan.DataRate)
	assert.Equal(t, (50 * time.Microsecond).String(), plan.Delay)
	assert.Equal(t, "chain.internal", plan.Zone)
	require.Len(t, plan.Endpoints, 3)
	assert.Equal(t, PlanEndpoint{Name: "r1", Role: "Router", Addrs: []string{"172.20.0.1/24", "172.20.1.1/24"}}, plan.Endpoints[1])
	assert.Equal(t, PlanEndpoint{Name: "os1", Role: "OSBridge"}, plan.Endpoints[2])
	require.Len(t, plan.Links, 2)
	assert.Equal(t, "172.20.1.0/24", plan.Links[1].Subnet)
	assert.Equal(t, "255.255.255.0", plan.Links[1].Mask)
	assert.Equal(t, "", plan.Links[1].Devices[1].Addr)

	right, err := plan.Host(topology.Right)
	require.NoError(t, err)
	assert.Equal(t, PlanHost{
		Side:      "right",
		Interface: "ns3_em1",
		Addr:      "172.20.1.2/24",
		Gateway:   "172.20.1.1",
		Routes:    []string{"172.20.0.0/16"},
	}, right)
	_, err = plan.Host(topology.Side(3))
	assert.Error(t, err)

	data, err := plan.Marshal()
	require.NoError(t, err)
	parsed, err := ParsePlan(data)
	require.NoError(t, err)
	assert.Equal(t, plan, parsed)

	_, err = ParsePlan([]byte("hosts: [{side: left, addr: nope}]"))
	assert.Error(t, err)
}
