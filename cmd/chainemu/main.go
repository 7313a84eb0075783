// SPDX-License-Identifier: GPL-3.0-or-later

// Command chainemu bridges two OS TAP interfaces through a chain of
// simulated routers running in real time.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbmk-project/chainemu/emulator"
	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options contains the command line options.
type options struct {
	config   string
	dataRate string
	delay    int64
	left     string
	leftNS   string
	logLevel string
	mode     string
	right    string
	rightNS  string
	routers  int
	runFor   int
	zone     string
}

// addFlags registers the flags shared by all the commands.
func (o *options) addFlags(flags *pflag.FlagSet) {
	defaults := emulator.DefaultConfig()
	flags.StringVar(&o.config, "config", "", "YAML configuration file")
	flags.IntVar(&o.runFor, "runfor", defaults.RunFor, "simulation duration in seconds (1-65535)")
	flags.Int64Var(&o.delay, "delay", defaults.Delay, "per-link propagation delay in nanoseconds")
	flags.IntVar(&o.routers, "routers", defaults.Routers, "number of routers (1-63)")
	flags.StringVar(&o.dataRate, "datarate", defaults.DataRate, "per-link data rate")
	flags.StringVar(&o.mode, "mode", defaults.Mode.String(), "bridge mode: UseBridge, or ConfigureLocal with --left-netns and --right-netns set to distinct namespaces")
	flags.StringVar(&o.left, "left", defaults.Left.Interface, "OS interface before the first router")
	flags.StringVar(&o.right, "right", defaults.Right.Interface, "OS interface after the last router")
	flags.StringVar(&o.leftNS, "left-netns", "", "network namespace of the left interface")
	flags.StringVar(&o.rightNS, "right-netns", "", "network namespace of the right interface")
	flags.StringVar(&o.zone, "zone", "", "answer DNS queries for the router names inside this zone")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, or error")
}

// load returns the configuration file overridden by the flags that
// have been explicitly set.
func (o *options) load(flags *pflag.FlagSet) (*emulator.Config, error) {
	config := emulator.DefaultConfig()
	if o.config != "" {
		var err error
		if config, err = emulator.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	if flags.Changed("runfor") {
		config.RunFor = o.runFor
	}
	if flags.Changed("delay") {
		config.Delay = o.delay
	}
	if flags.Changed("routers") {
		config.Routers = o.routers
	}
	if flags.Changed("datarate") {
		config.DataRate = o.dataRate
	}
	if flags.Changed("mode") {
		mode, err := tapbridge.ParseMode(o.mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", emulator.ErrInvalidConfig, err)
		}
		config.Mode = mode
	}
	if flags.Changed("left") {
		config.Left.Interface = o.left
	}
	if flags.Changed("right") {
		config.Right.Interface = o.right
	}
	if flags.Changed("left-netns") {
		config.Left.Namespace = o.leftNS
	}
	if flags.Changed("right-netns") {
		config.Right.Namespace = o.rightNS
	}
	if flags.Changed("zone") {
		config.Names = emulator.NamesConfig{Enabled: o.zone != "", Zone: o.zone}
	}
	return config, nil
}

// logger returns the logger writing on the standard error.
func (o *options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("%w: %w", emulator.ErrInvalidConfig, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// root returns the root cobra command.
func root() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "chainemu",
		Short:         "Bridges two TAP interfaces through a chain of simulated routers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			config, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return emulator.New(config, logger).Run(ctx)
		},
	}
	opts.addFlags(cmd.PersistentFlags())
	cmd.AddCommand(plan(opts))
	cmd.AddCommand(config(opts))
	return cmd
}

// plan returns the plan cobra command.
func plan(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Prints the addressing plan of the chain as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			chain, err := emulator.New(config, nil).Build()
			if err != nil {
				return err
			}
			defer chain.Engine().Destroy()
			data, err := emulator.NewPlan(config, chain).Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// config returns the config cobra command.
func config(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validates and prints the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return err
			}
			data, err := config.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func main() {
	t0 := time.Now()
	if err := root().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "chainemu: %s (errClass=%s, elapsed=%s)\n",
			err.Error(), errclass.New(err), time.Since(t0).Round(time.Millisecond))
		os.Exit(1)
	}
}
