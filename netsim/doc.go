// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides the simulation engine driving an emulated network.

# Usage and Features

The [NewEngine] function creates a new, idle [*Engine]. Simulation objects
(channels, devices, routers) schedule work on the engine using
[*Engine.Schedule], which runs a callback after a simulated delay. Code
running on other goroutines, such as the goroutine reading frames from
an OS interface, uses [*Engine.ScheduleNow] instead, which is goroutine safe.

The [*Engine.Run] method takes a [*Config] selecting the execution mode:

- in real-time mode, simulated time is paced against the wall clock, so
that real systems can interact with the simulation live;

- otherwise, events run as fast as possible, which is what tests want.

Each engine only sees the configuration passed to its own run.

Use [*Engine.Stop] before running to bound the run duration and
[*Engine.Destroy] after running to release the pending events.

Subpackages of this package contain the simulated network: [netsim/link]
models shared-medium links, [netsim/router] models IPv4 routers,
[netsim/routing] computes global routes, [netsim/tapbridge] bridges
simulated devices to OS TAP interfaces, and [netsim/dns] implements
the routers' name service.

# Design Documents

This package is experimental and has no design documents for now.
*/
package netsim
