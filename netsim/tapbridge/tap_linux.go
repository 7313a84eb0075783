// SPDX-License-Identifier: GPL-3.0-or-later

package tapbridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"

	"github.com/rbmk-project/chainemu/netipx"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// tunDevice is the clone device used to open TAP interfaces.
const tunDevice = "/dev/net/tun"

// tuntapType is the netlink type of TUN/TAP interfaces.
const tuntapType = "tuntap"

// openTap opens the named TAP interface inside the configured namespace.
func openTap(ifname string, config *Config) (io.ReadWriteCloser, error) {
	if config.Namespace == "" {
		return openTapHere(ifname, config)
	}

	// setns applies to the current thread only.
	runtime.LockOSThread()
	origNS, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("get current netns: %w", err)
	}
	defer origNS.Close()

	targetNS, err := netns.GetFromName(config.Namespace)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("open netns %q: %w", config.Namespace, err)
	}
	defer targetNS.Close()

	if err := netns.Set(targetNS); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("setns %q: %w", config.Namespace, err)
	}

	rwc, err := openTapHere(ifname, config)

	if errBack := netns.Set(origNS); errBack != nil {
		// Keep the thread locked so that it dies with the goroutine.
		if rwc != nil {
			rwc.Close()
		}
		return nil, fmt.Errorf("setns back: %w", errBack)
	}
	runtime.UnlockOSThread()
	return rwc, err
}

// openTapHere opens the named TAP interface in the current namespace.
func openTapHere(ifname string, config *Config) (io.ReadWriteCloser, error) {
	existing, err := netlink.LinkByName(ifname)
	var notFound netlink.LinkNotFoundError
	switch {
	case err != nil && !errors.As(err, &notFound):
		return nil, fmt.Errorf("lookup interface: %w", err)
	case err != nil:
		existing = nil
	}

	switch config.Mode {
	case UseBridge:
		if existing == nil {
			return nil, ErrNoInterface
		}
		if existing.Type() != tuntapType {
			return nil, fmt.Errorf("%w: type %s", ErrNotTap, existing.Type())
		}
		file, err := openTun(ifname)
		if err != nil {
			return nil, err
		}
		return file, nil

	case ConfigureLocal:
		if existing != nil {
			return nil, ErrInterfaceExists
		}
		file, err := openTun(ifname)
		if err != nil {
			return nil, err
		}
		if err := configureLocal(ifname, config); err != nil {
			file.Close()
			return nil, err
		}
		return file, nil

	default:
		return nil, fmt.Errorf("unsupported mode: %s", config.Mode)
	}
}

// openTun attaches to the named TAP interface, creating it if needed.
func openTun(ifname string) (*os.File, error) {
	fd, err := unix.Open(tunDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevice, err)
	}

	ifr, err := unix.NewIfreq(ifname)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ifreq: %w", err)
	}
	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("TUNSETIFF: %w", err)
	}

	// Non-blocking mode lets the runtime poller unblock reads on Close.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), tunDevice), nil
}

// configureLocal brings the interface up, assigns the host
// address, and installs the configured routes.
func configureLocal(ifname string, config *Config) error {
	lnk, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("lookup interface: %w", err)
	}
	if err := netlink.LinkSetUp(lnk); err != nil {
		return fmt.Errorf("link up: %w", err)
	}
	if config.Addr.IsValid() {
		addr := &netlink.Addr{IPNet: netipx.IPNet(config.Addr)}
		if err := netlink.AddrAdd(lnk, addr); err != nil {
			return fmt.Errorf("addr add %s: %w", config.Addr, err)
		}
	}
	for _, dst := range config.Routes {
		route := &netlink.Route{
			LinkIndex: lnk.Attrs().Index,
			Dst:       netipx.IPNet(dst.Masked()),
			Gw:        net.IP(config.Gateway.AsSlice()),
		}
		if err := netlink.RouteAdd(route); err != nil {
			return fmt.Errorf("route add %s via %s: %w", dst, config.Gateway, err)
		}
	}
	return nil
}
