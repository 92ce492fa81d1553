package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// multicast browses DNS-SD for the configured service over the listen
// window and returns every responder seen, deduplicated by IP with the
// last announcement for a given IP winning. The browse context ends with
// the window, which tears down the multicast listener even when zero
// responses arrived.
func (e *Engine) multicast(ctx context.Context) ([]DiscoveredDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MulticastWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- e.browse(ctx, e.cfg.MulticastService, e.cfg.MulticastDomain, entries, removed)
	}()

	// Last writer for a given IP wins; order tracks first sighting so
	// output is stable.
	byIP := make(map[string]DiscoveredDevice)
	var order []string

	collect := func() []DiscoveredDevice {
		devices := make([]DiscoveredDevice, 0, len(byIP))
		for _, ip := range order {
			devices = append(devices, byIP[ip])
		}
		return devices
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				// Browser shut down; wait for its verdict or the window.
				entries = nil
				continue
			}
			dev, ok := e.entryToDevice(entry)
			if !ok {
				continue
			}
			if _, seen := byIP[dev.Host]; !seen {
				order = append(order, dev.Host)
			}
			byIP[dev.Host] = dev
			e.logger.Debug("mdns response", "name", dev.Name, "host", dev.Host, "port", dev.Port)

		case _, ok := <-removed:
			if !ok {
				removed = nil
			}
			// A service withdrawing mid-window is not useful signal for
			// a one-shot scan; the last announcement stands.

		case err := <-browseErr:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %w", ErrMulticastSetup, err)
			}
			return collect(), nil

		case <-ctx.Done():
			return collect(), nil
		}
	}
}

// zeroconfBrowse is the production browse implementation.
func (e *Engine) zeroconfBrowse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, e.browseOptions()...)
}

// browseOptions builds zeroconf client options from config.
func (e *Engine) browseOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if e.cfg.MulticastInterface != "" {
		iface, err := net.InterfaceByName(e.cfg.MulticastInterface)
		if err != nil {
			e.logger.Warn("configured multicast interface not found, browsing all",
				"interface", e.cfg.MulticastInterface, "error", err)
		} else {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToDevice extracts a (name, host, port) triple from a browse
// entry. IPv4 is preferred; entries carrying no address at all are
// dropped because there is nothing to connect to later.
func (e *Engine) entryToDevice(entry *zeroconf.ServiceEntry) (DiscoveredDevice, bool) {
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return DiscoveredDevice{}, false
	}

	name := entry.Instance
	if name == "" {
		name = strings.TrimSuffix(entry.HostName, ".")
	}

	port := entry.Port
	if port == 0 {
		port = e.cfg.SweepPort
	}

	return DiscoveredDevice{
		Name:   name,
		Host:   host,
		Port:   port,
		Source: SourceMDNS,
	}, true
}
