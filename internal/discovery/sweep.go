package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

// fallbackPrefixes are swept when no /24 prefix can be derived from the
// host's own interfaces. Conventional home-router ranges.
var fallbackPrefixes = []string{"192.168.1", "192.168.0"}

// sweep connect-scans every candidate /24 host address on the configured
// port with a bounded worker pool. Refused or timed-out addresses are
// simply absent from the result; the sweep itself cannot fail.
func (e *Engine) sweep(ctx context.Context) []DiscoveredDevice {
	hosts := expandPrefixes(e.prefixes())
	if len(hosts) == 0 {
		return []DiscoveredDevice{}
	}

	workers := e.cfg.SweepWorkers
	if workers > len(hosts) {
		workers = len(hosts)
	}

	workCh := make(chan string)
	// Buffered to the candidate count so workers never block on send.
	resultCh := make(chan DiscoveredDevice, len(hosts))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sweepWorker(ctx, workCh, resultCh)
		}()
	}

	go func() {
		defer close(workCh)
		for _, host := range hosts {
			select {
			case <-ctx.Done():
				return
			case workCh <- host:
			}
		}
	}()

	wg.Wait()
	close(resultCh)

	devices := make([]DiscoveredDevice, 0, len(resultCh))
	for dev := range resultCh {
		devices = append(devices, dev)
	}
	sortByHost(devices)
	return devices
}

func (e *Engine) sweepWorker(ctx context.Context, workCh <-chan string, resultCh chan<- DiscoveredDevice) {
	for host := range workCh {
		if ctx.Err() != nil {
			return
		}
		addr := net.JoinHostPort(host, strconv.Itoa(e.cfg.SweepPort))
		if !e.probe(ctx, addr, e.cfg.SweepTimeout) {
			continue
		}
		// A bare connect yields no identity beyond the address itself.
		resultCh <- DiscoveredDevice{
			Name:   host,
			Host:   host,
			Port:   e.cfg.SweepPort,
			Source: SourceSweep,
		}
	}
}

// prefixes returns the /24 prefixes to sweep: the configured override
// when set, otherwise prefixes derived from the host's own non-loopback
// IPv4 addresses, otherwise the conventional fallbacks.
func (e *Engine) prefixes() []string {
	if len(e.cfg.SweepPrefixes) > 0 {
		return e.cfg.SweepPrefixes
	}

	addrs, err := e.ifaceAddrs()
	if err != nil {
		e.logger.Warn("interface enumeration failed, sweeping fallback prefixes", "error", err)
		return fallbackPrefixes
	}

	seen := make(map[string]struct{})
	var prefixes []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		prefix := fmt.Sprintf("%d.%d.%d", ip4[0], ip4[1], ip4[2])
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}

	if len(prefixes) == 0 {
		return fallbackPrefixes
	}
	return prefixes
}

// expandPrefixes expands /24 prefixes into their host addresses
// (.1 through .254), deduplicating addresses shared by overlapping
// prefixes.
func expandPrefixes(prefixes []string) []string {
	seen := make(map[string]struct{})
	hosts := make([]string, 0, len(prefixes)*254)
	for _, prefix := range prefixes {
		for n := 1; n <= 254; n++ {
			host := prefix + "." + strconv.Itoa(n)
			if _, dup := seen[host]; dup {
				continue
			}
			seen[host] = struct{}{}
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// sortByHost orders results numerically by address so concurrent sweeps
// produce stable output.
func sortByHost(devices []DiscoveredDevice) {
	sort.Slice(devices, func(i, j int) bool {
		a := net.ParseIP(devices[i].Host)
		b := net.ParseIP(devices[j].Host)
		if a != nil && b != nil {
			return bytes.Compare(a.To16(), b.To16()) < 0
		}
		return devices[i].Host < devices[j].Host
	})
}
