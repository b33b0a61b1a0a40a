// Package discovery advertises relays on the local network over mDNS
// and finds them again from the client side.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_collabtext._tcp"
	Domain  = "local."
)

// ErrNotFound is returned by Lookup when no relay answered in time.
var ErrNotFound = errors.New("discovery: no relay found")

// Advertise registers a relay listening on port under instance and
// keeps it registered until ctx is done.
func Advertise(ctx context.Context, instance string, port int, logger *slog.Logger) error {
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"txtv=0"}, nil)
	if err != nil {
		return fmt.Errorf("discovery: registering %s: %w", instance, err)
	}
	defer server.Shutdown()
	logger.Info("mdns service registered", "instance", instance, "service", Service, "port", port)
	<-ctx.Done()
	return nil
}

// Lookup browses for relays until one answers or ctx is done, and
// returns its websocket base URL.
func Lookup(ctx context.Context, logger *slog.Logger) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("discovery: initializing resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("discovery: browsing: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return "", ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if url, ok := EntryURL(entry); ok {
				logger.Info("mdns discovered relay", "instance", entry.Instance, "url", url)
				return url, nil
			}
		}
	}
}

// EntryURL builds a websocket URL for a browse result, preferring
// IPv4, then IPv6, then the advertised host name.
func EntryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = entry.HostName
	default:
		return "", false
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)), true
}
