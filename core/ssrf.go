package core

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DestinationGuard rejects webhook destinations that point at internal
// infrastructure. Every hostname is resolved and every resolved address is
// checked, so a DNS name fronting a private range fails the same way a raw
// private IP does. Callers run the guard when a subscription URL is written
// and again immediately before each delivery attempt, which keeps a record
// whose DNS answer changed after creation from reaching internal hosts.
type DestinationGuard struct {
	lookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

type DestinationGuardOption func(*DestinationGuard)

// WithDestinationLookup overrides DNS resolution, used by tests.
func WithDestinationLookup(lookup func(ctx context.Context, host string) ([]net.IP, error)) DestinationGuardOption {
	return func(g *DestinationGuard) {
		if lookup != nil {
			g.lookupIP = lookup
		}
	}
}

func NewDestinationGuard(opts ...DestinationGuardOption) *DestinationGuard {
	guard := &DestinationGuard{
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, addr := range addrs {
				ips = append(ips, addr.IP)
			}
			return ips, nil
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(guard)
		}
	}
	return guard
}

// Validate returns nil when rawURL is a well formed http(s) URL whose host
// resolves only to publicly routable addresses.
func (g *DestinationGuard) Validate(ctx context.Context, rawURL string) error {
	if g == nil {
		return fmt.Errorf("core: destination guard not configured")
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("core: url required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("core: url rejected: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("core: url rejected: scheme %q not allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("core: url rejected: host required")
	}

	if ip := net.ParseIP(host); ip != nil {
		if disallowedAddress(ip) {
			return fmt.Errorf("core: url rejected: disallowed address %s", ip)
		}
		return nil
	}

	ips, err := g.lookupIP(ctx, host)
	if err != nil {
		return fmt.Errorf("core: url rejected: resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("core: url rejected: %s resolved to no addresses", host)
	}
	for _, ip := range ips {
		if disallowedAddress(ip) {
			return fmt.Errorf("core: url rejected: %s resolves to disallowed address %s", host, ip)
		}
	}
	return nil
}

func disallowedAddress(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast() ||
		isUniqueLocal(ip)
}

// isUniqueLocal reports fc00::/7, which net.IP does not expose directly.
func isUniqueLocal(ip net.IP) bool {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return false
	}
	return v6[0]&0xfe == 0xfc
}
