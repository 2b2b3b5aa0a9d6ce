package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrUnsafeOrigin is returned for an explorer origin that would let the
// service call into its own network.
var ErrUnsafeOrigin = errors.New("unsafe origin url")

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

var internalHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.google":          true,
}

// ValidateOriginURL rejects explorer origins that are not http(s) or that
// point, literally or after resolution, at loopback, private, link-local or
// unspecified addresses.
func ValidateOriginURL(ctx context.Context, raw string, r Resolver) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeOrigin, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeOrigin, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeOrigin)
	}
	if internalHosts[strings.ToLower(host)] {
		return fmt.Errorf("%w: host %q", ErrUnsafeOrigin, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(host, addr)
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrUnsafeOrigin, host, err)
	}
	for _, addr := range addrs {
		if err := checkAddr(host, addr); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(host string, addr netip.Addr) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsUnspecified(),
		addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeOrigin, host, addr)
	}
	return nil
}
