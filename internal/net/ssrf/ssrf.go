// Package ssrf gates outbound HTTP fetches: it rejects hostnames and IP
// literals that point at loopback, private, link-local, or otherwise
// internal address space, both as written and after DNS resolution.
package ssrf

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// BlockedError marks a hostname or address the filter refused.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return e.Reason }

// blockedHostnames are names refused outright, before any resolution.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// blockedSuffixes mark names that only make sense inside a private network.
var blockedSuffixes = []string{".localhost", ".local", ".internal"}

// extraPrivateNets covers ranges net.IP's own classification misses:
// carrier-grade NAT and the IPv4 "this network" block.
var extraPrivateNets = []*net.IPNet{
	mustCIDR("100.64.0.0/10"),
	mustCIDR("0.0.0.0/8"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize lowercases a hostname, trims surrounding whitespace and the
// trailing dot of a fully qualified name, and unwraps IPv6 brackets.
func Normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// IsBlockedHostname reports whether host is refused by name alone.
func IsBlockedHostname(host string) bool {
	h := Normalize(host)
	if h == "" {
		return false
	}
	if blockedHostnames[h] {
		return true
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(h, suffix) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip belongs to loopback, private, link-local,
// unspecified, multicast, ULA, or carrier-grade NAT space. IPv4-mapped IPv6
// addresses are classified by their embedded IPv4 address.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, n := range extraPrivateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsPrivateAddress reports whether addr parses as an IP literal in private
// space. Non-IP strings report false; they need a DNS check instead.
func IsPrivateAddress(addr string) bool {
	ip := net.ParseIP(Normalize(addr))
	if ip == nil {
		return false
	}
	return IsPrivateIP(ip)
}

// ValidatePublicHostname verifies that host is safe to fetch from: not a
// blocked name, not a private IP literal, and, for names, not resolving to
// any private address.
func ValidatePublicHostname(host string) error {
	h := Normalize(host)
	if h == "" {
		return errors.New("invalid hostname: empty after normalization")
	}
	if IsBlockedHostname(h) {
		return &BlockedError{Reason: fmt.Sprintf("blocked hostname: %s", h)}
	}
	if ip := net.ParseIP(h); ip != nil {
		if IsPrivateIP(ip) {
			return &BlockedError{Reason: "blocked: private/internal IP address"}
		}
		return nil
	}

	ips, err := net.LookupIP(h)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname %s: %w", h, err)
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return &BlockedError{Reason: "blocked: resolves to private/internal IP address"}
		}
	}
	return nil
}
