package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig controls which upstream proxies may assert a client address.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP resolves the client address for audit records and rate
// limiting. Forwarding headers are only believed when the TCP peer is inside
// a trusted proxy range; anyone else gets attributed to their socket address.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := remoteHost(r)
	if config == nil || !fromTrustedProxy(peer, config.TrustedProxies) {
		return peer
	}

	if forwarded := firstForwardedAddr(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		return forwarded
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

// firstForwardedAddr returns the leftmost parseable address in an
// X-Forwarded-For value, or "" when none qualifies.
func firstForwardedAddr(xff string) string {
	for _, hop := range strings.Split(xff, ",") {
		hop = strings.TrimSpace(hop)
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err == nil {
			return hop
		}
	}
	return ""
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func fromTrustedProxy(ip string, trusted []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, cidr := range trusted {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
