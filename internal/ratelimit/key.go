package ratelimit

import (
	"net"
	"strings"
)

// AnonymousKey is used when a caller carries no identifying information.
const AnonymousKey = "anonymous"

// KeyFor derives the admission key for a submission. The first forwarded
// client address wins, then the submitted email, then the peer address.
func KeyFor(forwardedFor, email, remoteAddr string) string {
	if ip := firstForwarded(forwardedFor); ip != "" {
		return ip
	}

	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return email
	}

	if host := hostOnly(remoteAddr); host != "" {
		return host
	}

	return AnonymousKey
}

func firstForwarded(xff string) string {
	if idx := strings.Index(xff, ","); idx != -1 {
		xff = xff[:idx]
	}

	return strings.TrimSpace(xff)
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
