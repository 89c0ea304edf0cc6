package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP from request metadata. Forwarded headers
// are used only as a fallback; the direct peer address wins when parseable.
func ClientIP(r *http.Request) string {
	if ip := parseRemoteIP(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func parseRemoteIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
