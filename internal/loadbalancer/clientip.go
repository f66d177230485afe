package loadbalancer

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request should be keyed by.
//
// X-Forwarded-For is only read when the TCP peer is one of trusted. The
// header is then walked from the right, skipping trusted hops, and the first
// untrusted address wins. With no trusted proxies the peer address is
// always used, whatever the header says.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)

	if len(trusted) == 0 || !isTrusted(peer, trusted) {
		return peer
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return peer
	}

	hops := strings.Split(strings.Join(xff, ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		client = hop
		if !isTrusted(hop, trusted) {
			break
		}
	}

	return client
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
