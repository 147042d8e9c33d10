package agent

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// BlockedURLError reports a URL rejected by the fetch guard. Callers must
// never fetch a URL after receiving one.
type BlockedURLError struct {
	Host   string
	Reason string
}

func (e *BlockedURLError) Error() string {
	return fmt.Sprintf("agent: blocked url: %s (%s)", e.Host, e.Reason)
}

// blockedHosts are denied by exact hostname match before any IP inspection.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"127.0.0.1":                true,
	"0.0.0.0":                  true,
	"::1":                      true,
	"metadata.google.internal": true,
	"169.254.169.254":          true,
}

// ValidateURL is the SSRF boundary for every outbound fetch, including
// fetches of links discovered on a previously fetched page. It rejects
// non-absolute URLs, non-HTTP(S) schemes, the deny-listed hosts, and
// literal IPv4 addresses in private, loopback, link-local, or
// current-network ranges.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return &BlockedURLError{Host: raw, Reason: "invalid url"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &BlockedURLError{Host: parsed.Hostname(), Reason: "blocked scheme " + parsed.Scheme}
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return &BlockedURLError{Host: raw, Reason: "missing host"}
	}

	if blockedHosts[hostname] {
		return &BlockedURLError{Host: hostname, Reason: "blocked host"}
	}

	if addr, err := netip.ParseAddr(hostname); err == nil && addr.Is4() {
		if privateIPv4(addr) {
			return &BlockedURLError{Host: hostname, Reason: "private address"}
		}
	}

	return nil
}

// privateIPv4 reports whether addr falls in 10/8, 127/8, 0/8, 169.254/16,
// 172.16/12, or 192.168/16.
func privateIPv4(addr netip.Addr) bool {
	octets := addr.As4()
	a, b := octets[0], octets[1]
	switch {
	case a == 10 || a == 127 || a == 0:
		return true
	case a == 169 && b == 254:
		return true
	case a == 172 && b >= 16 && b <= 31:
		return true
	case a == 192 && b == 168:
		return true
	}
	return false
}
