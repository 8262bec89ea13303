package proxy

import (
	"log/slog"
	"net/netip"
	"net/url"
	"strconv"
)

// ValidateAddress reports whether addr has the form scheme://ipv4:port with
// scheme http or https, a dotted-quad IPv4 host and a port in [1, 65535].
// It never returns an error: malformed input is simply invalid. Used on the
// preload hot path, so failures are logged at debug level only.
func ValidateAddress(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		slog.Debug("proxy address does not parse", "address", addr, "error", err)
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		slog.Debug("proxy address has unsupported scheme", "address", addr, "scheme", u.Scheme)
		return false
	}

	// Is4 is false for IPv4-mapped IPv6 forms like ::ffff:192.0.2.1, so
	// only true dotted-quad literals pass.
	ip, err := netip.ParseAddr(u.Hostname())
	if err != nil || !ip.Is4() {
		slog.Debug("proxy address host is not IPv4", "address", addr, "host", u.Hostname())
		return false
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		slog.Debug("proxy address has invalid port", "address", addr, "port", u.Port())
		return false
	}

	return true
}
