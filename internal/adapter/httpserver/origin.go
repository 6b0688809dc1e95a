package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser pages may open a websocket.
type originPolicy struct {
	site          string
	allowLoopback bool
}

// NewCheckOrigin builds the upgrader's origin check. Requests without an Origin header come
// from non-browser clients and pass. Browsers must be on the site's own scheme, host and port;
// development also admits pages served from a loopback host on any port.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	p := originPolicy{site: extractOrigin(appURL), allowLoopback: isDevelopment}
	return p.check
}

func (p originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.admits(origin) {
		return true
	}
	slog.Warn("Rejected websocket origin", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

func (p originPolicy) admits(origin string) bool {
	if p.site != "" && strings.EqualFold(origin, p.site) {
		return true
	}
	if !p.allowLoopback {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// extractOrigin reduces a URL to scheme://host[:port], or "" when it has no host.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil, u.Host == "":
		return ""
	}
	return u.Scheme + "://" + u.Host
}
