package middleware

import (
	"net"
	"net/http"
	"strings"

	goTrust "github.com/MrEthical07/goTrust"
)

// Request headers read into the session fingerprint.
const (
	HeaderDeviceID = "X-Device-ID"
	HeaderPlatform = "Sec-CH-UA-Platform"
)

// SignalsFromRequest collects the fingerprint signals of r. RemoteIP is the
// peer address; proxies must be resolved before this middleware runs.
func SignalsFromRequest(r *http.Request) goTrust.Signals {
	return goTrust.Signals{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Platform:       strings.Trim(r.Header.Get(HeaderPlatform), `"`),
		DeviceID:       r.Header.Get(HeaderDeviceID),
		RemoteIP:       hostOnly(r.RemoteAddr),
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
