package proxy

import (
	"net/url"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// Any valid URL works here; httpproxy reports nil for bypassed hosts.
const bypassPlaceholderProxy = "http://bypass.invalid"

// Bypasses reports whether rawURL matches one of the proxy exceptions.
// Entries use NO_PROXY syntax: "example.com" also matches subdomains,
// ".example.com" and "*.example.com" only subdomains, plus "10.0.0.0/8",
// "host:port" and "*". The WinInet token "<local>" matches host names
// without a dot. Loopback targets bypass whenever exceptions are present.
func Bypasses(exceptions []string, rawURL string) bool {
	if len(exceptions) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()

	var noProxy []string
	for _, e := range exceptions {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.EqualFold(e, "<local>"):
			if !strings.ContainsAny(host, ".:") {
				return true
			}
		default:
			noProxy = append(noProxy, e)
		}
	}
	if len(noProxy) == 0 {
		return false
	}

	target := &url.URL{Scheme: "http", Host: u.Host}
	if strings.EqualFold(u.Scheme, "https") {
		target.Scheme = "https"
	}
	cfg := httpproxy.Config{
		HTTPProxy:  bypassPlaceholderProxy,
		HTTPSProxy: bypassPlaceholderProxy,
		NoProxy:    strings.Join(noProxy, ","),
	}
	proxyURL, err := cfg.ProxyFunc()(target)
	return err == nil && proxyURL == nil
}
