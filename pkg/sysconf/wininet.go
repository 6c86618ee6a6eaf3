package sysconf

import (
	"net"
	"strings"
)

// WinInetSettings are the raw values stored under the per-user
// "Internet Settings" registry key.
type WinInetSettings struct {
	ProxyEnable   uint64
	ProxyServer   string
	ProxyOverride string
	AutoConfigURL string
	AutoDetect    uint64
}

// Snapshot translates WinInet values into the common key paths.
// ProxyServer may be a bare "host:port" or a per-scheme list like
// "http=host:port;https=host:port"; only the http entry is used.
func (w WinInetSettings) Snapshot() Snapshot {
	snap := Snapshot{
		KeyHTTPEnable:               false,
		KeyProxyAutoConfigEnable:    strings.TrimSpace(w.AutoConfigURL) != "",
		KeyProxyAutoDiscoveryEnable: w.AutoDetect != 0,
	}
	if url := strings.TrimSpace(w.AutoConfigURL); url != "" {
		snap[KeyProxyAutoConfigURLString] = url
	}
	if w.ProxyOverride != "" {
		var exceptions []any
		for _, part := range strings.Split(w.ProxyOverride, ";") {
			if part = strings.TrimSpace(part); part != "" {
				exceptions = append(exceptions, part)
			}
		}
		snap[KeyExceptionsList] = exceptions
	}

	if w.ProxyEnable == 0 {
		return snap
	}
	server := httpProxyEntry(w.ProxyServer)
	if server == "" {
		return snap
	}
	host, port := hostPortSplit(server)
	if host == "" {
		return snap
	}
	if port == "" {
		port = "80"
	}
	snap[KeyHTTPEnable] = true
	snap[KeyHTTPProxy] = host
	snap[KeyHTTPPort] = port
	return snap
}

func httpProxyEntry(proxyServer string) string {
	proxyServer = strings.TrimSpace(proxyServer)
	if !strings.Contains(proxyServer, "=") {
		return proxyServer
	}
	for _, part := range strings.Split(proxyServer, ";") {
		scheme, addr, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(strings.TrimSpace(scheme), "http") {
			return strings.TrimSpace(addr)
		}
	}
	return ""
}

// hostPortSplit splits "host:port" leniently, returning an empty port when
// none is present.
func hostPortSplit(s string) (string, string) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "http://"), "https://")
	s = strings.TrimSuffix(s, "/")
	if host, port, err := net.SplitHostPort(s); err == nil {
		return host, port
	}
	return strings.Trim(s, "[]"), ""
}
