package sysconf

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// EnvSource maps the conventional HTTP_PROXY/NO_PROXY environment variables
// onto the static proxy keys. A nil Config reads the process environment.
type EnvSource struct {
	Config *httpproxy.Config
}

func (e EnvSource) Copy(context.Context) (Snapshot, error) {
	cfg := e.Config
	if cfg == nil {
		cfg = httpproxy.FromEnvironment()
	}

	snap := Snapshot{
		KeyHTTPEnable:               false,
		KeyProxyAutoConfigEnable:    false,
		KeyProxyAutoDiscoveryEnable: false,
	}
	if cfg.NoProxy != "" {
		var exceptions []any
		for _, part := range strings.Split(cfg.NoProxy, ",") {
			if part = strings.TrimSpace(part); part != "" {
				exceptions = append(exceptions, part)
			}
		}
		snap[KeyExceptionsList] = exceptions
	}

	raw := strings.TrimSpace(cfg.HTTPProxy)
	if raw == "" {
		return snap, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return snap, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return snap, nil
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return snap, nil
	}

	snap[KeyHTTPEnable] = true
	snap[KeyHTTPProxy] = u.Hostname()
	snap[KeyHTTPPort] = port
	return snap, nil
}
