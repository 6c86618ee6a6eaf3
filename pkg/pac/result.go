package pac

import (
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

const (
	directiveDirect = "DIRECT"
	directiveProxy  = "PROXY"
	directiveHTTP   = "HTTP"
	directiveHTTPS  = "HTTPS"
	directiveSocks  = "SOCKS"
	directiveSocks4 = "SOCKS4"
	directiveSocks5 = "SOCKS5"
	pacDelimiter    = ";"
)

// ParseResult converts the string returned by FindProxyForURL into an ordered
// descriptor list. Unknown or malformed entries are dropped.
func ParseResult(result string) []proxy.Descriptor {
	var out []proxy.Descriptor
	for _, part := range strings.Split(result, pacDelimiter) {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}

		directive := strings.ToUpper(fields[0])
		if directive == directiveDirect {
			out = append(out, proxy.Descriptor{Type: proxy.DescriptorDirect})
			continue
		}

		var (
			typ         proxy.DescriptorType
			defaultPort uint32
		)
		switch directive {
		case directiveProxy, directiveHTTP:
			typ, defaultPort = proxy.DescriptorHTTP, 80
		case directiveHTTPS:
			typ, defaultPort = proxy.DescriptorHTTPS, 443
		case directiveSocks, directiveSocks4, directiveSocks5:
			typ, defaultPort = proxy.DescriptorSOCKS, 1080
		default:
			slog.Warn("Ignoring unknown directive in PAC result", "directive", part)
			continue
		}

		if len(fields) < 2 {
			slog.Warn("PAC result missing host:port for directive", "directive", part)
			continue
		}
		host, port, ok := splitHostPort(fields[1], defaultPort)
		if !ok {
			slog.Warn("PAC result has invalid host:port", "directive", part)
			continue
		}
		out = append(out, proxy.Descriptor{Type: typ, Host: host, Port: port})
	}

	if len(out) == 0 {
		slog.Debug("No valid directives found in PAC result", "result", result)
	}
	return out
}

func splitHostPort(hostport string, defaultPort uint32) (string, uint32, bool) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port, or an unbracketed IPv6 literal.
		host = strings.Trim(hostport, "[]")
		if host == "" {
			return "", 0, false
		}
		return host, defaultPort, true
	}
	if host == "" {
		return "", 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, false
	}
	return host, uint32(port), true
}
