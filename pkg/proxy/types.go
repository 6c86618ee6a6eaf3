package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an empty Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value if present, otherwise def.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Settings is the effective proxy configuration for one target URL.
// When Enabled is false the remaining fields carry no meaning.
type Settings struct {
	Enabled  bool
	Server   Optional[string]
	Port     uint32
	User     Optional[string]
	Password Optional[string]
}

// Disabled is the zero Settings: no proxy.
var Disabled = Settings{}

// HostPort returns "server:port", or "" if no server is set.
func (s Settings) HostPort() string {
	server, ok := s.Server.Get()
	if !ok {
		return ""
	}
	return net.JoinHostPort(server, strconv.FormatUint(uint64(s.Port), 10))
}

// URL converts enabled settings into an http proxy URL including any stored
// credentials. Returns nil when the proxy is disabled.
func (s Settings) URL() *url.URL {
	if !s.Enabled || !s.Server.IsSet() {
		return nil
	}
	u := &url.URL{Scheme: "http", Host: s.HostPort()}
	if user, ok := s.User.Get(); ok {
		if pw, ok := s.Password.Get(); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u
}

// String renders the settings with the password redacted.
func (s Settings) String() string {
	if !s.Enabled {
		return "disabled"
	}
	out := "http://"
	if user, ok := s.User.Get(); ok {
		out += user
		if s.Password.IsSet() {
			out += ":xxxxx"
		}
		out += "@"
	}
	return out + s.HostPort()
}

// ModeKind enumerates the proxy configuration modes a host can be in.
type ModeKind int

const (
	ModeOff ModeKind = iota
	ModeStatic
	ModeAutoConfig
	ModeAutoDiscovery
)

func (k ModeKind) String() string {
	switch k {
	case ModeOff:
		return "off"
	case ModeStatic:
		return "static"
	case ModeAutoConfig:
		return "auto-config"
	case ModeAutoDiscovery:
		return "auto-discovery"
	default:
		return fmt.Sprintf("ModeKind(%d)", int(k))
	}
}

// Mode is the proxy configuration read from the host. Host, Port and
// Exceptions are meaningful for ModeStatic, ScriptURL for ModeAutoConfig.
type Mode struct {
	Kind       ModeKind
	Host       string
	Port       uint32
	ScriptURL  string
	Exceptions []string // hosts that bypass the static proxy
}

// DescriptorType tags one candidate returned by a PAC script.
type DescriptorType string

const (
	DescriptorDirect DescriptorType = "DIRECT"
	DescriptorHTTP   DescriptorType = "HTTP"
	DescriptorHTTPS  DescriptorType = "HTTPS"
	DescriptorSOCKS  DescriptorType = "SOCKS"
)

// Descriptor is a single proxy candidate produced by PAC evaluation.
// Host and Port are empty for DescriptorDirect.
type Descriptor struct {
	Type DescriptorType
	Host string
	Port uint32
}
