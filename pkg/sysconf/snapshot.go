// Package sysconf reads the host's network proxy configuration into a
// key-path addressable snapshot.
package sysconf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Key paths understood by the configuration reader. They match the names
// used in the macOS proxy dictionary; other sources translate into them.
const (
	KeyHTTPEnable               = "HTTPEnable"
	KeyHTTPProxy                = "HTTPProxy"
	KeyHTTPPort                 = "HTTPPort"
	KeyProxyAutoConfigEnable    = "ProxyAutoConfigEnable"
	KeyProxyAutoConfigURLString = "ProxyAutoConfigURLString"
	KeyProxyAutoDiscoveryEnable = "ProxyAutoDiscoveryEnable"
	KeyExceptionsList           = "ExceptionsList"
)

// ErrUnavailable is returned by sources that cannot produce a snapshot on
// this host.
var ErrUnavailable = errors.New("network configuration unavailable")

// Source produces a point-in-time copy of the host proxy configuration.
type Source interface {
	Copy(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

func (f SourceFunc) Copy(ctx context.Context) (Snapshot, error) { return f(ctx) }

// Snapshot is a nested dictionary. Keys are addressed with "." separated
// paths, e.g. "Proxies.HTTPEnable".
type Snapshot map[string]any

func (s Snapshot) lookup(keyPath string) (any, bool) {
	if s == nil || keyPath == "" {
		return nil, false
	}
	var cur any = map[string]any(s)
	for _, part := range strings.Split(keyPath, ".") {
		var m map[string]any
		switch v := cur.(type) {
		case Snapshot:
			m = v
		case map[string]any:
			m = v
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Bool returns the boolean at keyPath. Numbers are true when non-zero and
// strings are parsed with strconv.ParseBool.
func (s Snapshot) Bool(keyPath string) (bool, bool) {
	v, ok := s.lookup(keyPath)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, true
	case int64:
		return b != 0, true
	case uint32:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}

// String returns the string at keyPath.
func (s Snapshot) String(keyPath string) (string, bool) {
	v, ok := s.lookup(keyPath)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Int returns the integer at keyPath. Numeric strings are accepted.
func (s Snapshot) Int(keyPath string) (int64, bool) {
	v, ok := s.lookup(keyPath)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// Strings returns the string list at keyPath.
func (s Snapshot) Strings(keyPath string) ([]string, bool) {
	v, ok := s.lookup(keyPath)
	if !ok {
		return nil, false
	}
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

// HasAnyEnableFlag reports whether the snapshot carries at least one of the
// proxy enable flags, enabled or not.
func (s Snapshot) HasAnyEnableFlag() bool {
	for _, key := range []string{KeyHTTPEnable, KeyProxyAutoConfigEnable, KeyProxyAutoDiscoveryEnable} {
		if _, ok := s.Bool(key); ok {
			return true
		}
	}
	return false
}

// MapSource serves a fixed snapshot.
type MapSource Snapshot

func (m MapSource) Copy(context.Context) (Snapshot, error) {
	if m == nil {
		return nil, ErrUnavailable
	}
	return Snapshot(m), nil
}

// Chain tries each source in order and returns the first snapshot that
// carries any enable flag. If none does, the last successful snapshot is
// returned, or the last error.
type Chain []Source

func (c Chain) Copy(ctx context.Context) (Snapshot, error) {
	var (
		last    Snapshot
		lastErr = ErrUnavailable
	)
	for _, src := range c {
		snap, err := src.Copy(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if snap.HasAnyEnableFlag() {
			return snap, nil
		}
		last = snap
	}
	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("no usable network configuration source: %w", lastErr)
}
