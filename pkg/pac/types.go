package pac

import (
	"context"
	"errors"
	"time"
)

const (
	dnsCacheTTL           = 5 * time.Minute
	dnsNegativeCacheTTL   = 30 * time.Second
	myIPCacheTTL          = 10 * time.Minute
	cacheCleanupInterval  = 15 * time.Minute
	defaultPacExecTimeout = 5 * time.Second
	dnsLookupTimeout      = 2 * time.Second

	// Maximum size for downloaded/read PAC files.
	pacMaxSizeBytes = 1 * 1024 * 1024
)

var (
	// ErrNoFindProxyForURL is returned when a script does not define the
	// FindProxyForURL entry point.
	ErrNoFindProxyForURL = errors.New("function 'FindProxyForURL' not found in PAC script")
	// ErrScriptTooLarge is returned when a PAC file exceeds pacMaxSizeBytes.
	ErrScriptTooLarge = errors.New("PAC script exceeds maximum size")
	// ErrEmptyScript is returned for a zero-length PAC file.
	ErrEmptyScript = errors.New("PAC script is empty")
)

// HostResolver is the subset of *net.Resolver used by dnsResolve and friends.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}
