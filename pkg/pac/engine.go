package pac

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/robertkrimen/otto"
)

const myIPCacheKey = "myIpAddress"

// errHalt is the panic value used to interrupt a running script.
type errHalt struct{ err error }

// Engine encapsulates the JS VM and PAC helper logic.
type Engine struct {
	vm       *otto.Otto
	vmMutex  sync.Mutex // Protects vm access
	loaded   [sha256.Size]byte
	resolver HostResolver
	now      func() time.Time

	dnsCache  *gocache.Cache
	myIPCache *gocache.Cache
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResolver replaces the DNS resolver used by dnsResolve, isResolvable
// and isInNet.
func WithResolver(r HostResolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

// WithClock replaces the time source used by the date and time helpers.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new PAC evaluation engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		resolver:  net.DefaultResolver,
		now:       time.Now,
		dnsCache:  gocache.New(dnsCacheTTL, cacheCleanupInterval),
		myIPCache: gocache.New(myIPCacheTTL, cacheCleanupInterval),
	}
	for _, opt := range opts {
		opt(e)
	}
	vm, err := e.newVM()
	if err != nil {
		return nil, err
	}
	e.vm = vm
	slog.Debug("PAC Engine initialized")
	return e, nil
}

func (e *Engine) newVM() (*otto.Otto, error) {
	vm := otto.New()
	if err := e.registerPacHelpers(vm); err != nil {
		return nil, fmt.Errorf("failed to register PAC helpers: %w", err)
	}
	return vm, nil
}

// Close drops cached DNS answers.
func (e *Engine) Close() {
	e.dnsCache.Flush()
	e.myIPCache.Flush()
}

// FindProxyForURL loads script into the VM (if it differs from the script
// already loaded) and calls FindProxyForURL(targetURL, targetHost). The
// call is interrupted when ctx ends or after the default execution timeout.
func (e *Engine) FindProxyForURL(ctx context.Context, script, targetURL, targetHost string) (result string, err error) {
	e.vmMutex.Lock()
	defer e.vmMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPacExecTimeout)
		defer cancel()
	}

	sum := sha256.Sum256([]byte(script))
	if sum != e.loaded {
		// Each script gets a clean global scope.
		fresh, vmErr := e.newVM()
		if vmErr != nil {
			return "", vmErr
		}
		e.vm = fresh
		e.loaded = [sha256.Size]byte{}
	}

	vm := e.vm
	interrupt := make(chan func(), 1)
	vm.Interrupt = interrupt
	halt := make(chan struct{})
	defer func() {
		close(halt)
		select {
		case <-interrupt:
		default:
		}
		vm.Interrupt = nil
	}()

	go func() {
		select {
		case <-ctx.Done():
			cause := ctx.Err()
			select {
			case interrupt <- func() { panic(errHalt{cause}) }:
				slog.Warn("PAC script execution interrupted", "reason", cause)
			case <-halt:
			}
		case <-halt:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			if h, ok := r.(errHalt); ok {
				err = fmt.Errorf("pac script execution stopped: %w", h.err)
				// The VM may hold partially evaluated state.
				e.loaded = [sha256.Size]byte{}
				return
			}
			err = fmt.Errorf("panic during PAC script execution: %v", r)
		}
	}()

	if sum != e.loaded {
		if _, loadErr := vm.Run(script); loadErr != nil {
			return "", fmt.Errorf("failed to load PAC script into JS VM: %w", loadErr)
		}
		e.loaded = sum
	}

	fn, getErr := vm.Get("FindProxyForURL")
	if getErr != nil || !fn.IsFunction() {
		return "", ErrNoFindProxyForURL
	}

	slog.Debug("Executing PAC function call", "url", targetURL, "host", targetHost)
	value, runErr := fn.Call(otto.NullValue(), targetURL, targetHost)
	if runErr != nil {
		return "", fmt.Errorf("failed to execute FindProxyForURL in PAC script: %w", runErr)
	}
	if value.IsUndefined() || value.IsNull() {
		return "", nil
	}
	resStr, convErr := value.ToString()
	if convErr != nil {
		return "", fmt.Errorf("failed to convert PAC result to string: %w", convErr)
	}
	return resStr, nil
}

// --- Cache Management ---

func (e *Engine) lookupHost(host string) (string, bool) {
	if cached, found := e.dnsCache.Get(host); found {
		ip, _ := cached.(string)
		slog.Debug("PAC dnsResolve cache hit", "host", host, "ip", ip)
		return ip, ip != ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), dnsLookupTimeout)
	defer cancel()
	ips, err := e.resolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 || ips[0] == "" {
		var dnsErr *net.DNSError
		switch {
		case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
			slog.Debug("PAC dnsResolve: host not found", "host", host)
		case err != nil:
			slog.Warn("PAC dnsResolve: DNS lookup failed", "host", host, "error", err)
		}
		e.dnsCache.Set(host, "", dnsNegativeCacheTTL)
		return "", false
	}

	// Prefer IPv4, PAC scripts commonly feed the answer to isInNet with
	// dotted-quad masks.
	ip := ips[0]
	for _, candidate := range ips {
		if parsed := net.ParseIP(candidate); parsed != nil && parsed.To4() != nil {
			ip = candidate
			break
		}
	}
	e.dnsCache.Set(host, ip, gocache.DefaultExpiration)
	return ip, true
}

func (e *Engine) myIP() string {
	if cached, found := e.myIPCache.Get(myIPCacheKey); found {
		return cached.(string)
	}
	ip := findMyIP()
	e.myIPCache.Set(myIPCacheKey, ip, gocache.DefaultExpiration)
	return ip
}

// findMyIP returns the first global unicast IPv4 address, then the first
// global IPv6 address, falling back to 127.0.0.1.
func findMyIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		slog.Warn("PAC myIpAddress: failed to get interface addresses", "error", err)
		return "127.0.0.1"
	}

	var firstIPv6Global string
	for _, address := range addrs {
		ipnet, ok := address.(*net.IPNet)
		if !ok || ipnet.IP == nil {
			continue
		}
		ip := ipnet.IP
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsMulticast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
		if firstIPv6Global == "" && ip.IsGlobalUnicast() {
			firstIPv6Global = ip.String()
		}
	}
	if firstIPv6Global != "" {
		return firstIPv6Global
	}
	slog.Warn("PAC myIpAddress: no suitable interface address, falling back to 127.0.0.1")
	return "127.0.0.1"
}
