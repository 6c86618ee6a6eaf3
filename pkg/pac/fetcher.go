package pac

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/transform"
)

const (
	defaultPacFileTTL     = 60 * time.Second
	defaultPacFileTimeout = 10 * time.Second
	pacUserAgent          = "hostproxy/PAC-Fetcher"
)

// Fetcher downloads PAC scripts and caches them per URL. The last script
// downloaded from a URL is kept and served when a later refresh fails.
type Fetcher struct {
	httpClient *http.Client
	charset    string
	timeout    time.Duration
	cache      *gocache.Cache
	lastGood   *gocache.Cache
	group      singleflight.Group
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	timeout time.Duration
	ttl     time.Duration
	charset string
	client  *http.Client
}

// WithFetchTimeout bounds a single download.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(o *fetcherOptions) { o.timeout = d }
}

// WithScriptTTL sets how long a fetched script is reused.
func WithScriptTTL(d time.Duration) FetcherOption {
	return func(o *fetcherOptions) { o.ttl = d }
}

// WithCharset forces the character set used to decode scripts.
func WithCharset(name string) FetcherOption {
	return func(o *fetcherOptions) { o.charset = name }
}

// WithHTTPClient replaces the HTTP client. It should not use a proxy.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(o *fetcherOptions) { o.client = c }
}

// NewFetcher returns a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	o := fetcherOptions{
		timeout: defaultPacFileTimeout,
		ttl:     defaultPacFileTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = defaultPacFileTimeout
	}
	if o.ttl <= 0 {
		o.ttl = defaultPacFileTTL
	}

	client := o.client
	if client == nil {
		client = &http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				Proxy: nil, // PAC files are always fetched directly
				DialContext: (&net.Dialer{
					Timeout:   o.timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          5,
				IdleConnTimeout:       60 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	return &Fetcher{
		httpClient: client,
		charset:    o.charset,
		timeout:    o.timeout,
		cache:      gocache.New(o.ttl, 2*o.ttl),
		lastGood:   gocache.New(gocache.NoExpiration, 0),
	}
}

// Fetch returns the decoded script at u, from cache when fresh. Concurrent
// fetches of the same URL share one download.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) (string, error) {
	key := u.String()
	if cached, ok := f.cache.Get(key); ok {
		slog.Debug("Using cached PAC script", "uri", key)
		return cached.(string), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := f.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter on key: only the fetch timeout ends it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()

		content, err := f.fetch(fetchCtx, u)
		if err != nil {
			stale, ok := f.lastGood.Get(key)
			if !ok {
				return nil, err
			}
			slog.Warn("Failed to refresh PAC script, keeping the previous one", "uri", key, "error", err)
			f.cache.SetDefault(key, stale)
			return stale, nil
		}
		f.cache.SetDefault(key, content)
		f.lastGood.Set(key, content, gocache.NoExpiration)
		return content, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate forces the next Fetch of u to download it again. The previous
// copy still serves as the fallback if that download fails.
func (f *Fetcher) Invalidate(u *url.URL) {
	f.cache.Delete(u.String())
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (string, error) {
	var (
		content     []byte
		contentType string
		err         error
	)

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		content, contentType, err = f.fetchHTTP(ctx, u)
	case "file":
		content, err = readPACFile(u)
	default:
		return "", fmt.Errorf("unsupported PAC file scheme: %s", u.Scheme)
	}
	if err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", ErrEmptyScript
	}

	decoded, err := decodeBytesWithCharset(content, contentType, f.charset)
	if err != nil {
		slog.Warn("Failed to decode PAC content, using raw bytes", "uri", u.String(), "error", err)
		decoded = content
	}
	if !utf8.Valid(decoded) {
		slog.Warn("PAC content is not valid UTF-8 after decoding", "uri", u.String())
	}
	slog.Debug("Fetched PAC script", "uri", u.String(), "size", len(decoded))
	return string(decoded), nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create PAC request: %w", err)
	}
	req.Header.Set("User-Agent", pacUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch PAC file from %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch PAC file: %s returned status %s", u, resp.Status)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, pacMaxSizeBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read PAC response body: %w", err)
	}
	if len(content) > pacMaxSizeBytes {
		return nil, "", fmt.Errorf("%s: %w (%d bytes)", u, ErrScriptTooLarge, pacMaxSizeBytes)
	}
	return content, resp.Header.Get("Content-Type"), nil
}

func readPACFile(u *url.URL) ([]byte, error) {
	filePath := u.Path
	// file:///C:/proxy.pac
	if strings.HasPrefix(filePath, "/") && len(filePath) > 2 && filePath[2] == ':' {
		filePath = filePath[1:]
	}
	filePath = filepath.Clean(filepath.FromSlash(filePath))

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PAC file %s: %w", filePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("PAC file path %s is a directory", filePath)
	}
	if info.Size() > pacMaxSizeBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", filePath, ErrScriptTooLarge, pacMaxSizeBytes)
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PAC file %s: %w", filePath, err)
	}
	return content, nil
}

func decodeBytesWithCharset(rawBytes []byte, contentTypeHeader, charsetOverride string) ([]byte, error) {
	encodingName := "utf-8"

	switch {
	case charsetOverride != "":
		encodingName = charsetOverride
	case contentTypeHeader != "":
		_, params, err := mime.ParseMediaType(contentTypeHeader)
		if err != nil {
			slog.Debug("Failed to parse Content-Type header, assuming UTF-8", "header", contentTypeHeader, "error", err)
		} else if name, ok := params["charset"]; ok {
			encodingName = name
		}
	}

	if charsetOverride == "" && !strings.Contains(strings.ToLower(contentTypeHeader), "charset=") {
		if _, detected, certain := charset.DetermineEncoding(rawBytes, ""); certain {
			encodingName = detected
		}
	}

	enc, canonical := charset.Lookup(encodingName)
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", encodingName)
	}
	if canonical == "utf-8" {
		return rawBytes, nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), rawBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to transform bytes from %s to UTF-8: %w", canonical, err)
	}
	return decoded, nil
}
