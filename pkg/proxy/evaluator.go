package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	errEmptyURL    = errors.New("empty URL")
	errRelativeURL = errors.New("URL is not absolute")

	localhostRe = regexp.MustCompile(`(?i)^https?://localhost(?:[:/?#]|$)`)
)

// IsLocalhost reports whether rawURL targets localhost over http or https.
func IsLocalhost(rawURL string) bool {
	return localhostRe.MatchString(rawURL)
}

// EvaluatePAC runs the script at scriptURL for targetURL and returns the
// first plain HTTP proxy it selects, without credentials. Every failure,
// including an executor that never reports back within the resolver's
// timeout, yields disabled settings.
func (r *Resolver) EvaluatePAC(ctx context.Context, scriptURL, targetURL string) Settings {
	if IsLocalhost(targetURL) {
		return disable(ctx, reasonLocalhost, "url", targetURL)
	}
	if r.executor == nil {
		return disable(ctx, reasonNoExecutor, "script", scriptURL)
	}

	script, err := ParseScriptURL(scriptURL)
	if err != nil {
		return disable(ctx, reasonScriptURLInvalid, "script", scriptURL, "error", err)
	}
	target, err := ParseStrictURL(targetURL)
	if err != nil {
		return disable(ctx, reasonTargetURLInvalid, "url", targetURL, "error", err)
	}

	type outcome struct {
		candidates []Descriptor
		err        error
	}
	results := make(chan outcome, 1)
	var once sync.Once

	start := time.Now()
	cancel := r.executor.Execute(ctx, script, target, func(candidates []Descriptor, err error) {
		once.Do(func() {
			results <- outcome{candidates: candidates, err: err}
		})
	})
	if cancel != nil {
		defer cancel()
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case out := <-results:
			if out.err != nil {
				return disable(ctx, reasonPACFailed, "script", script.String(), "url", targetURL, "error", out.err)
			}
			return r.firstHTTP(ctx, out.candidates, targetURL)
		case <-ticker.C:
			slog.Debug("Waiting for PAC evaluation", "url", targetURL, "elapsed", time.Since(start))
		case <-timer.C:
			return disable(ctx, reasonPACTimeout, "script", script.String(), "url", targetURL, "timeout", r.timeout)
		case <-ctx.Done():
			return disable(ctx, reasonPACCancelled, "url", targetURL, "error", ctx.Err())
		}
	}
}

// firstHTTP picks the first HTTP descriptor. DIRECT, HTTPS and SOCKS entries
// are skipped.
func (r *Resolver) firstHTTP(ctx context.Context, candidates []Descriptor, targetURL string) Settings {
	for _, d := range candidates {
		if d.Type != DescriptorHTTP || d.Host == "" {
			continue
		}
		return Settings{
			Enabled: true,
			Server:  Some(d.Host),
			Port:    d.Port,
		}
	}
	return disable(ctx, reasonNoHTTPCandidate, "url", targetURL, "candidates", len(candidates))
}

// ParseScriptURL parses a PAC script location strictly. When that fails the
// string is percent-encoded, keeping ':' and '/', and parsed once more.
func ParseScriptURL(raw string) (*url.URL, error) {
	u, err := ParseStrictURL(raw)
	if err == nil {
		return u, nil
	}
	encoded := EncodeURLPart(raw, ":/")
	slog.Debug("Retrying PAC script URL with encoding", "raw", raw, "encoded", encoded, "error", err)
	return ParseStrictURL(encoded)
}

// ParseStrictURL accepts only absolute URLs made of RFC 3986 characters with
// well-formed percent escapes.
func ParseStrictURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errEmptyURL}
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '%' {
			if i+2 >= len(raw) || !isHex(raw[i+1]) || !isHex(raw[i+2]) {
				return nil, &url.Error{Op: "parse", URL: raw, Err: url.EscapeError(raw[i:min(i+3, len(raw))])}
			}
			i += 2
			continue
		}
		if !isUnreserved(c) && !strings.ContainsRune(uriReserved, rune(c)) {
			return nil, &url.Error{Op: "parse", URL: raw, Err: fmt.Errorf("invalid character %q at offset %d", c, i)}
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errRelativeURL}
	}
	return u, nil
}

// EncodeURLPart percent-encodes every byte of s except unreserved characters
// and those listed in keep.
func EncodeURLPart(s, keep string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(keep, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

const uriReserved = ":/?#[]@!$&'()*+,;="

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
