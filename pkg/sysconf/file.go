package sysconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

var fileKeys = []string{
	KeyHTTPEnable,
	KeyHTTPProxy,
	KeyHTTPPort,
	KeyProxyAutoConfigEnable,
	KeyProxyAutoConfigURLString,
	KeyProxyAutoDiscoveryEnable,
	KeyExceptionsList,
}

// FileSource reads proxy settings from a YAML, JSON or TOML file using the
// same key names as the system dictionary, optionally nested under Prefix.
//
//	proxies:
//	  HTTPEnable: true
//	  HTTPProxy: proxy.example.com
//	  HTTPPort: 8080
type FileSource struct {
	Path   string
	Prefix string
}

func (f FileSource) Copy(context.Context) (Snapshot, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("file source: %w", ErrUnavailable)
	}
	v := viper.New()
	v.SetConfigFile(f.Path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read proxy settings file %s: %w", f.Path, err)
	}

	// viper folds keys to lower case; look each known key up case-insensitively
	// and store it under its canonical name.
	snap := make(Snapshot)
	for _, key := range fileKeys {
		path := key
		if f.Prefix != "" {
			path = f.Prefix + "." + key
		}
		if !v.IsSet(path) {
			continue
		}
		snap[key] = v.Get(path)
	}
	slog.Debug("Read proxy configuration from file", "path", f.Path, "keys", len(snap))
	return snap, nil
}
