package keychain

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

type fileEntry struct {
	Server   string `mapstructure:"server"`
	Port     uint32 `mapstructure:"port"`
	Protocol string `mapstructure:"protocol"`
	Account  string `mapstructure:"account"`
	Password string `mapstructure:"password"`
}

type fileContents struct {
	Credentials []fileEntry `mapstructure:"credentials"`
}

// FileStore reads credentials from a YAML/JSON/TOML file on every lookup:
//
//	credentials:
//	  - server: proxy.example.com
//	    port: 8080
//	    account: alice
//	    password: secret
//
// Entries without a protocol are HTTP proxy passwords.
type FileStore struct {
	Path string
}

func (f FileStore) Find(ctx context.Context, q Query) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := f.load()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(entries...).Find(ctx, q)
}

func (f FileStore) load() ([]Entry, error) {
	if info, err := os.Stat(f.Path); err == nil && info.Mode().Perm()&0o077 != 0 {
		slog.Warn("Credential file is readable by other users", "path", f.Path, "mode", info.Mode().Perm())
	}

	v := viper.New()
	v.SetConfigFile(f.Path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %w", f.Path, err)
	}
	var contents fileContents
	if err := v.Unmarshal(&contents); err != nil {
		return nil, fmt.Errorf("failed to decode credential file %s: %w", f.Path, err)
	}

	entries := make([]Entry, 0, len(contents.Credentials))
	for _, c := range contents.Credentials {
		protocol := Protocol(c.Protocol)
		if protocol == "" {
			protocol = ProtocolHTTPProxy
		}
		entries = append(entries, Entry{
			Class:    ClassInternetPassword,
			Protocol: protocol,
			Server:   c.Server,
			Port:     c.Port,
			Account:  c.Account,
			Password: c.Password,
		})
	}
	return entries, nil
}
