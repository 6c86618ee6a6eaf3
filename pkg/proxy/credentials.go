package proxy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yolkispalkis/hostproxy/pkg/keychain"
)

// ResolveCredentials returns enabled settings for server:port, with the
// first stored HTTP proxy password whose account and secret can both be
// read. Store failures leave the credentials unset.
func (r *Resolver) ResolveCredentials(ctx context.Context, server string, port uint32) Settings {
	settings := Settings{
		Enabled: true,
		Server:  Some(server),
		Port:    port,
	}
	if r.store == nil {
		note(ctx, reasonCredentialNotFound, "server", server, "port", port)
		return settings
	}

	items, err := r.store.Find(ctx, keychain.Query{
		Class:    keychain.ClassInternetPassword,
		Protocol: keychain.ProtocolHTTPProxy,
		Server:   server,
		Port:     port,
	})
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			note(ctx, reasonCredentialNotFound, "server", server, "port", port)
		} else {
			note(ctx, reasonCredentialQuery, "server", server, "port", port, "error", err)
		}
		return settings
	}

	for i, item := range items {
		account, err := item.Account()
		if err != nil {
			note(ctx, reasonCredentialItem, "index", i, "attribute", "account", "error", err)
			continue
		}
		secret, err := item.Secret()
		if err != nil {
			note(ctx, reasonCredentialItem, "index", i, "attribute", "secret", "error", err)
			continue
		}
		slog.Debug("Found proxy credentials", "server", server, "port", port, "user", account)
		settings.User = Some(account)
		settings.Password = Some(string(secret))
		return settings
	}

	note(ctx, reasonCredentialNotFound, "server", server, "port", port, "candidates", len(items))
	return settings
}
