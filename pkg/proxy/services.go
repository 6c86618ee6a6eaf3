package proxy

import (
	"context"
	"net/url"

	"github.com/yolkispalkis/hostproxy/pkg/keychain"
	"github.com/yolkispalkis/hostproxy/pkg/sysconf"
)

// NetworkConfigSource yields snapshots of host network configuration.
type NetworkConfigSource = sysconf.Source

// CredentialStore finds stored proxy passwords.
type CredentialStore = keychain.Store

// PacCallback receives the outcome of one PAC evaluation: either the ordered
// candidate list or an error.
type PacCallback func(candidates []Descriptor, err error)

// PacExecutor runs a PAC script for a target URL asynchronously and reports
// through callback. The returned cancel function tears the evaluation down;
// callback must not be invoked after cancel returns.
type PacExecutor interface {
	Execute(ctx context.Context, scriptURL, targetURL *url.URL, callback PacCallback) (cancel func())
}

// PacExecutorFunc adapts a function to PacExecutor.
type PacExecutorFunc func(ctx context.Context, scriptURL, targetURL *url.URL, callback PacCallback) func()

func (f PacExecutorFunc) Execute(ctx context.Context, scriptURL, targetURL *url.URL, callback PacCallback) func() {
	return f(ctx, scriptURL, targetURL, callback)
}
