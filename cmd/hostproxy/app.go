package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/yolkispalkis/hostproxy/pkg/config"
	"github.com/yolkispalkis/hostproxy/pkg/ipc"
	"github.com/yolkispalkis/hostproxy/pkg/keychain"
	"github.com/yolkispalkis/hostproxy/pkg/pac"
	"github.com/yolkispalkis/hostproxy/pkg/proxy"
	"github.com/yolkispalkis/hostproxy/pkg/servicecore"
	"github.com/yolkispalkis/hostproxy/pkg/sysconf"
)

// components is the resolver wired from configuration.
type components struct {
	resolver *proxy.Resolver
	fetcher  *pac.Fetcher
	executor *pac.Executor
}

func newComponents(cfg *config.Config) (*components, error) {
	source, err := newSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	engine, err := pac.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create PAC engine: %w", err)
	}
	fetcher := pac.NewFetcher(
		pac.WithFetchTimeout(cfg.PAC.FetchTimeoutDuration()),
		pac.WithScriptTTL(cfg.PAC.ScriptTTLDuration()),
		pac.WithCharset(cfg.PAC.Charset),
	)
	executor := pac.NewExecutor(fetcher, engine)

	return &components{
		resolver: proxy.NewResolver(source, store, executor,
			proxy.WithTimeout(cfg.PAC.ExecutionTimeoutDuration()),
			proxy.WithPollInterval(cfg.PAC.PollInterval()),
		),
		fetcher:  fetcher,
		executor: executor,
	}, nil
}

func (c *components) Close() {
	c.executor.Close()
}

// run resolves each URL in process and prints one line per URL.
func run(ctx context.Context, cfg *config.Config, urls []string, out io.Writer) error {
	c, err := newComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	slog.Debug("Resolving proxies", "count", len(urls), "source", cfg.Source.Type, "credentials", cfg.Credentials.Store)
	return resolveAll(ctx, urls, out, func(ctx context.Context, u string) (proxy.Settings, error) {
		return c.resolver.Resolve(ctx, u), nil
	})
}

// runRemote resolves each URL through a running service.
func runRemote(ctx context.Context, cfg *config.Config, urls []string, out io.Writer) error {
	client, err := ipc.Dial(ctx, cfg.Service.SocketPath, remoteTimeout(cfg))
	if err != nil {
		return err
	}
	defer client.Close()

	return resolveAll(ctx, urls, out, client.Resolve)
}

// remoteTimeout leaves the service room to time out PAC evaluation itself.
func remoteTimeout(cfg *config.Config) time.Duration {
	return cfg.PAC.ExecutionTimeoutDuration() + 5*time.Second
}

func resolveAll(ctx context.Context, urls []string, out io.Writer, resolve func(context.Context, string) (proxy.Settings, error)) error {
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		settings, err := resolve(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", u, err)
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", u, settings); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

// serve runs the resolve service until ctx ends.
func serve(ctx context.Context, cfg *config.Config) error {
	c, err := newComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	sm, err := servicecore.NewStateManager(c.resolver, c.fetcher, servicecore.Info{
		Version:         version,
		Source:          cfg.Source.Type,
		CredentialStore: cfg.Credentials.Store,
	})
	if err != nil {
		return err
	}
	listener, err := servicecore.NewIpcListener(cfg.Service.SocketPath, servicecore.NewIpcHandler(sm), sm)
	if err != nil {
		return err
	}

	listener.Run(ctx)
	servicecore.NewBackgroundTasks(sm).RunStatsLogger(ctx, time.Duration(cfg.Service.StatsInterval)*time.Second)
	slog.Info("hostproxy service running", "socket", cfg.Service.SocketPath, "version", version)

	<-ctx.Done()
	slog.Info("Shutting down hostproxy service")
	sm.Wait()
	return nil
}

func newSource(cfg config.SourceConfig) (proxy.NetworkConfigSource, error) {
	switch cfg.Type {
	case config.SourceSystem:
		return sysconf.System(), nil
	case config.SourceEnv:
		return sysconf.EnvSource{}, nil
	case config.SourceFile:
		return sysconf.FileSource{Path: cfg.Path}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

func newStore(cfg config.CredentialsConfig) (proxy.CredentialStore, error) {
	switch cfg.Store {
	case config.StoreSystem:
		return keychain.System(), nil
	case config.StoreFile:
		return keychain.FileStore{Path: cfg.Path}, nil
	case config.StoreNone:
		return keychain.Empty{}, nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Store)
	}
}
