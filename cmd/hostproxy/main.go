package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/yolkispalkis/hostproxy/pkg/config"
	"github.com/yolkispalkis/hostproxy/pkg/logging"
	"github.com/yolkispalkis/hostproxy/pkg/signals"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, string(debug.Stack()))
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "", "Path to config file (defaults and HOSTPROXY_* environment when empty)")
	logLevel := flag.String("log-level", "", "Override log_level from the config")
	saveConfig := flag.String("save-config", "", "Write the effective configuration to this path and exit")
	serveMode := flag.Bool("serve", false, "Run the resolve service on service.socket_path")
	remote := flag.Bool("remote", false, "Resolve through a running service instead of in process")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [url ...]\n\nURLs are read from stdin, one per line, when none are given.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("hostproxy version: %s, commit: %s, built: %s\n", version, commit, date)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	closeLog := logging.Setup(cfg.LogLevel, cfg.LogPath, os.Stderr)
	defer closeLog()

	if *saveConfig != "" {
		if err := config.SaveConfig(cfg, *saveConfig); err != nil {
			slog.Error("Failed to save configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var shutdownOnce sync.Once
	signals.SetupHandler(ctx, cancel, &shutdownOnce)

	if *serveMode {
		if err := serve(ctx, cfg); err != nil {
			slog.Error("hostproxy service failed", "error", err)
			os.Exit(1)
		}
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		urls, err = readURLs(os.Stdin)
		if err != nil {
			slog.Error("Failed to read URLs from stdin", "error", err)
			os.Exit(1)
		}
	}

	resolve := run
	if *remote {
		resolve = runRemote
	}
	if err := resolve(ctx, cfg, urls, os.Stdout); err != nil {
		slog.Error("hostproxy failed", "error", err)
		os.Exit(1)
	}
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
