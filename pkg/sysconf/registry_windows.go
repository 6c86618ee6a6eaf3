//go:build windows

package sysconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows/registry"
)

const internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

// RegistrySource reads the current user's WinInet proxy settings.
type RegistrySource struct{}

func (RegistrySource) Copy(context.Context) (Snapshot, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry key: %w", err)
	}
	defer key.Close()

	var settings WinInetSettings
	settings.ProxyEnable = readDWord(key, "ProxyEnable")
	settings.AutoDetect = readDWord(key, "AutoDetect")
	settings.ProxyServer = readString(key, "ProxyServer")
	settings.ProxyOverride = readString(key, "ProxyOverride")
	settings.AutoConfigURL = readString(key, "AutoConfigURL")

	slog.Debug("Read proxy configuration from registry",
		"proxy_enable", settings.ProxyEnable,
		"proxy_server", settings.ProxyServer,
		"auto_config_url", settings.AutoConfigURL)
	return settings.Snapshot(), nil
}

func readDWord(key registry.Key, name string) uint64 {
	v, _, err := key.GetIntegerValue(name)
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		slog.Debug("Failed to read registry value", "name", name, "error", err)
	}
	return v
}

func readString(key registry.Key, name string) string {
	v, _, err := key.GetStringValue(name)
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		slog.Debug("Failed to read registry value", "name", name, "error", err)
	}
	return v
}

// System returns the platform's network configuration source.
func System() Source {
	return RegistrySource{}
}
