//go:build !darwin && !windows

package sysconf

// SystemFilePath is the host-wide proxy settings file read before the
// environment on hosts without a system proxy database.
const SystemFilePath = "/etc/hostproxy/proxies.yaml"

// System returns the platform's network configuration source: SystemFilePath
// when it exists, otherwise the environment.
func System() Source {
	return Chain{FileSource{Path: SystemFilePath}, EnvSource{}}
}
