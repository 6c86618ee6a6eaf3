//go:build darwin

package sysconf

// System returns the platform's network configuration source.
func System() Source {
	return ScutilSource{}
}
