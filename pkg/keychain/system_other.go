//go:build !darwin

package keychain

// System returns the platform credential store. Only macOS has one wired
// in; elsewhere lookups always come back empty.
func System() Store {
	return Empty{}
}
