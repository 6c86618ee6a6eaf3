//go:build darwin

package keychain

// System returns the login keychain.
func System() Store {
	return SecurityStore{}
}
