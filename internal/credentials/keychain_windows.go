//go:build windows

package credentials

import (
	"fmt"

	"github.com/danieljoos/wincred"
)

// WinKeychain stores secrets in the Windows Credential Manager,
// adapted from mcp-scooter's internal/domain/integration.Keychain.
type WinKeychain struct {
	prefix string
}

// NewPlatformStore returns the Windows-backed Store implementation.
func NewPlatformStore(prefix string) Store {
	return &WinKeychain{prefix: prefix}
}

func (k *WinKeychain) key(id string) string {
	return fmt.Sprintf("%s:%s", k.prefix, id)
}

func (k *WinKeychain) Get(id string) (string, bool, error) {
	cred, err := wincred.GetGenericCredential(k.key(id))
	if err != nil {
		return "", false, nil
	}
	return string(cred.CredentialBlob), true, nil
}

func (k *WinKeychain) Set(id, value string) error {
	cred := wincred.NewGenericCredential(k.key(id))
	cred.CredentialBlob = []byte(value)
	cred.Persist = wincred.PersistLocalMachine
	return cred.Write()
}

func (k *WinKeychain) Delete(id string) error {
	cred, err := wincred.GetGenericCredential(k.key(id))
	if err != nil {
		return nil
	}
	return cred.Delete()
}
