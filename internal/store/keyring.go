package store

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "tern"

// KeyringPasswordStore persists IMAP passwords in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringPasswordStore struct{}

// NewKeyringPasswordStore returns a new KeyringPasswordStore.
func NewKeyringPasswordStore() *KeyringPasswordStore {
	return &KeyringPasswordStore{}
}

// SavePassword stores the password under the account name.
func (k *KeyringPasswordStore) SavePassword(account, password string) error {
	if err := keyring.Set(serviceName, account, password); err != nil {
		return fmt.Errorf("failed to save password to keyring: %w", err)
	}
	return nil
}

// LoadPassword retrieves the password for the given account name.
func (k *KeyringPasswordStore) LoadPassword(account string) (string, error) {
	password, err := keyring.Get(serviceName, account)
	if err != nil {
		return "", fmt.Errorf("failed to load password from keyring: %w", err)
	}
	return password, nil
}

// DeletePassword removes the stored password for the account.
func (k *KeyringPasswordStore) DeletePassword(account string) error {
	if err := keyring.Delete(serviceName, account); err != nil {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}
