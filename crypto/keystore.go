package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	errNilKey        = errors.New("crypto: nil private key")
	errEmptyPath     = errors.New("crypto: empty keystore path")
	errEmptyKeyFile  = errors.New("crypto: key file is empty")
	errNoKeystoreOut = errors.New("crypto: failed to create keystore file")
)

// SaveToKeystore writes the provided private key to an Ethereum v3 keystore
// file at path. Missing parent directories are created with 0700.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errNilKey
	}
	if path == "" {
		return errEmptyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, keystore.LightScryptN, keystore.LightScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errNoKeystoreOut
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyPath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// IsKeystoreFile reports whether the file at path looks like a v3 keystore
// (JSON with a crypto section) rather than raw key material.
func IsKeystoreFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false, nil
	}
	var envelope struct {
		Crypto json.RawMessage `json:"crypto"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return false, nil
	}
	return len(envelope.Crypto) > 0, nil
}

// LoadHexKeyFile reads an unencrypted private key stored either as 32 raw
// bytes or as hex text (optionally 0x-prefixed).
func LoadHexKeyFile(path string) (*PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyKeyFile
	}
	if len(data) == 32 {
		return PrivateKeyFromBytes(data)
	}
	text := string(bytes.TrimSpace(data))
	if len(text) >= 2 && (text[:2] == "0x" || text[:2] == "0X") {
		text = text[2:]
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("crypto: key file %s is neither raw nor hex encoded: %w", path, err)
	}
	return PrivateKeyFromBytes(raw)
}
