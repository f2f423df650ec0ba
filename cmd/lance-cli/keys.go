package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"lancechain/crypto"
)

const keyPassEnv = "LANCE_KEY_PASS"

// loadKey opens a v3 keystore, asking pass for its passphrase, or a raw/hex
// key file.
func loadKey(path string, pass func() (string, error)) (*crypto.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	isKeystore, err := crypto.IsKeystoreFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file %s not found; run lance-cli generate-key first", path)
		}
		return nil, err
	}
	if !isKeystore {
		return crypto.LoadHexKeyFile(path)
	}
	passphrase, err := pass()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return key, nil
}

func writeNewKey(path string, keystore bool, pass func() (string, error)) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if keystore {
		passphrase, err := pass()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
			return nil, err
		}
		return key, nil
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())+"\n"), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
