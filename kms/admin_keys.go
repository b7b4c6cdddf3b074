package kms

import (
	"encoding/json"
	"fmt"
	"io"
)

// adminKeysFile is the on-disk format for administrator public keys.
type adminKeysFile struct {
	AdminKeys []string `json:"admin_keys"`
}

// LoadAdminKeys reads administrator public keys (PEM) from a JSON file
// of the form {"admin_keys": ["-----BEGIN PUBLIC KEY-----...", ...]}.
func LoadAdminKeys(r io.Reader) ([][]byte, error) {
	var file adminKeysFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse admin keys file: %w", err)
	}
	if len(file.AdminKeys) == 0 {
		return nil, fmt.Errorf("admin keys file contains no keys")
	}

	keys := make([][]byte, len(file.AdminKeys))
	for i, pemStr := range file.AdminKeys {
		if _, err := parseAdminKey([]byte(pemStr)); err != nil {
			return nil, fmt.Errorf("admin key %d: %w", i, err)
		}
		keys[i] = []byte(pemStr)
	}
	return keys, nil
}
