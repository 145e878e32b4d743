package security

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands the auth secret into an independent key for one purpose,
// so cookies signed for different uses never share key material.
func DeriveKey(secret string, purpose string, size int) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("starterkit:"+purpose))
	key := make([]byte, size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}
