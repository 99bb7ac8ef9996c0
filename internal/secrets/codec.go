// Package secrets provides symmetric encryption for credentials at rest:
// Gmail refresh tokens and statement PDF passwords. The key is a single
// process-wide Fernet key from configuration.
package secrets

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

// ErrDecrypt is returned when a ciphertext cannot be verified and decrypted,
// whether it was tampered with or encrypted under a different key.
var ErrDecrypt = errors.New("secrets: decrypt failed")

// Codec encrypts and decrypts short secrets with a single Fernet key.
type Codec struct {
	key *fernet.Key
}

// NewCodec parses a base64url Fernet key.
func NewCodec(encodedKey string) (*Codec, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Encrypt returns the Fernet token for plaintext.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a Fernet token. Tokens do not expire; the
// stored credentials stay valid until the user replaces them.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}

// DecryptTTL is Decrypt for short-lived tokens such as OAuth state values.
// Tokens older than ttl fail with ErrDecrypt.
func (c *Codec) DecryptTTL(ciphertext string, ttl time.Duration) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), ttl, []*fernet.Key{c.key})
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}
