// Package vault seals and unseals connector configuration and
// credentials at rest with AES-256-GCM. Key material is loaded once at
// startup and is immutable afterwards; rotation introduces a new key
// generation and re-seals existing ciphertext under it.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

// sealedPrefix tags the ciphertext format. Layout:
//
//	pl1:<key id>:<base64(nonce || ciphertext || tag)>
//
// The key id selects the generation used, so old and new keys can
// coexist during rotation.
const sealedPrefix = "pl1"

var errUnknownKey = errors.New("unknown key id")

// Vault holds one AEAD per key generation plus the id of the active key
// used for new seals.
type Vault struct {
	keys     map[string]cipher.AEAD
	activeID string
}

// New builds a vault from key generations. Each key is either a
// base64-encoded 32-byte value or an arbitrary passphrase hashed to 32
// bytes with SHA-256 (matching `openssl rand -base64 32` output for the
// former). activeID must name one of the provided generations.
func New(keys map[string]string, activeID string) (*Vault, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("vault requires at least one key generation")
	}
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("active key id %q is not among the configured generations", activeID)
	}

	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, raw := range keys {
		if raw == "" {
			return nil, fmt.Errorf("key generation %q is empty", id)
		}
		key := deriveKey(raw)

		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key generation %q: %w", id, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key generation %q: %w", id, err)
		}
		aeads[id] = gcm
	}

	return &Vault{keys: aeads, activeID: activeID}, nil
}

// deriveKey accepts base64-encoded 32-byte keys directly and hashes
// anything else to 32 bytes.
func deriveKey(raw string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(raw))
	return hash[:]
}

// Seal encrypts plaintext under the active key generation.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	gcm := v.keys[v.activeID]

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce generation", apperrors.ErrVault)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return fmt.Sprintf("%s:%s:%s", sealedPrefix, v.activeID, base64.StdEncoding.EncodeToString(sealed)), nil
}

// Unseal decrypts a sealed blob. It fails closed: every parse,
// key-lookup, or authentication failure collapses into ErrVault with no
// partial plaintext and no detail about which step failed.
func (v *Vault) Unseal(sealed string) ([]byte, error) {
	gcm, payload, err := v.parse(sealed)
	if err != nil {
		return nil, apperrors.ErrVault
	}

	nonceSize := gcm.NonceSize()
	if len(payload) < nonceSize+gcm.Overhead() {
		return nil, apperrors.ErrVault
	}

	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.ErrVault
	}
	return plaintext, nil
}

// SealedWithActiveKey reports whether the blob was sealed under the
// current active generation. Used by the rotation pass to skip rows that
// are already up to date.
func (v *Vault) SealedWithActiveKey(sealed string) bool {
	parts := strings.SplitN(sealed, ":", 3)
	return len(parts) == 3 && parts[0] == sealedPrefix && parts[1] == v.activeID
}

// Reseal re-encrypts a blob under the active generation. The
// intermediate plaintext is wiped before returning.
func (v *Vault) Reseal(sealed string) (string, error) {
	if v.SealedWithActiveKey(sealed) {
		return sealed, nil
	}
	plaintext, err := v.Unseal(sealed)
	if err != nil {
		return "", err
	}
	defer Wipe(plaintext)
	return v.Seal(plaintext)
}

func (v *Vault) parse(sealed string) (cipher.AEAD, []byte, error) {
	parts := strings.SplitN(sealed, ":", 3)
	if len(parts) != 3 || parts[0] != sealedPrefix {
		return nil, nil, fmt.Errorf("malformed sealed blob")
	}
	gcm, ok := v.keys[parts[1]]
	if !ok {
		return nil, nil, errUnknownKey
	}
	payload, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, err
	}
	return gcm, payload, nil
}

// Wipe overwrites a plaintext buffer. Callers unsealing secrets must
// wipe them as soon as the dispatch that needed them completes.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
