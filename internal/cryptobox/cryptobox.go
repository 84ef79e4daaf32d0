// Package cryptobox implements the per-client encryption handshake and AEAD
// framing: an ephemeral X25519 key exchange, HKDF-SHA256 key derivation,
// and ChaCha20-Poly1305 sealing of every packet payload after the
// handshake completes.
package cryptobox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/zfogg/ascii-chat/internal/errs"
)

const (
	keySize   = 32
	nonceSize = chacha20poly1305.NonceSizeX // 24-byte extended nonce, safe for random generation
)

// KeyPair is an ephemeral X25519 key pair.
type KeyPair struct {
	Private [keySize]byte
	Public  [keySize]byte
}

// GenerateKeyPair creates a fresh ephemeral X25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("cryptobox: generate private key: %w", errs.ErrCrypto)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptobox: derive public key: %w", errs.ErrCrypto)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Box seals and opens packet payloads with a session key derived from one
// ECDH exchange.
type Box struct {
	aead cipher.AEAD
}

// DeriveSessionBox runs X25519(localPriv, remotePub) and HKDF-SHA256 over the
// shared secret to produce a ChaCha20-Poly1305 AEAD. The salt is both public
// keys in sorted (not local/remote) order, so initiator and responder derive
// the identical session key from the identical salt regardless of which side
// is "local" — binding the key to the handshake's two identities without
// depending on role.
func DeriveSessionBox(localPriv, remotePub [keySize]byte, localPub [keySize]byte, info string) (*Box, error) {
	shared, err := curve25519.X25519(localPriv[:], remotePub[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: ecdh: %w", errs.ErrCrypto)
	}

	salt := sortedKeySalt(localPub, remotePub)

	kdf := hkdf.New(sha256.New, shared, salt, []byte(info))
	sessionKey := make([]byte, keySize)
	if _, err := io.ReadFull(kdf, sessionKey); err != nil {
		return nil, fmt.Errorf("cryptobox: hkdf expand: %w", errs.ErrCrypto)
	}

	aead, err := chacha20poly1305.NewX(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: build aead: %w", errs.ErrCrypto)
	}
	return &Box{aead: aead}, nil
}

// sortedKeySalt orders two public keys lexicographically so both parties to
// a handshake compute the same salt bytes regardless of which one is local.
func sortedKeySalt(a, b [keySize]byte) []byte {
	salt := make([]byte, 0, 2*keySize)
	if bytesLess(a[:], b[:]) {
		salt = append(salt, a[:]...)
		salt = append(salt, b[:]...)
	} else {
		salt = append(salt, b[:]...)
		salt = append(salt, a[:]...)
	}
	return salt
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Seal encrypts plaintext, prefixing the ciphertext with a fresh random
// nonce. additionalData (e.g. the packet header bytes) is authenticated but
// not encrypted.
func (b *Box) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptobox: generate nonce: %w", errs.ErrCrypto)
	}
	sealed := b.aead.Seal(nil, nonce, plaintext, additionalData)
	return append(nonce, sealed...), nil
}

// Open reverses Seal, verifying additionalData.
func (b *Box) Open(ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("cryptobox: ciphertext shorter than nonce: %w", errs.ErrCrypto)
	}
	nonce := ciphertext[:nonceSize]
	sealed := ciphertext[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: authentication failed: %w", errs.ErrCrypto)
	}
	return plaintext, nil
}
