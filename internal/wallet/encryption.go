package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadPassword is returned when a keystore fails to decrypt.
var ErrBadPassword = errors.New("wrong password or corrupted keystore")

const (
	saltSize = 32
	// Sealed format: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
	sealHeaderSize = saltSize + 4 + 4 + 1
)

// KDFParams holds the Argon2id cost parameters baked into each sealed blob.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the Argon2id costs used for new keystores.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func stretchPassword(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// seal encrypts plaintext under password with Argon2id + XChaCha20-Poly1305.
// The KDF parameters are recorded in the output so they can be raised later
// without breaking old keystores.
func seal(plaintext, password []byte, p KDFParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := stretchPassword(password, salt, p)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeaderSize+len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, p.Memory)
	out = binary.LittleEndian.AppendUint32(out, p.Iterations)
	out = append(out, p.Parallelism)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// open decrypts a blob produced by seal.
func open(sealed, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if len(sealed) < sealHeaderSize+nonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}

	salt := sealed[:saltSize]
	p := KDFParams{
		Memory:      binary.LittleEndian.Uint32(sealed[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[saltSize+4:]),
		Parallelism: sealed[saltSize+8],
	}
	nonce := sealed[sealHeaderSize : sealHeaderSize+nonceSize]
	ciphertext := sealed[sealHeaderSize+nonceSize:]

	key := stretchPassword(password, salt, p)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassword
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
