package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams keeps Argon2id cheap enough for tests.
func fastParams() KDFParams {
	return KDFParams{Memory: 8, Iterations: 1, Parallelism: 1}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox")
	password := []byte("hunter2")

	sealed, err := seal(plaintext, password, fastParams())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	opened, err := open(sealed, password)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Error("opened plaintext does not match original")
	}
}

func TestOpen_WrongPassword(t *testing.T) {
	sealed, _ := seal([]byte("secret"), []byte("correct"), fastParams())

	_, err := open(sealed, []byte("wrong"))
	if !errors.Is(err, ErrBadPassword) {
		t.Errorf("open with wrong password: err = %v, want ErrBadPassword", err)
	}
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	password := []byte("pw")
	sealed, _ := seal([]byte("secret"), password, fastParams())

	sealed[len(sealed)-1] ^= 0x01

	if _, err := open(sealed, password); !errors.Is(err, ErrBadPassword) {
		t.Errorf("open of tampered blob: err = %v, want ErrBadPassword", err)
	}
}

func TestOpen_TooShort(t *testing.T) {
	if _, err := open([]byte("short"), []byte("pw")); err == nil {
		t.Error("open should reject truncated input")
	}
}

func TestSeal_FreshSaltAndNonce(t *testing.T) {
	password := []byte("pw")
	a, _ := seal([]byte("same data"), password, fastParams())
	b, _ := seal([]byte("same data"), password, fastParams())
	if bytes.Equal(a, b) {
		t.Error("two seals of the same data should differ")
	}
}

func TestOpen_ParamsFromBlob(t *testing.T) {
	// The blob carries its own KDF costs, so blobs sealed with different
	// parameters all open with just the password.
	password := []byte("pw")
	sealed, err := seal([]byte("data"), password, KDFParams{Memory: 16, Iterations: 2, Parallelism: 2})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := open(sealed, password)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != "data" {
		t.Errorf("opened = %q, want %q", opened, "data")
	}
}
