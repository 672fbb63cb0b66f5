package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"ascii", "hello world"},
		{"unicode", "안녕하세요 ✉️"},
		{"long", strings.Repeat("body text ", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !IsEncrypted(ct) {
				t.Errorf("IsEncrypted(%q) = false, want true", ct)
			}

			got, err := enc.Decrypt(ct)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptor_FreshSaltPerValue(t *testing.T) {
	enc, _ := NewEncryptor("raw-master-key")

	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}

	raw, _ := base64.StdEncoding.DecodeString(a)
	if want := SaltLength + IVLength + len("same") + TagLength; len(raw) != want {
		t.Errorf("ciphertext length = %d, want %d", len(raw), want)
	}
}

func TestEncryptor_DecryptErrors(t *testing.T) {
	enc, _ := NewEncryptor("key-one")
	other, _ := NewEncryptor("key-two")

	ct, _ := enc.Encrypt("secret")

	tests := []struct {
		name string
		in   string
		dec  *Encryptor
	}{
		{"not base64", "%%%", enc},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), enc},
		{"wrong key", ct, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.dec.Decrypt(tt.in); err == nil {
				t.Error("Decrypt() error = nil, want error")
			}
		})
	}
}

func TestNewEncryptor_EmptyKey(t *testing.T) {
	if _, err := NewEncryptor(""); err != ErrEmptyMasterKey {
		t.Errorf("NewEncryptor(\"\") error = %v, want %v", err, ErrEmptyMasterKey)
	}
}

func TestHash(t *testing.T) {
	got := Hash("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Hash(abc) = %s, want %s", got, want)
	}
}
