// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/livecode/capsule/lib/secret"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("ParsePrivateKey: %v", err)
	}

	other := generate(t)
	if other.PublicKey == keypair.PublicKey {
		t.Error("two generated keypairs share a public key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	builder := generate(t)
	escrow := generate(t)
	maskingKey := bytes.Repeat([]byte{0x5a, 0xa5}, 16)

	ciphertext, err := Encrypt(maskingKey, []string{builder.PublicKey, escrow.PublicKey + "\n"})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		t.Errorf("Encrypt() returned invalid base64: %v", err)
	}

	for name, keypair := range map[string]*Keypair{"builder": builder, "escrow": escrow} {
		decrypted, err := Decrypt(ciphertext+"\n", keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt(%s) error: %v", name, err)
		}
		if !decrypted.Equal(maskingKey) {
			t.Errorf("Decrypt(%s) did not recover the masking key", name)
		}
		decrypted.Close()
	}
}

func TestDecrypt_Failures(t *testing.T) {
	keypair := generate(t)
	wrong := generate(t)
	ciphertext, err := Encrypt([]byte("key material"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	empty, err := Encrypt(nil, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt(nil) error: %v", err)
	}
	garbage, err := secret.NewFromBytes([]byte("not-an-age-identity"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer garbage.Close()

	tests := []struct {
		name       string
		ciphertext string
		key        *secret.Buffer
	}{
		{"wrong key", ciphertext, wrong.PrivateKey},
		{"invalid private key", ciphertext, garbage},
		{"invalid base64", "%%%", keypair.PrivateKey},
		{"corrupted ciphertext", base64.StdEncoding.EncodeToString([]byte("age-encryption.org/v1\nbroken")), keypair.PrivateKey},
		{"empty plaintext", empty, keypair.PrivateKey},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if buffer, err := Decrypt(test.ciphertext, test.key); err == nil {
				buffer.Close()
				t.Error("Decrypt() succeeded, want error")
			}
		})
	}
}

func TestEncrypt_InvalidRecipients(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Error("Encrypt() with no recipients succeeded")
	}
	if _, err := Encrypt([]byte("x"), []string{"age1notakey"}); err == nil {
		t.Error("Encrypt() with an invalid recipient succeeded")
	}
	if err := ParsePublicKey("ssh-ed25519 AAAA"); err == nil {
		t.Error("ParsePublicKey accepted a non-age key")
	}
}
