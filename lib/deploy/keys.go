// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"fmt"
	"os"

	"github.com/livecode/capsule/lib/masking"
	"github.com/livecode/capsule/lib/sealed"
	"github.com/livecode/capsule/lib/secret"
)

// Mask secures capsules while building and unmasks them while
// loading. Close releases key material.
type Mask interface {
	masking.Securer
	masking.Unmasker
	Close() error
}

type plainMask struct {
	masking.Plain
}

func (plainMask) Close() error { return nil }

// LoadMask returns the mask selected by m: the XOR mask keyed from a
// hex key file, the XOR mask keyed from an age-sealed key file opened
// with the identity file, or the plain mask when no key is configured.
func LoadMask(m MaskingParameters) (Mask, error) {
	var key *secret.Buffer
	var err error
	switch {
	case m.KeyFile != "":
		key, err = readKeyFile(m.KeyFile)
	case m.SealedKeyFile != "":
		key, err = openSealedKey(m.SealedKeyFile, m.IdentityFile)
	default:
		return plainMask{}, nil
	}
	if err != nil {
		return nil, fail(KindNoMaskingKey, err)
	}
	defer key.Close()

	mask, err := masking.NewXOR(key)
	if err != nil {
		return nil, fail(KindNoMaskingKey, err)
	}
	return mask, nil
}

func readKeyFile(path string) (*secret.Buffer, error) {
	encoded, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading masking key: %w", err)
	}
	defer encoded.Close()
	return masking.DecodeKey(encoded)
}

func openSealedKey(sealedPath, identityPath string) (*secret.Buffer, error) {
	if identityPath == "" {
		return nil, fmt.Errorf("sealed masking key %s needs an identity file", sealedPath)
	}
	ciphertext, err := os.ReadFile(sealedPath)
	if err != nil {
		return nil, fmt.Errorf("reading sealed masking key: %w", err)
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	defer identity.Close()

	encoded, err := sealed.Decrypt(string(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("opening sealed masking key %s: %w", sealedPath, err)
	}
	defer encoded.Close()
	return masking.DecodeKey(encoded)
}

// SealKey reads the hex masking key at keyPath and seals it to every
// recipient. The result is the text of a sealed key file.
func SealKey(keyPath string, recipients []string) (string, error) {
	encoded, err := secret.ReadFromPath(keyPath)
	if err != nil {
		return "", fmt.Errorf("reading masking key: %w", err)
	}
	defer encoded.Close()

	// Decode once so a malformed key is rejected before sealing.
	key, err := masking.DecodeKey(encoded)
	if err != nil {
		return "", err
	}
	key.Close()

	return sealed.Encrypt(encoded.Bytes(), recipients)
}
