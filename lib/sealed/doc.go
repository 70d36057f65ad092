// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed keeps capsule masking keys encrypted at rest with
// age, so that a build machine holds only ciphertext and an x25519
// identity rather than the masking key itself.
//
// Ciphertext is base64 text, which is how sealed key files are stored
// and what [Encrypt] returns. [Decrypt] returns the plaintext in a
// [secret.Buffer]. Identities are also held in secret buffers.
//
//   - [GenerateKeypair] creates an identity and its public recipient
//   - [Encrypt] seals a masking key to one or more recipients
//   - [Decrypt] opens it with an identity
//   - [ParsePublicKey] and [ParsePrivateKey] validate key text
package sealed
