// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package masking

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/livecode/capsule/lib/secret"
)

// KeySize is the size in bytes of generated masking keys.
const KeySize = 32

// MinKeySize is the shortest masking key NewXOR accepts.
const MinKeySize = 16

// MarkerSize is the size of the zero end marker written after a
// secured capsule.
const MarkerSize = 4

// keystreamSize is the period of the XOR keystream.
const keystreamSize = 64

// secureChunk bounds each read-modify-write pass while securing.
const secureChunk = 4096

// hkdfInfoKeystream is the HKDF "info" parameter for the keystream.
// Changing it invalidates every capsule masked under it.
var hkdfInfoKeystream = []byte("livecode.capsule.mask.v1")

// Target is the byte range a [Securer] rewrites.
type Target interface {
	io.ReaderAt
	io.WriterAt
}

// Securer transforms the amount compressed bytes at start in target,
// then pads them to a multiple of 4 and writes the end marker. It
// returns the offset just past the marker. digest is the MD5 of the
// uncompressed capsule.
type Securer interface {
	Secure(target Target, start, amount int64, digest [16]byte) (int64, error)
}

// Unmasker undoes a [Securer] transform on raw bytes read back from a
// capsule. position is the offset of p[0] from the start of the
// capsule. Unmask must accept bytes past the end of the compressed
// stream and may turn them into anything.
type Unmasker interface {
	Unmask(position int64, p []byte)
}

// Plain secures a capsule without transforming it.
type Plain struct{}

// Secure pads and marks the capsule.
func (Plain) Secure(target Target, start, amount int64, digest [16]byte) (int64, error) {
	return writeMarker(target, start, amount)
}

// Unmask leaves p unchanged.
func (Plain) Unmask(position int64, p []byte) {}

// XOR masks a capsule with a repeating keystream derived from a key.
type XOR struct {
	keystream *secret.Buffer
}

// NewXOR derives the keystream for key. The key is borrowed and not
// closed. The returned XOR must be closed.
func NewXOR(key *secret.Buffer) (*XOR, error) {
	if key.Len() < MinKeySize {
		return nil, fmt.Errorf("masking key is %d bytes, minimum is %d", key.Len(), MinKeySize)
	}
	keystream, err := secret.New(keystreamSize)
	if err != nil {
		return nil, fmt.Errorf("allocating keystream: %w", err)
	}
	reader := hkdf.New(sha256.New, key.Bytes(), nil, hkdfInfoKeystream)
	if _, err := io.ReadFull(reader, keystream.Bytes()); err != nil {
		keystream.Close()
		return nil, fmt.Errorf("deriving keystream: %w", err)
	}
	return &XOR{keystream: keystream}, nil
}

// Secure XORs the compressed bytes in place, then pads and marks the
// capsule. The padding and marker are not masked.
func (x *XOR) Secure(target Target, start, amount int64, digest [16]byte) (int64, error) {
	buffer := make([]byte, secureChunk)
	for done := int64(0); done < amount; {
		chunk := buffer[:min(int64(len(buffer)), amount-done)]
		if _, err := target.ReadAt(chunk, start+done); err != nil {
			return 0, fmt.Errorf("reading capsule at offset %d: %w", start+done, err)
		}
		x.Unmask(done, chunk)
		if _, err := target.WriteAt(chunk, start+done); err != nil {
			return 0, fmt.Errorf("writing masked capsule at offset %d: %w", start+done, err)
		}
		done += int64(len(chunk))
	}
	return writeMarker(target, start, amount)
}

// Unmask XORs p with the keystream at position. The transform is its
// own inverse.
func (x *XOR) Unmask(position int64, p []byte) {
	keystream := x.keystream.Bytes()
	index := int(position % keystreamSize)
	for i := range p {
		p[i] ^= keystream[index]
		index++
		if index == keystreamSize {
			index = 0
		}
	}
}

// Close releases the keystream.
func (x *XOR) Close() error {
	return x.keystream.Close()
}

// writeMarker zero-pads the capsule to a multiple of 4 bytes, measured
// from start, and writes the end marker after it.
func writeMarker(target Target, start, amount int64) (int64, error) {
	aligned := (amount + 3) &^ 3
	var zeros [3 + MarkerSize]byte
	tail := zeros[:aligned-amount+MarkerSize]
	if _, err := target.WriteAt(tail, start+amount); err != nil {
		return 0, fmt.Errorf("writing capsule end marker: %w", err)
	}
	return start + aligned + MarkerSize, nil
}

// GenerateKey returns a new random masking key in a secret buffer.
func GenerateKey() (*secret.Buffer, error) {
	key, err := secret.New(KeySize)
	if err != nil {
		return nil, fmt.Errorf("allocating masking key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("generating masking key: %w", err)
	}
	return key, nil
}

// DecodeKey decodes a hex-encoded masking key, as written by
// [EncodeKey]. The encoded buffer is borrowed and not closed.
func DecodeKey(encoded *secret.Buffer) (*secret.Buffer, error) {
	text := encoded.Bytes()
	if len(text) == 0 || len(text)%2 != 0 {
		return nil, fmt.Errorf("masking key: hex encoding has odd or zero length %d", len(text))
	}
	key, err := secret.New(len(text) / 2)
	if err != nil {
		return nil, fmt.Errorf("allocating masking key: %w", err)
	}
	if _, err := hex.Decode(key.Bytes(), text); err != nil {
		key.Close()
		return nil, fmt.Errorf("masking key: %w", err)
	}
	return key, nil
}

// EncodeKey hex-encodes a masking key into a new secret buffer. The
// key is borrowed and not closed.
func EncodeKey(key *secret.Buffer) (*secret.Buffer, error) {
	encoded, err := secret.New(hex.EncodedLen(key.Len()))
	if err != nil {
		return nil, fmt.Errorf("allocating encoded masking key: %w", err)
	}
	hex.Encode(encoded.Bytes(), key.Bytes())
	return encoded, nil
}
