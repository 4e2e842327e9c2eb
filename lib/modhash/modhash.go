// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package modhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is the 32-byte BLAKE3 content digest of a module binary. It
// is the module cache key and the identity of an installed application
// binary in the app store.
type Digest [32]byte

// Sum computes the digest of an in-memory module binary.
func Sum(binary []byte) Digest {
	return Digest(blake3.Sum256(binary))
}

// SumFile computes the digest of the file at path. The file is
// streamed through the hash in chunks (via io.Copy) to keep memory
// usage constant regardless of binary size.
func SumFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// String returns the hex encoding of the digest. This is the canonical
// format used in the app store, snapshots, and log output.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first eight hex characters of the digest, for log
// lines where the full digest is noise.
func (d Digest) Short() string {
	return d.String()[:8]
}

// MarshalText encodes the digest as hex, so JSON output carries the
// canonical string form rather than a byte array.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a hex-encoded digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse parses a hex-encoded digest string into a Digest. Returns an
// error unless the string is a valid 64-character hex encoding.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing module digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("module digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
