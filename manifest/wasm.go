// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"errors"
	"fmt"
)

// SectionName is the WASM custom section carrying the embedded
// manifest JSON.
const SectionName = ".akira.manifest"

// ErrNoManifest is returned by FromBinary when the binary carries no
// manifest section.
var ErrNoManifest = errors.New("manifest: no manifest section")

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const sectionCustom = 0

// FromBinary walks a WASM binary's sections looking for the
// ".akira.manifest" custom section and parses its JSON payload.
// Malformed custom sections other than the manifest are skipped, not
// errors; the manifest section itself must parse.
func FromBinary(binary []byte) (*Manifest, error) {
	if len(binary) < 8 || !bytes.Equal(binary[:4], wasmMagic) {
		return nil, fmt.Errorf("manifest: not a WASM binary")
	}

	// Skip magic and version.
	pos := 8
	for pos < len(binary) {
		sectionID := binary[pos]
		pos++

		sectionSize, n := readUvarint(binary[pos:])
		if n == 0 {
			return nil, fmt.Errorf("manifest: truncated section size at offset %d", pos)
		}
		pos += n
		if pos+int(sectionSize) > len(binary) {
			return nil, fmt.Errorf("manifest: section extends past end of binary")
		}

		if sectionID == sectionCustom {
			if payload, ok := manifestPayload(binary[pos : pos+int(sectionSize)]); ok {
				return Parse(payload)
			}
		}
		pos += int(sectionSize)
	}
	return nil, ErrNoManifest
}

// manifestPayload checks whether a custom section's content names the
// manifest section and, if so, returns the JSON payload after the
// name.
func manifestPayload(section []byte) ([]byte, bool) {
	nameLen, n := readUvarint(section)
	if n == 0 || n+int(nameLen) > len(section) {
		return nil, false
	}
	name := section[n : n+int(nameLen)]
	if string(name) != SectionName {
		return nil, false
	}
	return section[n+int(nameLen):], true
}

// readUvarint decodes a LEB128 u32 and returns the value and the
// number of bytes consumed, zero on truncation or overlong encoding.
func readUvarint(data []byte) (uint32, int) {
	var value uint32
	var shift uint
	for i := 0; i < len(data) && i < 5; i++ {
		b := data[i]
		// The fifth byte carries bits 28..31; anything above that,
		// including a continuation bit, does not fit in 32 bits.
		if i == 4 && b&0xf0 != 0 {
			return 0, 0
		}
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1
		}
		shift += 7
	}
	return 0, 0
}
