// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot provides hash-verified snapshot persistence: a fixed
// binary codec, an integrity-checking store with backup rotation and
// recovery, and an incremental base+delta chain with compaction.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// On-disk layout constants. These are part of the file format and must
// not change within a format version.
const (
	// HeaderSize is the fixed size of the snapshot header in bytes.
	HeaderSize = 64

	// HashSize is the size of the raw SHA-256 digests used for the parent
	// hash field and the trailer.
	HashSize = sha256.Size

	// MinFileSize is the smallest possible valid snapshot file:
	// header plus trailer with an empty payload.
	MinFileSize = HeaderSize + HashSize

	// FormatVersion is the current header format version.
	FormatVersion uint16 = 1
)

// Header byte offsets.
const (
	offMagic     = 0  // 4 bytes
	offVersion   = 4  // uint16 LE
	offFlags     = 6  // uint16 LE
	offTimestamp = 8  // int64 LE, ms since epoch
	offParent    = 16 // 32 raw bytes, all-zero = none
	offPayload   = 48 // uint32 LE
	offReserved  = 52 // 12 bytes, zero-filled
)

// magic is the 4-byte snapshot file signature.
var magic = [4]byte{'S', 'N', 'P', 'T'}

// Flags is the header flag bitfield.
type Flags uint16

const (
	// FlagCompressed marks a gzip-compressed payload.
	FlagCompressed Flags = 1 << 0

	// FlagEncrypted is reserved; no code path sets or honors it.
	FlagEncrypted Flags = 1 << 1

	// FlagIncremental marks a delta snapshot in an incremental chain.
	FlagIncremental Flags = 1 << 2
)

// Header is the decoded form of the fixed 64-byte snapshot header.
//
// # Thread Safety
//
// Immutable after decoding.
type Header struct {
	// Version is the format version from the file.
	Version uint16 `json:"version"`

	// Compressed indicates a gzip-compressed payload.
	Compressed bool `json:"compressed"`

	// Encrypted echoes the reserved encryption bit. Never set by this
	// package.
	Encrypted bool `json:"encrypted"`

	// Incremental indicates a chain delta.
	Incremental bool `json:"incremental"`

	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// ParentHash is the raw parent digest, nil when the file has none.
	ParentHash []byte `json:"-"`

	// PayloadLength is the payload size in bytes.
	PayloadLength uint32 `json:"payload_length"`
}

// ParentHashHex returns the parent hash as lowercase hex, or "" when the
// snapshot has no parent.
func (h *Header) ParentHashHex() string {
	if h.ParentHash == nil {
		return ""
	}
	return hex.EncodeToString(h.ParentHash)
}

// Flags reassembles the flag bitfield from the decoded booleans.
func (h *Header) Flags() Flags {
	var f Flags
	if h.Compressed {
		f |= FlagCompressed
	}
	if h.Encrypted {
		f |= FlagEncrypted
	}
	if h.Incremental {
		f |= FlagIncremental
	}
	return f
}

// EncodeHeader builds a 64-byte header.
//
// # Description
//
// The payload-length field is zero-filled; callers set it with
// SetPayloadLength once the payload size is known. The reserved region
// is always zero.
//
// # Inputs
//
//   - flags: Flag bits to record.
//   - timestampMs: Creation time, Unix milliseconds.
//   - parentHash: Raw parent digest. Nil or empty means no parent;
//     otherwise must be exactly HashSize bytes.
//
// # Outputs
//
//   - []byte: A HeaderSize-byte header.
//   - error: ErrBadParentHash on a malformed parent hash.
func EncodeHeader(flags Flags, timestampMs int64, parentHash []byte) ([]byte, error) {
	if len(parentHash) != 0 && len(parentHash) != HashSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadParentHash, len(parentHash))
	}

	h := make([]byte, HeaderSize)
	copy(h[offMagic:], magic[:])
	binary.LittleEndian.PutUint16(h[offVersion:], FormatVersion)
	binary.LittleEndian.PutUint16(h[offFlags:], uint16(flags))
	binary.LittleEndian.PutUint64(h[offTimestamp:], uint64(timestampMs))
	copy(h[offParent:], parentHash)
	// Payload length and reserved region stay zero.
	return h, nil
}

// SetPayloadLength writes the payload size into an encoded header.
func SetPayloadLength(header []byte, n uint32) {
	binary.LittleEndian.PutUint32(header[offPayload:], n)
}

// DecodeHeader parses the first HeaderSize bytes of a snapshot.
//
// # Inputs
//
//   - b: At least HeaderSize bytes.
//
// # Outputs
//
//   - *Header: The decoded header.
//   - error: ErrHeaderTooShort or ErrInvalidMagic.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrHeaderTooShort, len(b))
	}
	if !bytes.Equal(b[offMagic:offMagic+4], magic[:]) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, b[offMagic:offMagic+4])
	}

	flags := Flags(binary.LittleEndian.Uint16(b[offFlags:]))
	h := &Header{
		Version:       binary.LittleEndian.Uint16(b[offVersion:]),
		Compressed:    flags&FlagCompressed != 0,
		Encrypted:     flags&FlagEncrypted != 0,
		Incremental:   flags&FlagIncremental != 0,
		Timestamp:     int64(binary.LittleEndian.Uint64(b[offTimestamp:])),
		PayloadLength: binary.LittleEndian.Uint32(b[offPayload:]),
	}

	parent := b[offParent : offParent+HashSize]
	if !isZero(parent) {
		h.ParentHash = append([]byte(nil), parent...)
	}
	return h, nil
}

// ComputeHash returns the SHA-256 digest of header ++ payload, the value
// stored in the snapshot trailer.
func ComputeHash(header, payload []byte) []byte {
	d := sha256.New()
	d.Write(header)
	d.Write(payload)
	return d.Sum(nil)
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
