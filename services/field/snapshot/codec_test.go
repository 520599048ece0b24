// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderLayout(t *testing.T) {
	parent := bytes.Repeat([]byte{0xAB}, HashSize)
	h, err := EncodeHeader(FlagCompressed|FlagIncremental, 1700000000123, parent)
	require.NoError(t, err)
	require.Len(t, h, HeaderSize)

	assert.Equal(t, []byte("SNPT"), h[0:4])
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(h[4:6]))
	assert.Equal(t, uint16(0b101), binary.LittleEndian.Uint16(h[6:8]))
	assert.Equal(t, uint64(1700000000123), binary.LittleEndian.Uint64(h[8:16]))
	assert.Equal(t, parent, h[16:48])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(h[48:52]), "payload length starts zero")
	assert.Equal(t, make([]byte, 12), h[52:64], "reserved region is zero")
}

func TestEncodeHeaderParentValidation(t *testing.T) {
	_, err := EncodeHeader(0, 0, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadParentHash)

	h, err := EncodeHeader(0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, HashSize), h[16:48], "no parent encodes as all-zero")
}

func TestSetPayloadLength(t *testing.T) {
	h, err := EncodeHeader(0, 0, nil)
	require.NoError(t, err)
	SetPayloadLength(h, 4096)
	assert.Equal(t, uint32(4096), binary.LittleEndian.Uint32(h[48:52]))
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	parent := make([]byte, HashSize)
	parent[0] = 0x01
	enc, err := EncodeHeader(FlagCompressed, 42, parent)
	require.NoError(t, err)
	SetPayloadLength(enc, 17)

	dec, err := DecodeHeader(enc)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, dec.Version)
	assert.True(t, dec.Compressed)
	assert.False(t, dec.Encrypted)
	assert.False(t, dec.Incremental)
	assert.Equal(t, int64(42), dec.Timestamp)
	assert.Equal(t, parent, dec.ParentHash)
	assert.Equal(t, uint32(17), dec.PayloadLength)
	assert.Equal(t, FlagCompressed, dec.Flags())
}

func TestDecodeHeaderNoParent(t *testing.T) {
	enc, err := EncodeHeader(0, 0, nil)
	require.NoError(t, err)

	dec, err := DecodeHeader(enc)
	require.NoError(t, err)
	assert.Nil(t, dec.ParentHash, "all-zero parent decodes as none")
	assert.Empty(t, dec.ParentHashHex())
}

func TestDecodeHeaderErrors(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := DecodeHeader(make([]byte, HeaderSize-1))
		assert.ErrorIs(t, err, ErrHeaderTooShort)
	})

	t.Run("bad magic", func(t *testing.T) {
		enc, err := EncodeHeader(0, 0, nil)
		require.NoError(t, err)
		enc[0] = 'X'
		_, err = DecodeHeader(enc)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})
}

func TestComputeHash(t *testing.T) {
	header := []byte("header")
	payload := []byte("payload")

	want := sha256.Sum256([]byte("headerpayload"))
	assert.Equal(t, want[:], ComputeHash(header, payload))
}
