// Package crc32c provides streaming CRC32C (Castagnoli) checksums in the
// encoding GCS uses on the wire: a big-endian uint32, base64-encoded.
//
// This is a thin wrapper over hash/crc32's Castagnoli table; GCS computes
// and reports exactly this checksum for every object, so there is no
// ecosystem library to prefer over the standard implementation here.
package crc32c

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
	"hash/crc32"
)

var table = crc32.MakeTable(crc32.Castagnoli)

// New returns a new hash.Hash32 computing the CRC32C checksum.
func New() hash.Hash32 {
	return crc32.New(table)
}

// Sum computes the CRC32C checksum of b directly.
func Sum(b []byte) uint32 {
	return crc32.Checksum(b, table)
}

// EncodeGCS renders a checksum in the form GCS's JSON API returns it:
// base64 of the big-endian 4-byte value.
func EncodeGCS(sum uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], sum)

	return base64.StdEncoding.EncodeToString(buf[:])
}

// DecodeGCS parses the base64 big-endian 4-byte CRC32C field GCS returns in
// object metadata.
func DecodeGCS(s string) (uint32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}

	if len(buf) != 4 {
		return 0, errShortCRC
	}

	return binary.BigEndian.Uint32(buf), nil
}
