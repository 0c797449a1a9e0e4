// Package pgio provides low-level helpers for appending and reading the
// big-endian primitives the PostgreSQL wire protocol is built from.
package pgio

import "encoding/binary"

func AppendUint16(buf []byte, n uint16) []byte {
	return append(buf, byte(n>>8), byte(n))
}

func AppendUint32(buf []byte, n uint32) []byte {
	return append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func AppendUint64(buf []byte, n uint64) []byte {
	return append(buf,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n),
	)
}

func AppendInt16(buf []byte, n int16) []byte { return AppendUint16(buf, uint16(n)) }
func AppendInt32(buf []byte, n int32) []byte { return AppendUint32(buf, uint32(n)) }
func AppendInt64(buf []byte, n int64) []byte { return AppendUint64(buf, uint64(n)) }

// SetInt32 overwrites the 4 bytes at buf[0:4] with n, big-endian. Used to
// backfill a message's length header once its body has been appended.
func SetInt32(buf []byte, n int32) {
	binary.BigEndian.PutUint32(buf, uint32(n))
}

func NextByte(buf []byte) ([]byte, byte) { return buf[1:], buf[0] }

func NextUint16(buf []byte) ([]byte, uint16) {
	return buf[2:], binary.BigEndian.Uint16(buf)
}

func NextUint32(buf []byte) ([]byte, uint32) {
	return buf[4:], binary.BigEndian.Uint32(buf)
}

func NextInt16(buf []byte) ([]byte, int16) {
	buf, n := NextUint16(buf)
	return buf, int16(n)
}

func NextInt32(buf []byte) ([]byte, int32) {
	buf, n := NextUint32(buf)
	return buf, int32(n)
}
