package ubi

import (
	"encoding/binary"
	"errors"
)

// ErrBadMagic is returned when a header's magic field does not match
// the expected constant (and, for a VID header, is not the all-0xFF
// empty marker either).
var ErrBadMagic = errors.New("ubi: bad header magic")

// ErrBadCRC is returned when a header's or record's CRC does not
// match the bytes it covers.
var ErrBadCRC = errors.New("ubi: bad header crc")

// ECHeader is the typed content of an erase-count header.
type ECHeader struct {
	Version       uint8
	VIDHeaderOffset uint32
	DataOffset    uint32
	ImageSeq      uint32
}

// EncodeECHeader renders h into a fresh ECHeaderSize-byte buffer with
// a valid trailing CRC.
func EncodeECHeader(h ECHeader) []byte {
	buf := make([]byte, ECHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], ecHdrMagic)
	buf[4] = h.Version
	// buf[5:8] padding1, left zero
	// buf[8:16] erase counter: wear-levelling is out of scope, always 0
	binary.BigEndian.PutUint32(buf[16:20], h.VIDHeaderOffset)
	binary.BigEndian.PutUint32(buf[20:24], h.DataOffset)
	binary.BigEndian.PutUint32(buf[24:28], h.ImageSeq)
	// buf[28:60] padding2, left zero
	binary.BigEndian.PutUint32(buf[60:64], crcOf(buf[:60]))
	return buf
}

// DecodeECHeader parses a raw ECHeaderSize-byte buffer.
func DecodeECHeader(buf []byte) (ECHeader, error) {
	var h ECHeader
	if len(buf) < ECHeaderSize {
		return h, errors.New("ubi: ec header too short")
	}
	if binary.BigEndian.Uint32(buf[0:4]) != ecHdrMagic {
		return h, ErrBadMagic
	}
	if crcOf(buf[:60]) != binary.BigEndian.Uint32(buf[60:64]) {
		return h, ErrBadCRC
	}
	h.Version = buf[4]
	h.VIDHeaderOffset = binary.BigEndian.Uint32(buf[16:20])
	h.DataOffset = binary.BigEndian.Uint32(buf[20:24])
	h.ImageSeq = binary.BigEndian.Uint32(buf[24:28])
	return h, nil
}

// VIDHeader is the typed content of a volume-identifier header.
type VIDHeader struct {
	Version uint8
	VolType VolType
	Compat  Compat
	VolID   uint32
	Lnum    uint32
}

// EncodeVIDHeader renders h into a fresh VIDHeaderSize-byte buffer
// with a valid trailing CRC.
func EncodeVIDHeader(h VIDHeader) []byte {
	buf := make([]byte, VIDHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], vidHdrMagic)
	buf[4] = h.Version
	buf[5] = byte(h.VolType)
	// buf[6] copy_flag, always 0: atomic-update semantics are out of scope
	buf[7] = byte(h.Compat)
	binary.BigEndian.PutUint32(buf[8:12], h.VolID)
	binary.BigEndian.PutUint32(buf[12:16], h.Lnum)
	// buf[16:20] padding1
	// buf[20:24] data_size, buf[24:28] used_ebs, buf[28:32] data_pad,
	// buf[32:36] data_crc: static-volume fields, unused for dynamic
	// volumes, which is all this codec ever emits.
	// buf[36:40] padding2
	// buf[40:48] sqnum, left 0: wear-levelling sequencing is out of scope
	// buf[48:60] padding3
	binary.BigEndian.PutUint32(buf[60:64], crcOf(buf[:60]))
	return buf
}

// emptyMagic is the all-0xFF value a VID header magic reads as on an
// erased PEB that has never been written.
const emptyMagic = 0xFFFFFFFF

// DecodeVIDHeader parses a raw VIDHeaderSize-byte buffer. It returns
// (zero value, true, nil) when the buffer reads as an empty (erased)
// VID header.
func DecodeVIDHeader(buf []byte) (h VIDHeader, empty bool, err error) {
	if len(buf) < VIDHeaderSize {
		return h, false, errors.New("ubi: vid header too short")
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic == emptyMagic {
		return h, true, nil
	}
	if magic != vidHdrMagic {
		return h, false, ErrBadMagic
	}
	if crcOf(buf[:60]) != binary.BigEndian.Uint32(buf[60:64]) {
		return h, false, ErrBadCRC
	}
	h.Version = buf[4]
	h.VolType = VolType(buf[5])
	h.Compat = Compat(buf[7])
	h.VolID = binary.BigEndian.Uint32(buf[8:12])
	h.Lnum = binary.BigEndian.Uint32(buf[12:16])
	return h, false, nil
}
