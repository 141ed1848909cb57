package ubi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// VTblRecord is the typed content of one of the 128 volume-table
// slots. An empty Name denotes an unused slot.
type VTblRecord struct {
	ReservedPEBs uint32
	Alignment    uint32
	DataPad      uint32
	VolType      VolType
	Name         string
	Flags        uint8
}

// EncodeVTblRecord renders r into a fresh VTblRecordSize-byte buffer
// with a valid trailing CRC. An unused slot (VTblRecord{}) encodes to
// all-zero bytes plus the CRC of those zeros.
func EncodeVTblRecord(r VTblRecord) ([]byte, error) {
	if len(r.Name) > VolNameMax {
		return nil, fmt.Errorf("ubi: volume name %q exceeds %d bytes", r.Name, VolNameMax)
	}
	buf := make([]byte, VTblRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], r.ReservedPEBs)
	binary.BigEndian.PutUint32(buf[4:8], r.Alignment)
	binary.BigEndian.PutUint32(buf[8:12], r.DataPad)
	buf[12] = byte(r.VolType)
	// buf[13] upd_marker: no atomic-update support, always 0
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(r.Name)))
	copy(buf[16:16+VolNameMax+1], r.Name)
	buf[144] = r.Flags
	// buf[145:168] padding, left zero
	binary.BigEndian.PutUint32(buf[168:172], crcOf(buf[:168]))
	return buf, nil
}

// DecodeVTblRecord parses a raw VTblRecordSize-byte buffer.
func DecodeVTblRecord(buf []byte) (VTblRecord, error) {
	var r VTblRecord
	if len(buf) < VTblRecordSize {
		return r, errors.New("ubi: vtbl record too short")
	}
	if crcOf(buf[:168]) != binary.BigEndian.Uint32(buf[168:172]) {
		return r, ErrBadCRC
	}
	r.ReservedPEBs = binary.BigEndian.Uint32(buf[0:4])
	r.Alignment = binary.BigEndian.Uint32(buf[4:8])
	r.DataPad = binary.BigEndian.Uint32(buf[8:12])
	r.VolType = VolType(buf[12])
	nameLen := binary.BigEndian.Uint16(buf[14:16])
	name := buf[16 : 16+VolNameMax+1]
	if int(nameLen) <= len(name) {
		name = name[:nameLen]
	}
	r.Name = string(bytes.TrimRight(name, "\x00"))
	r.Flags = buf[144]
	return r, nil
}

// EncodeVTbl renders a full 128-record volume table. slots maps a
// volume id (0..MaxVolumes) to its record; unused slots are emitted
// as empty records.
func EncodeVTbl(slots map[uint32]VTblRecord) ([]byte, error) {
	buf := make([]byte, 0, MaxVolumes*VTblRecordSize)
	for i := 0; i < MaxVolumes; i++ {
		rec := slots[uint32(i)]
		enc, err := EncodeVTblRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("ubi: volume table slot %d: %w", i, err)
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// DecodeVTbl parses a full 128-record volume table.
func DecodeVTbl(buf []byte) ([MaxVolumes]VTblRecord, error) {
	var recs [MaxVolumes]VTblRecord
	if len(buf) < MaxVolumes*VTblRecordSize {
		return recs, errors.New("ubi: volume table too short")
	}
	for i := 0; i < MaxVolumes; i++ {
		rec, err := DecodeVTblRecord(buf[i*VTblRecordSize : (i+1)*VTblRecordSize])
		if err != nil {
			return recs, fmt.Errorf("ubi: volume table slot %d: %w", i, err)
		}
		recs[i] = rec
	}
	return recs, nil
}
