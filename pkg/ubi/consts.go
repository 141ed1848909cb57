// Package ubi implements the on-flash UBI layout: erase-count headers,
// volume-identifier headers, and the volume table, byte-exact with the
// Linux UBI subsystem.
package ubi

// On-flash magic numbers, big-endian on the wire.
const (
	ecHdrMagic  = 0x55424923 // "UBI#"
	vidHdrMagic = 0x55424921 // "UBI!"
)

// CRC32Init is the non-zero seed UBI uses for every on-flash CRC-32.
const CRC32Init uint32 = 0xFFFFFFFF

// Header format version understood by this codec.
const HeaderVersion = 1

// Sizes, in bytes, of the fixed-size on-flash structures.
const (
	ECHeaderSize   = 64
	VIDHeaderSize  = 64
	VTblRecordSize = 172
)

// VolNameMax is the maximum length, in bytes, of a volume name.
const VolNameMax = 127

// MaxVolumes is the fixed number of slots in the volume table.
const MaxVolumes = 128

// LayoutVolumeID is the reserved volume id carrying the volume table.
const LayoutVolumeID = 0x7fffefff

// LayoutVolumeEBs is the number of PEBs the layout volume always occupies.
const LayoutVolumeEBs = 2

// VolType identifies the kind of a UBI volume.
type VolType uint8

const (
	VolDynamic VolType = 1
	VolStatic  VolType = 2
)

// Compat describes how an unrecognized volume should be handled. Only
// the layout volume's value (Reject) is produced by this codec.
type Compat uint8

const (
	CompatDelete   Compat = 1
	CompatRO       Compat = 2
	CompatPreserve Compat = 4
	CompatReject   Compat = 5
)

// JFFS2CleanMarker is the 8-byte OOB marker written to the first page
// of a freshly erased, clean PEB.
var JFFS2CleanMarker = [8]byte{0x19, 0x85, 0x20, 0x03, 0x00, 0x00, 0x00, 0x08}
