// Package flash narrows MTD device access down to the handful of
// operations the writer engine needs: geometry, bad-block queries,
// erase, paged write, and bad-block marking.
package flash

// Geometry describes the fixed, run-immutable shape of an MTD partition.
type Geometry struct {
	// EBSize is the size, in bytes, of one physical eraseblock.
	EBSize uint32
	// MinIOSize is the minimum write granularity (the page size).
	MinIOSize uint32
	// Size is the total size, in bytes, of the device.
	Size uint64
}

// PEBCount returns the number of physical eraseblocks on the device.
func (g Geometry) PEBCount() int {
	return int(g.Size / uint64(g.EBSize))
}

// Device is the capability set the writer engine requires of an MTD
// partition. The extractor does not use this interface; it reads an
// already-built image file directly.
type Device interface {
	// Info returns the device geometry.
	Info() (Geometry, error)

	// IsBad reports whether peb is marked bad.
	IsBad(peb int) (bool, error)

	// Erase erases peb.
	Erase(peb int) error

	// WritePage programs page pageOffset of peb. data must be either
	// nil (skip programming the main area of this page) or exactly
	// MinIOSize bytes. oob, if non-nil, is written to the page's
	// out-of-band area.
	WritePage(peb int, pageOffset int, data, oob []byte) error

	// MarkBad marks peb as bad.
	MarkBad(peb int) error
}
