package writer

import "github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/ubi"

// Mode selects whether the engine writes raw payload bytes or
// constructs a full UBI image.
type Mode int

const (
	ModeRaw Mode = iota
	ModeUBI
)

// Config carries every writer input spec.md §4.3 names, independent
// of where the payload comes from or how the device is implemented.
type Config struct {
	Mode Mode

	// StartPEB, EndPEB describe the half-open PEB window to operate on.
	StartPEB, EndPEB int

	// CleanMarkers enables JFFS2 clean-marker OOB writes.
	CleanMarkers bool

	// UBI-mode volume identity. VolName is required whenever there is
	// a payload to place in UBI mode.
	VolID   uint32
	VolName string

	// VolLEBsArg is the raw -S argument, before the three-way
	// convention from spec.md §4.3 is applied.
	VolLEBsArg int64

	// ImageSeq, if non-zero, is used verbatim instead of a randomly
	// generated image sequence number. Exists for reproducible tests.
	ImageSeq uint32
}

func (c Config) windowPEBs() int {
	return c.EndPEB - c.StartPEB
}

// resolveVolLEBs applies the three-way -S convention documented in
// spec.md §4.3.
func resolveVolLEBs(arg int64, totalLEBs int64) (int64, error) {
	var volLEBs int64
	switch {
	case arg == 0:
		volLEBs = totalLEBs - 20
	case arg < 0:
		k := -arg
		if k < 2 {
			return 0, errGeometry("negative -S spare count must be at least 2, got %d", k)
		}
		volLEBs = totalLEBs - k
	default:
		volLEBs = arg
	}
	if volLEBs < 0 || volLEBs > totalLEBs {
		return 0, errGeometry("volume LEB count %d out of range [0, %d]", volLEBs, totalLEBs)
	}
	return volLEBs, nil
}

func validateVolName(name string) error {
	if len(name) > ubi.VolNameMax {
		return errGeometry("volume name %q exceeds %d bytes", name, ubi.VolNameMax)
	}
	return nil
}
