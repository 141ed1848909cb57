// Package extractor implements the sequential PEB walk, volume-table
// lookup, and LEB-to-file-offset placement described in spec.md §4.4.
package extractor

import (
	"errors"
	"fmt"
	"os"

	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/log"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/ubi"
)

// Config selects which volume to extract and how tolerant to be of
// corrupt PEBs.
type Config struct {
	// VolIndex selects a volume by slot, ignored if VolName != "".
	VolIndex int
	// VolName selects a volume by name; takes priority over VolIndex.
	VolName string
	// SkipBad causes PEBs that fail header validation to be skipped
	// instead of aborting the run.
	SkipBad bool
}

// VolumeInfo describes one non-empty volume-table slot.
type VolumeInfo struct {
	Index        int
	Name         string
	ReservedPEBs uint32
}

// ExtractResult summarizes a completed extraction.
type ExtractResult struct {
	VolIndex     int
	VolName      string
	ReservedPEBs uint32
	LEBSize      uint32
	LEBsWritten  int
}

// Engine walks an already-built UBI image file.
type Engine struct {
	img     *os.File
	pebSize uint32
	nPEBs   int
	cfg     Config
}

// Open opens the image file at path and validates that its size is a
// positive multiple of pebSize.
func Open(path string, pebSize uint32, cfg Config) (*Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extractor: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("extractor: stat %s: %w", path, err)
	}
	size := info.Size()
	if size <= 0 || size%int64(pebSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("extractor: image size %d is not a positive multiple of PEB size %d", size, pebSize)
	}
	return &Engine{img: f, pebSize: pebSize, nPEBs: int(size / int64(pebSize)), cfg: cfg}, nil
}

// Close releases the underlying image file.
func (e *Engine) Close() error {
	return e.img.Close()
}

func (e *Engine) readPEB(peb int) ([]byte, error) {
	buf := make([]byte, e.pebSize)
	if _, err := e.img.ReadAt(buf, int64(peb)*int64(e.pebSize)); err != nil {
		return nil, fmt.Errorf("extractor: read peb %d: %w", peb, err)
	}
	return buf, nil
}

// decoded is the per-PEB result of validating its headers.
type decoded struct {
	ec      ubi.ECHeader
	vid     ubi.VIDHeader
	empty   bool
	dataOff uint32
}

func (e *Engine) decodePEB(buf []byte) (decoded, error) {
	var d decoded
	ec, err := ubi.DecodeECHeader(buf)
	if err != nil {
		return d, err
	}
	d.ec = ec
	d.dataOff = ec.DataOffset
	if int(ec.VIDHeaderOffset)+ubi.VIDHeaderSize > len(buf) {
		return d, fmt.Errorf("extractor: vid header offset %d out of range", ec.VIDHeaderOffset)
	}
	vid, empty, err := ubi.DecodeVIDHeader(buf[ec.VIDHeaderOffset:])
	if err != nil {
		return d, err
	}
	d.vid, d.empty = vid, empty
	return d, nil
}

// ListVolumes walks the image looking for the layout volume and
// returns every non-empty volume-table slot it finds, along with the
// image's LEB size.
func (e *Engine) ListVolumes() ([]VolumeInfo, uint32, error) {
	dataOff, recs, err := e.findLayoutVolume()
	if err != nil {
		return nil, 0, err
	}
	var vols []VolumeInfo
	for i, r := range recs {
		if r.Name == "" {
			continue
		}
		vols = append(vols, VolumeInfo{Index: i, Name: r.Name, ReservedPEBs: r.ReservedPEBs})
	}
	return vols, e.pebSize - dataOff, nil
}

var errLayoutVolumeNotFound = errors.New("extractor: layout volume not found in image")

// findLayoutVolume implements the discovery phase: it walks PEBs in
// file order and returns the volume table of the first layout-volume
// PEB whose table decodes cleanly, along with that PEB's data_offset
// (uniform across the whole image, per spec.md invariant 2). Without
// SkipBad, the first PEB or volume table that fails validation ends
// the walk with an error; with SkipBad it is skipped, so a damaged
// first copy falls through to the second.
func (e *Engine) findLayoutVolume() (uint32, [ubi.MaxVolumes]ubi.VTblRecord, error) {
	var recs [ubi.MaxVolumes]ubi.VTblRecord
	for peb := 0; peb < e.nPEBs; peb++ {
		buf, err := e.readPEB(peb)
		if err != nil {
			return 0, recs, err
		}
		d, err := e.decodePEB(buf)
		if err != nil {
			if e.cfg.SkipBad {
				log.Infof("peb %d: %v, skipping", peb, err)
				continue
			}
			return 0, recs, fmt.Errorf("peb %d: %w", peb, err)
		}
		if d.empty || d.vid.VolID != ubi.LayoutVolumeID {
			continue
		}
		table, terr := ubi.DecodeVTbl(buf[d.dataOff:])
		if terr != nil {
			if e.cfg.SkipBad {
				log.Infof("peb %d: volume table: %v, skipping", peb, terr)
				continue
			}
			return 0, recs, fmt.Errorf("peb %d: volume table: %w", peb, terr)
		}
		return d.dataOff, table, nil
	}
	return 0, recs, errLayoutVolumeNotFound
}

// resolve runs the discovery phase and settles on a concrete volume
// index, name and data_offset.
func (e *Engine) resolve() (index int, info VolumeInfo, dataOff uint32, err error) {
	dataOff, recs, err := e.findLayoutVolume()
	if err != nil {
		return 0, VolumeInfo{}, 0, err
	}
	if e.cfg.VolName != "" {
		for i, r := range recs {
			if r.Name == e.cfg.VolName {
				return i, VolumeInfo{Index: i, Name: r.Name, ReservedPEBs: r.ReservedPEBs}, dataOff, nil
			}
		}
		return 0, VolumeInfo{}, 0, fmt.Errorf("extractor: no volume named %q", e.cfg.VolName)
	}
	if e.cfg.VolIndex < 0 || e.cfg.VolIndex >= ubi.MaxVolumes {
		return 0, VolumeInfo{}, 0, fmt.Errorf("extractor: volume index %d out of range [0, %d)", e.cfg.VolIndex, ubi.MaxVolumes)
	}
	r := recs[e.cfg.VolIndex]
	if r.Name == "" {
		return 0, VolumeInfo{}, 0, fmt.Errorf("extractor: volume index %d is empty", e.cfg.VolIndex)
	}
	return e.cfg.VolIndex, VolumeInfo{Index: e.cfg.VolIndex, Name: r.Name, ReservedPEBs: r.ReservedPEBs}, dataOff, nil
}

// Extract writes the resolved volume's reconstructed data payload to
// outPath, creating (and truncating) it as needed.
func (e *Engine) Extract(outPath string) (ExtractResult, error) {
	volIndex, info, dataOff, err := e.resolve()
	if err != nil {
		return ExtractResult{}, err
	}
	lebSize := e.pebSize - dataOff

	out, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("extractor: create %s: %w", outPath, err)
	}
	defer out.Close()

	if info.ReservedPEBs > 0 {
		if err := out.Truncate(int64(info.ReservedPEBs) * int64(lebSize)); err != nil {
			return ExtractResult{}, fmt.Errorf("extractor: size %s: %w", outPath, err)
		}
	}

	res := ExtractResult{VolIndex: volIndex, VolName: info.Name, ReservedPEBs: info.ReservedPEBs, LEBSize: lebSize}

	for peb := 0; peb < e.nPEBs; peb++ {
		buf, err := e.readPEB(peb)
		if err != nil {
			return res, err
		}
		d, err := e.decodePEB(buf)
		if err != nil {
			if e.cfg.SkipBad {
				log.Infof("peb %d: %v, skipping", peb, err)
				continue
			}
			return res, fmt.Errorf("peb %d: %w", peb, err)
		}
		if d.empty || d.vid.VolID != uint32(volIndex) {
			continue
		}
		data := buf[d.dataOff:]
		if _, err := out.WriteAt(data, int64(d.vid.Lnum)*int64(lebSize)); err != nil {
			return res, fmt.Errorf("extractor: write %s at leb %d: %w", outPath, d.vid.Lnum, err)
		}
		res.LEBsWritten++
	}
	return res, nil
}
