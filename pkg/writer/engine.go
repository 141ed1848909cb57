// Package writer implements the PEB-window erase pass and the
// bad-block-tolerant write loop described in spec.md §4.3.
package writer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/flash"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/log"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/ubi"
)

// EventKind classifies one line of the per-PEB run report.
type EventKind int

const (
	EventErased EventKind = iota
	EventBadSkipped
	EventWritten
	EventWriteFailed
	EventMarkedBad
)

// Event is one per-PEB occurrence recorded during a run, for the
// verbose-mode report.
type Event struct {
	PEB  int
	Kind EventKind
	Note string
}

// Result summarizes a completed (or partially completed) run.
type Result struct {
	Delivered     bool
	BlocksWritten int
	Events        []Event
}

// Engine runs the erase pass and write pass over a device.
type Engine struct {
	dev flash.Device
	src io.Reader
	cfg Config

	geom         flash.Geometry
	vidHdrOffset uint32
	dataOffset   uint32
	lebSize      uint32
	volLEBs      int64
	windowPEBs   int

	knownLength bool
	srcLen      int64

	events []Event
	warn   *multierror.Error
}

// lengther is implemented by ioadapter.Source; kept as a narrow local
// interface so this package does not need to import ioadapter just
// for the Len() query.
type lengther interface {
	Len() (int64, bool)
}

// New validates cfg against the device's geometry and returns a ready
// Engine. src may be nil (no payload: erase-only in raw mode, or a
// headers-only UBI image in UBI mode). All usage and geometry errors
// are caught here, before anything is touched on the device.
func New(dev flash.Device, src io.Reader, cfg Config) (*Engine, error) {
	geom, err := dev.Info()
	if err != nil {
		return nil, fmt.Errorf("writer: read device info: %w", err)
	}

	e := &Engine{dev: dev, src: src, cfg: cfg, geom: geom}

	if cfg.EndPEB <= cfg.StartPEB {
		return nil, errGeometry("empty PEB window [%d, %d)", cfg.StartPEB, cfg.EndPEB)
	}
	if cfg.StartPEB < 0 || cfg.EndPEB > geom.PEBCount() {
		return nil, errGeometry("window [%d, %d) outside device of %d PEBs", cfg.StartPEB, cfg.EndPEB, geom.PEBCount())
	}
	e.windowPEBs = cfg.windowPEBs()

	if l, ok := src.(lengther); ok {
		e.srcLen, e.knownLength = l.Len()
	}

	switch cfg.Mode {
	case ModeUBI:
		if e.windowPEBs <= ubi.LayoutVolumeEBs {
			return nil, errGeometry("UBI window of %d PEBs too small for the %d-PEB layout volume", e.windowPEBs, ubi.LayoutVolumeEBs)
		}
		totalLEBs := int64(e.windowPEBs - ubi.LayoutVolumeEBs)
		volLEBs, err := resolveVolLEBs(cfg.VolLEBsArg, totalLEBs)
		if err != nil {
			return nil, err
		}
		e.volLEBs = volLEBs
		e.vidHdrOffset = geom.MinIOSize
		e.dataOffset = 2 * geom.MinIOSize
		if e.dataOffset >= geom.EBSize {
			return nil, errGeometry("PEB size %d too small for header area %d", geom.EBSize, e.dataOffset)
		}
		e.lebSize = geom.EBSize - e.dataOffset
		if e.lebSize < ubi.MaxVolumes*ubi.VTblRecordSize {
			return nil, errGeometry("LEB size %d too small for the %d-byte volume table", e.lebSize, ubi.MaxVolumes*ubi.VTblRecordSize)
		}

		havePayload := src != nil && (!e.knownLength || e.srcLen > 0)
		if havePayload {
			if cfg.VolName == "" {
				return nil, errUsage("UBI mode with a payload requires a volume name")
			}
			if err := validateVolName(cfg.VolName); err != nil {
				return nil, err
			}
		}
		if e.knownLength && e.srcLen > e.volLEBs*int64(e.lebSize) {
			return nil, errGeometry("payload of %d bytes exceeds volume capacity of %d bytes", e.srcLen, e.volLEBs*int64(e.lebSize))
		}
	case ModeRaw:
		windowSize := int64(e.windowPEBs) * int64(geom.EBSize)
		if e.knownLength && e.srcLen > windowSize {
			return nil, errGeometry("payload of %d bytes exceeds window of %d bytes", e.srcLen, windowSize)
		}
	default:
		return nil, errUsage("unknown writer mode %d", cfg.Mode)
	}

	return e, nil
}

// Warnings returns the accumulated non-fatal bad-block / write-retry
// events as a single error, or nil if there were none.
func (e *Engine) Warnings() error {
	return e.warn.ErrorOrNil()
}

// Events returns every per-PEB occurrence recorded during the run, in
// the order they happened.
func (e *Engine) Events() []Event {
	return e.events
}

func (e *Engine) record(peb int, kind EventKind, format string, args ...interface{}) {
	e.events = append(e.events, Event{PEB: peb, Kind: kind, Note: fmt.Sprintf(format, args...)})
}

// ErasePass erases every good PEB in the window, skipping (and
// reporting) bad ones. Failures reading bad-block state or erasing a
// PEB are non-fatal: they are logged, recorded, and the pass moves on.
func (e *Engine) ErasePass() map[int]bool {
	bad := make(map[int]bool)
	for peb := e.cfg.StartPEB; peb < e.cfg.EndPEB; peb++ {
		isBad, err := e.dev.IsBad(peb)
		if err != nil {
			log.Warnf("peb %d: could not read bad-block state: %v", peb, err)
			e.warn = multierror.Append(e.warn, fmt.Errorf("peb %d: bad-block query: %w", peb, err))
			bad[peb] = true
			continue
		}
		if isBad {
			log.Infof("peb %d: skipping known bad block", peb)
			e.record(peb, EventBadSkipped, "known bad block")
			bad[peb] = true
			continue
		}
		if err := e.dev.Erase(peb); err != nil {
			log.Warnf("peb %d: erase failed: %v", peb, err)
			e.warn = multierror.Append(e.warn, fmt.Errorf("peb %d: erase: %w", peb, err))
			bad[peb] = true
			continue
		}
		e.record(peb, EventErased, "")
	}
	return bad
}

// writerState is the explicit, per-run replacement for the original
// tool's global blk_no/image_seq mutable state.
type writerState struct {
	blkNo      uint64
	imageSeq   uint32
	haveSeq    bool
	dataLeft   int64
	eofReached bool
}

func (e *Engine) newState() *writerState {
	return &writerState{dataLeft: e.srcLen}
}

func randomImageSeq() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("writer: generate image sequence: %w", err)
		}
		if v := binary.BigEndian.Uint32(b[:]); v != 0 {
			return v, nil
		}
	}
}

// readUpTo fills buf as far as possible from r, reading on after short
// reads and stopping at the first zero-byte read, EOF, or error. It never itself treats EOF as an error: the
// caller decides, based on whether the source has a known remaining
// length, whether a short fill is graceful end-of-stream or a
// premature one.
func readUpTo(r io.Reader, buf []byte) (n int, eof bool, err error) {
	for n < len(buf) {
		k, rerr := r.Read(buf[n:])
		n += k
		if rerr != nil {
			if rerr == io.EOF {
				return n, true, nil
			}
			return n, false, rerr
		}
		if k == 0 {
			return n, true, nil
		}
	}
	return n, false, nil
}

// readPayload reads into dst, updating state's bookkeeping. A known
// -length source that comes up short is a fatal premature-EOF error;
// an unknown-length source (stdin without -l) ending early is the
// documented graceful termination.
func (e *Engine) readPayload(dst []byte, state *writerState) (int, error) {
	if e.src == nil || state.eofReached {
		return 0, nil
	}
	want := len(dst)
	if e.knownLength {
		if int64(want) > state.dataLeft {
			want = int(state.dataLeft)
		}
		if want == 0 {
			return 0, nil
		}
	}
	n, eof, err := readUpTo(e.src, dst[:want])
	if err != nil {
		return 0, fmt.Errorf("writer: read payload: %w", err)
	}
	if e.knownLength {
		state.dataLeft -= int64(n)
		if n < want {
			return n, fmt.Errorf("writer: premature end of input: expected %d more bytes, got %d", want, n)
		}
		return n, nil
	}
	if eof {
		state.eofReached = true
	}
	return n, nil
}

func erasedBuf(n uint32) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// genBlock implements eb_gen_data: it produces the content for the
// next logical block (not yet tied to a physical PEB) and advances
// blk_no so the following call produces the next block in sequence.
func (e *Engine) genBlock(state *writerState) (buf []byte, dataLen int, err error) {
	buf = erasedBuf(e.geom.EBSize)
	blkNo := state.blkNo

	if e.cfg.Mode == ModeRaw {
		n, rerr := e.readPayload(buf, state)
		if rerr != nil {
			return nil, 0, rerr
		}
		state.blkNo++
		return buf, n, nil
	}

	// UBI mode: always start with an EC header.
	if !state.haveSeq {
		seq := e.cfg.ImageSeq
		if seq == 0 {
			seq, err = randomImageSeq()
			if err != nil {
				return nil, 0, err
			}
		}
		state.imageSeq = seq
		state.haveSeq = true
	}
	ec := ubi.EncodeECHeader(ubi.ECHeader{
		Version:         ubi.HeaderVersion,
		VIDHeaderOffset: e.vidHdrOffset,
		DataOffset:      e.dataOffset,
		ImageSeq:        state.imageSeq,
	})
	copy(buf, ec)

	switch {
	case blkNo < ubi.LayoutVolumeEBs:
		vid := ubi.EncodeVIDHeader(ubi.VIDHeader{
			Version: ubi.HeaderVersion,
			VolType: ubi.VolDynamic,
			Compat:  ubi.CompatReject,
			VolID:   ubi.LayoutVolumeID,
			Lnum:    uint32(blkNo),
		})
		copy(buf[e.vidHdrOffset:], vid)

		slots := map[uint32]ubi.VTblRecord{
			e.cfg.VolID: {
				ReservedPEBs: uint32(e.volLEBs),
				Alignment:    1,
				VolType:      ubi.VolDynamic,
				Name:         e.cfg.VolName,
			},
		}
		vtbl, verr := ubi.EncodeVTbl(slots)
		if verr != nil {
			return nil, 0, verr
		}
		copy(buf[e.dataOffset:], vtbl)
		dataLen = int(e.dataOffset) + len(vtbl)

	case blkNo < uint64(ubi.LayoutVolumeEBs)+uint64(e.volLEBs):
		lnum := uint32(blkNo - ubi.LayoutVolumeEBs)
		vid := ubi.EncodeVIDHeader(ubi.VIDHeader{
			Version: ubi.HeaderVersion,
			VolType: ubi.VolDynamic,
			VolID:   e.cfg.VolID,
			Lnum:    lnum,
		})
		copy(buf[e.vidHdrOffset:], vid)

		n, rerr := e.readPayload(buf[e.dataOffset:e.dataOffset+e.lebSize], state)
		if rerr != nil {
			return nil, 0, rerr
		}
		dataLen = int(e.dataOffset) + n

	default:
		dataLen = ubi.ECHeaderSize
	}

	state.blkNo++
	return buf, dataLen, nil
}

func allFF(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// writeBlock implements eb_write: it programs the pages of peb that
// carry non-erased content, applying the skip-FF optimization, and
// stamps a JFFS2 clean marker on the first page when enabled.
func (e *Engine) writeBlock(peb int, buf []byte, dataLen int, cleanMarkers bool) error {
	pageSize := int(e.geom.MinIOSize)

	if dataLen == 0 {
		if !cleanMarkers {
			return nil
		}
		return e.dev.WritePage(peb, 0, nil, ubi.JFFS2CleanMarker[:])
	}

	for off := 0; off < dataLen; off += pageSize {
		page := buf[off : off+pageSize]
		var data []byte
		if !allFF(page) {
			data = page
		}
		var oob []byte
		if off == 0 && cleanMarkers {
			oob = ubi.JFFS2CleanMarker[:]
		}
		if err := e.dev.WritePage(peb, off, data, oob); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) doneGenerating(state *writerState) bool {
	if e.cfg.Mode == ModeRaw {
		return e.knownLength && state.dataLeft == 0
	}
	return state.blkNo >= uint64(e.windowPEBs)
}

// WritePass runs the write loop described in spec.md §4.3: it
// generates logical blocks and attempts to deliver each one,
// retrying undelivered content on the next good PEB when a write
// fails. bad is the set of PEBs already known bad from ErasePass.
func (e *Engine) WritePass(bad map[int]bool) (Result, error) {
	state := e.newState()
	ebAddr := e.cfg.StartPEB

	var buf []byte
	var dataLen int
	haveBlock := false
	written := 0

	for {
		if !haveBlock {
			if e.doneGenerating(state) {
				break
			}
			var err error
			buf, dataLen, err = e.genBlock(state)
			if err != nil {
				return Result{Events: e.events}, err
			}
			if e.cfg.Mode == ModeRaw && dataLen == 0 {
				// Nothing left to deliver; remaining PEBs stay erased.
				break
			}
			haveBlock = true
		}

		if ebAddr >= e.cfg.EndPEB {
			break
		}
		if bad[ebAddr] {
			ebAddr++
			continue
		}

		if err := e.writeBlock(ebAddr, buf, dataLen, e.cfg.CleanMarkers); err != nil {
			log.Warnf("peb %d: write failed: %v; erasing and retrying on the next PEB", ebAddr, err)
			e.warn = multierror.Append(e.warn, fmt.Errorf("peb %d: write: %w", ebAddr, err))
			e.record(ebAddr, EventWriteFailed, err.Error())

			if eraseErr := e.dev.Erase(ebAddr); eraseErr != nil {
				log.Warnf("peb %d: best-effort erase after write failure also failed: %v", ebAddr, eraseErr)
			}
			if dataLen%int(e.geom.EBSize) == 0 {
				if markErr := e.dev.MarkBad(ebAddr); markErr != nil {
					log.Warnf("peb %d: mark-bad failed: %v", ebAddr, markErr)
				} else {
					bad[ebAddr] = true
					e.record(ebAddr, EventMarkedBad, "")
				}
			}
			ebAddr++
			continue
		}

		e.record(ebAddr, EventWritten, "")
		written++
		haveBlock = false
		ebAddr++
	}

	delivered := !haveBlock && (e.cfg.Mode == ModeUBI || !e.knownLength || state.dataLeft == 0)
	// An unlimited raw source is "delivered" once genBlock signals
	// end of stream, i.e. once doneGenerating would no longer apply
	// and no block is pending.
	if e.cfg.Mode == ModeRaw && !e.knownLength {
		delivered = !haveBlock
	}

	res := Result{Delivered: delivered, BlocksWritten: written, Events: e.events}
	if !delivered {
		return res, ErrPartiallyWritten
	}
	return res, nil
}

// Run executes the erase pass followed by the write pass.
func (e *Engine) Run() (Result, error) {
	bad := e.ErasePass()
	return e.WritePass(bad)
}
