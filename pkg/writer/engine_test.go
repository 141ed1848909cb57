package writer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/flash"
	"github.com/unofficial-inteno-public-mirror/mtd-utils/pkg/ubi"
)

const (
	testEBSize    = 32768
	testMinIOSize = 512
	testNumPEBs   = 16
)

func testGeometry() flash.Geometry {
	return flash.Geometry{
		EBSize:    testEBSize,
		MinIOSize: testMinIOSize,
		Size:      uint64(testEBSize) * testNumPEBs,
	}
}

// fixedSource wraps a byte slice as a Reader with a known length, the
// way ioadapter.Source reports Len() for a file input.
type fixedSource struct {
	r *bytes.Reader
	n int64
}

func newFixedSource(data []byte) *fixedSource {
	return &fixedSource{r: bytes.NewReader(data), n: int64(len(data))}
}

func (s *fixedSource) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *fixedSource) Len() (int64, bool)          { return s.n, true }

func pattern(n int, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestEraseOnlyRun(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	eng, err := New(dev, nil, Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 4})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, 0, res.BlocksWritten)

	for i := 0; i < 4; i++ {
		require.True(t, bytes.Equal(dev.PEB(i), bytes.Repeat([]byte{0xFF}, testEBSize)), "peb %d should be left erased", i)
	}
}

func TestRawModeSpillsAcrossPEBs(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	payload := pattern(int(2.5*testEBSize), 0xAA) // PEB0, PEB1 full, PEB2 half
	eng, err := New(dev, newFixedSource(payload), Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 4})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, 3, res.BlocksWritten)

	require.True(t, bytes.Equal(dev.PEB(0), pattern(testEBSize, 0xAA)))
	require.True(t, bytes.Equal(dev.PEB(1), pattern(testEBSize, 0xAA)))

	half := testEBSize / 2
	want := append(pattern(half, 0xAA), pattern(testEBSize-half, 0xFF)...)
	require.True(t, bytes.Equal(dev.PEB(2), want))

	require.True(t, bytes.Equal(dev.PEB(3), pattern(testEBSize, 0xFF)), "trailing peb stays erased")
}

func TestRawModePayloadTooLarge(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	payload := pattern(5*testEBSize, 0xAA)
	_, err := New(dev, newFixedSource(payload), Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 4})
	require.Error(t, err)
	var gerr *GeometryError
	require.ErrorAs(t, err, &gerr)
}

func TestBadBlockSkippedDuringEraseAndWrite(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	dev.MarkBadForTest(5)

	payload := pattern(15*testEBSize, 0x5A)
	eng, err := New(dev, newFixedSource(payload), Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 16})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, 15, res.BlocksWritten)

	for i := 0; i < 16; i++ {
		if i == 5 {
			continue
		}
		require.True(t, bytes.Equal(dev.PEB(i), pattern(testEBSize, 0x5A)), "peb %d", i)
	}
}

func TestWriteFailureRetriesOnNextPEB(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	dev.FailWrite = func(peb, pageOffset int) bool { return peb == 2 }

	payload := pattern(4*testEBSize, 0x77)
	eng, err := New(dev, newFixedSource(payload), Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 6})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)

	// PEB 2's content is retried, successfully, on PEB 3.
	require.True(t, bytes.Equal(dev.PEB(0), pattern(testEBSize, 0x77)))
	require.True(t, bytes.Equal(dev.PEB(1), pattern(testEBSize, 0x77)))
	require.True(t, bytes.Equal(dev.PEB(3), pattern(testEBSize, 0x77)))
	require.True(t, bytes.Equal(dev.PEB(4), pattern(testEBSize, 0x77)))

	bad, err := dev.IsBad(2)
	require.NoError(t, err)
	require.True(t, bad, "a PEB that failed a block-aligned write should be marked bad")
}

func TestStdinEOFMidPEBPadsWithFF(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	payload := pattern(testEBSize+100, 0x11)
	// bytes.Reader's Len() int does not match the engine's
	// Len() (int64, bool) probe, so the engine treats this exactly like
	// stdin without -l: unknown length, EOF-terminated.
	var r io.Reader = bytes.NewReader(payload)

	eng, err := New(dev, r, Config{Mode: ModeRaw, StartPEB: 0, EndPEB: 4})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, 2, res.BlocksWritten)

	require.True(t, bytes.Equal(dev.PEB(0), pattern(testEBSize, 0x11)))
	want := append(pattern(100, 0x11), pattern(testEBSize-100, 0xFF)...)
	require.True(t, bytes.Equal(dev.PEB(1), want))
}

func TestUBIModeLayoutAndVolumeData(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	payload := pattern(2*(testEBSize-2*testMinIOSize), 0xAA) // exactly 2 LEBs
	eng, err := New(dev, newFixedSource(payload), Config{
		Mode:       ModeUBI,
		StartPEB:   0,
		EndPEB:     16,
		VolID:      0,
		VolName:    "rootfs",
		VolLEBsArg: 10,
	})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)

	dataOffset := uint32(2 * testMinIOSize)
	lebSize := testEBSize - dataOffset

	// Layout volume PEBs carry matching volume tables.
	for _, peb := range []int{0, 1} {
		buf := dev.PEB(peb)
		ec, err := ubi.DecodeECHeader(buf)
		require.NoError(t, err)
		vid, empty, err := ubi.DecodeVIDHeader(buf[ec.VIDHeaderOffset:])
		require.NoError(t, err)
		require.False(t, empty)
		require.Equal(t, ubi.LayoutVolumeID, int(vid.VolID))
		require.EqualValues(t, peb, vid.Lnum)

		table, err := ubi.DecodeVTbl(buf[ec.DataOffset:])
		require.NoError(t, err)
		require.Equal(t, "rootfs", table[0].Name)
		require.EqualValues(t, 10, table[0].ReservedPEBs)
	}

	// Volume-data PEBs carry the payload.
	for lnum := 0; lnum < 2; lnum++ {
		peb := 2 + lnum
		buf := dev.PEB(peb)
		ec, err := ubi.DecodeECHeader(buf)
		require.NoError(t, err)
		vid, empty, err := ubi.DecodeVIDHeader(buf[ec.VIDHeaderOffset:])
		require.NoError(t, err)
		require.False(t, empty)
		require.EqualValues(t, 0, vid.VolID)
		require.EqualValues(t, lnum, vid.Lnum)
		require.True(t, bytes.Equal(buf[ec.DataOffset:ec.DataOffset+lebSize], pattern(int(lebSize), 0xAA)))
	}

	// Remaining volume-data PEBs (no more payload) carry only headers.
	for lnum := 2; lnum < 10; lnum++ {
		peb := 2 + lnum
		buf := dev.PEB(peb)
		ec, err := ubi.DecodeECHeader(buf)
		require.NoError(t, err)
		vid, empty, err := ubi.DecodeVIDHeader(buf[ec.VIDHeaderOffset:])
		require.NoError(t, err)
		require.False(t, empty)
		require.EqualValues(t, lnum, vid.Lnum)
	}

	// Trailing PEBs beyond 2+volLEBs carry EC header only (empty VID).
	for peb := 12; peb < 16; peb++ {
		buf := dev.PEB(peb)
		_, err := ubi.DecodeECHeader(buf)
		require.NoError(t, err)
		_, empty, err := ubi.DecodeVIDHeader(buf[testMinIOSize:])
		require.NoError(t, err)
		require.True(t, empty)
	}

	// All EC headers in the image share one nonzero image_seq.
	var seq uint32
	for peb := 0; peb < 16; peb++ {
		ec, err := ubi.DecodeECHeader(dev.PEB(peb))
		require.NoError(t, err)
		require.NotZero(t, ec.ImageSeq)
		if peb == 0 {
			seq = ec.ImageSeq
		} else {
			require.Equal(t, seq, ec.ImageSeq)
		}
	}
}

func TestUBIModeZeroPayload(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	eng, err := New(dev, nil, Config{
		Mode:       ModeUBI,
		StartPEB:   0,
		EndPEB:     16,
		VolID:      0,
		VolName:    "empty",
		VolLEBsArg: 10,
	})
	require.NoError(t, err)

	res, err := eng.Run()
	require.NoError(t, err)
	require.True(t, res.Delivered)

	for lnum := 0; lnum < 10; lnum++ {
		peb := 2 + lnum
		buf := dev.PEB(peb)
		ec, err := ubi.DecodeECHeader(buf)
		require.NoError(t, err)
		_, empty, err := ubi.DecodeVIDHeader(buf[ec.VIDHeaderOffset:])
		require.NoError(t, err)
		require.False(t, empty)
	}
}

func TestUBIModeRequiresVolumeNameWithPayload(t *testing.T) {
	dev := flash.NewFake(testGeometry())
	payload := pattern(100, 0xAA)
	_, err := New(dev, newFixedSource(payload), Config{
		Mode:       ModeUBI,
		StartPEB:   0,
		EndPEB:     16,
		VolLEBsArg: 10,
	})
	require.Error(t, err)
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
}

func TestVolLEBsConvention(t *testing.T) {
	// totalLEBs = 14: the default convention (totalLEBs-20) goes
	// negative and is rejected as out of range.
	_, err := resolveVolLEBs(0, 14)
	require.Error(t, err)

	// totalLEBs = 30: plenty of room for the default 20-spare reserve.
	lebs, err := resolveVolLEBs(0, 30)
	require.NoError(t, err)
	require.EqualValues(t, 10, lebs)

	lebs, err = resolveVolLEBs(-2, 14)
	require.NoError(t, err)
	require.EqualValues(t, 12, lebs)

	lebs, err = resolveVolLEBs(7, 14)
	require.NoError(t, err)
	require.EqualValues(t, 7, lebs)

	_, err = resolveVolLEBs(-1, 14)
	require.Error(t, err)
}
