package flash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testGeom() Geometry {
	return Geometry{EBSize: 4096, MinIOSize: 512, Size: 4096 * 8}
}

func TestFakeStartsFullyErased(t *testing.T) {
	f := NewFake(testGeom())
	require.Equal(t, 8, testGeom().PEBCount())
	for i := 0; i < 8; i++ {
		require.True(t, bytes.Equal(f.PEB(i), bytes.Repeat([]byte{0xFF}, 4096)))
		bad, err := f.IsBad(i)
		require.NoError(t, err)
		require.False(t, bad)
	}
}

func TestFakeWritePageAndSkipFF(t *testing.T) {
	f := NewFake(testGeom())
	data := bytes.Repeat([]byte{0xAB}, 512)
	require.NoError(t, f.WritePage(0, 0, data, nil))
	require.True(t, bytes.Equal(f.PEB(0)[0:512], data))
	require.True(t, bytes.Equal(f.PEB(0)[512:], bytes.Repeat([]byte{0xFF}, 4096-512)))
}

func TestFakeOOBRecordedOnlyWhenGiven(t *testing.T) {
	f := NewFake(testGeom())
	require.Nil(t, f.OOB(0))
	marker := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, f.WritePage(0, 0, nil, marker))
	require.True(t, bytes.Equal(f.OOB(0), marker))
}

func TestFakeErasePutsOOBBack(t *testing.T) {
	f := NewFake(testGeom())
	require.NoError(t, f.WritePage(0, 0, nil, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, f.Erase(0))
	require.Nil(t, f.OOB(0))
	require.True(t, bytes.Equal(f.PEB(0), bytes.Repeat([]byte{0xFF}, 4096)))
}

func TestFakeMarkBadForTestAndMarkBad(t *testing.T) {
	f := NewFake(testGeom())
	f.MarkBadForTest(3)
	bad, err := f.IsBad(3)
	require.NoError(t, err)
	require.True(t, bad)

	require.NoError(t, f.MarkBad(5))
	bad, err = f.IsBad(5)
	require.NoError(t, err)
	require.True(t, bad)
}

func TestFakeIsBadFailureInjection(t *testing.T) {
	f := NewFake(testGeom())
	f.FailIsBad = map[int]bool{2: true}
	_, err := f.IsBad(2)
	require.Error(t, err)
}

func TestFakeWriteFailureInjection(t *testing.T) {
	f := NewFake(testGeom())
	f.FailWrite = func(peb, pageOffset int) bool { return peb == 1 }
	err := f.WritePage(1, 0, bytes.Repeat([]byte{0x01}, 512), nil)
	require.Error(t, err)
	require.True(t, bytes.Equal(f.PEB(1), bytes.Repeat([]byte{0xFF}, 4096)), "failed write must not mutate content")
}

func TestFakeOutOfRangePEB(t *testing.T) {
	f := NewFake(testGeom())
	require.Error(t, f.Erase(8))
	require.Error(t, f.WritePage(-1, 0, nil, nil))
	require.Error(t, f.MarkBad(100))
}
