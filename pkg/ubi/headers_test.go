package ubi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestECHeaderRoundTrip(t *testing.T) {
	h := ECHeader{
		Version:         HeaderVersion,
		VIDHeaderOffset: 2048,
		DataOffset:      4096,
		ImageSeq:        0xdeadbeef,
	}
	buf := EncodeECHeader(h)
	require.Len(t, buf, ECHeaderSize)

	got, err := DecodeECHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestECHeaderBadMagic(t *testing.T) {
	buf := EncodeECHeader(ECHeader{Version: HeaderVersion})
	buf[0] ^= 0xFF
	_, err := DecodeECHeader(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestECHeaderBadCRC(t *testing.T) {
	buf := EncodeECHeader(ECHeader{Version: HeaderVersion, DataOffset: 4096})
	buf[10] ^= 0xFF
	_, err := DecodeECHeader(buf)
	require.ErrorIs(t, err, ErrBadCRC)
}

func TestVIDHeaderRoundTrip(t *testing.T) {
	h := VIDHeader{
		Version: HeaderVersion,
		VolType: VolDynamic,
		Compat:  CompatReject,
		VolID:   LayoutVolumeID,
		Lnum:    1,
	}
	buf := EncodeVIDHeader(h)
	require.Len(t, buf, VIDHeaderSize)

	got, empty, err := DecodeVIDHeader(buf)
	require.NoError(t, err)
	require.False(t, empty)
	require.Equal(t, h, got)
}

func TestVIDHeaderEmpty(t *testing.T) {
	buf := make([]byte, VIDHeaderSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	_, empty, err := DecodeVIDHeader(buf)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestVIDHeaderBadCRC(t *testing.T) {
	buf := EncodeVIDHeader(VIDHeader{Version: HeaderVersion, VolID: 3, Lnum: 2})
	buf[20] ^= 0xFF
	_, _, err := DecodeVIDHeader(buf)
	require.ErrorIs(t, err, ErrBadCRC)
}
