package ubi

import "hash/crc32"

// crcOf returns the on-flash UBI CRC-32 of data: the standard IEEE
// CRC-32 of data, complemented by the UBI seed. UBI's kernel-side
// crc32() accumulates starting from CRC32Init and stores the raw
// accumulator value with no trailing complement, which is equivalent
// to XOR-ing the zero-seeded IEEE checksum with CRC32Init.
func crcOf(data []byte) uint32 {
	return CRC32Init ^ crc32.ChecksumIEEE(data)
}
