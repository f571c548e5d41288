package wire

import "hash/crc32"

// crc32Checksum computes the standard IEEE CRC32 used for the frame
// trailer. hash/crc32 is the idiomatic stdlib choice here: the pack carries
// no third-party CRC32 implementation that improves on it (unlike the
// header's CRC16, which has no standard-library equivalent at all).
func crc32Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
