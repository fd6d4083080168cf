package record

import "hash/crc32"

// checksum computes the CRC-32 (IEEE polynomial) over a record's on-disk
// bytes minus the leading CRC field itself.
func checksum(fieldsAndPayload []byte) uint32 {
	return crc32.ChecksumIEEE(fieldsAndPayload)
}
