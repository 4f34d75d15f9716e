// Package checksum computes the CRC32 values that guard every logged command.
package checksum

import (
	"hash/crc32"
)

// CRC32 computes checksums over one fixed table. Safe for concurrent use.
type CRC32 struct {
	table *crc32.Table
}

// NewCRC32IEEE is the checksum used by the on-disk record format.
func NewCRC32IEEE() *CRC32 {
	return &CRC32{table: crc32.IEEETable}
}

func (c *CRC32) Calculate(data []byte) uint32 {
	return crc32.Checksum(data, c.table)
}

func (c *CRC32) Verify(data []byte, expected uint32) bool {
	return c.Calculate(data) == expected
}
