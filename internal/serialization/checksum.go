package serialization

import (
	"crypto/sha256"
	"fmt"
)

// dataChecksum hashes the tensor data section. Headers are not covered.
func dataChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// verifyData reports ErrChecksumMismatch when data does not hash to stored.
func verifyData(data []byte, stored [ChecksumSize]byte) error {
	if got := dataChecksum(data); got != stored {
		return fmt.Errorf("%w: data section hashes to %x, header records %x", ErrChecksumMismatch, got[:4], stored[:4])
	}
	return nil
}
