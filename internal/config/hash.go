package config

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// hashBytes returns the BLAKE3 hex digest of a config file's contents.
func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
