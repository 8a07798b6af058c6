// Package checksum hashes metadata documents. Every storage backend reports
// the same lowercase hex SHA-256, whether it hashes a buffer on Put or streams
// an existing object on Stat.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SHA256Hex hashes data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexReader hashes everything r yields until EOF.
func SHA256HexReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
