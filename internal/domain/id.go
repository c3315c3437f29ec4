package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// generateID produces a deterministic ID from an event's identifying fields,
// so re-ingesting the same record yields the same ID.
func generateID(category Category, place string, lat, lon float64, when string) string {
	input := fmt.Sprintf("%s|%s|%.4f|%.4f|%s", category, place, lat, lon, when)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if category == "" {
		return short
	}
	return string(category) + "-" + short
}
