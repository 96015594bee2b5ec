package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRunID generates a unique run identifier.
// Format: run-YYYYMMDDTHHmmss-XXXXXXXX (UTC timestamp + 8 hex random chars).
func NewRunID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// the timestamp alone rather than aborting a run over an ID.
		return fmt.Sprintf("run-%s", time.Now().UTC().Format("20060102T150405.000000"))
	}
	return fmt.Sprintf("run-%s-%s",
		time.Now().UTC().Format("20060102T150405"),
		hex.EncodeToString(buf))
}
