package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// RandHex returns nbytes of hex-encoded randomness for session IDs and
// bridge tokens. If the system source fails it falls back to a timestamp so
// ID generation never blocks an escalation.
func RandHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
