package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/rand/v2"
)

// MaxSeed is the exclusive upper bound of generated player seeds.
const MaxSeed = math.MaxInt32

// NewSeed draws a fresh player seed in [0, MaxSeed). It does not need to be
// unpredictable to an attacker; it only has to differ between players.
func NewSeed() int32 {
	return rand.Int32N(MaxSeed)
}

// Fingerprint returns a short SHA-256 digest of the seed for log lines.
// Raw seeds must never be logged because they reveal the whole answer key.
func Fingerprint(seed int32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(seed))
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])[:16]
}
