package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
)

const (
	// MIN_MULTIPLIER is the lowest crash point a round can have. The
	// instant-crash branch lands here; a round never resolves at 1.00x.
	MIN_MULTIPLIER = 1.01
	MAX_MULTIPLIER = 1000000.00

	// One round in INSTANT_CRASH_MOD crashes at the minimum multiplier.
	// This is the house edge.
	INSTANT_CRASH_MOD = 33
)

// CrashPoint derives a round's crash multiplier from the committed server
// seed, the client seed, and the round nonce. It returns the multiplier and
// the round hash so both can be persisted and later verified by players.
//
// The derivation: SHA-256 over "serverSeed:clientSeed:nonce", the first 13
// hex characters taken as a 52-bit integer h, and with e = 2^52 the
// multiplier is floor((100*e - h) / (e - h)) / 100, clamped to
// [MIN_MULTIPLIER, MAX_MULTIPLIER]. When h mod 33 == 0 the round is an
// instant crash at MIN_MULTIPLIER.
func CrashPoint(serverSeed, clientSeed string, nonce int64) (float64, string) {
	roundHash := HashRound(serverSeed, clientSeed, nonce)
	return multiplierFromHash(roundHash), roundHash
}

// HashRound computes the hex SHA-256 digest of the round's seed material.
func HashRound(serverSeed, clientSeed string, nonce int64) string {
	data := fmt.Sprintf("%s:%s:%d", serverSeed, clientSeed, nonce)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// multiplierFromHash maps a round hash to its crash multiplier. Integer
// arithmetic throughout so the floor is exact at every boundary.
func multiplierFromHash(roundHash string) float64 {
	h, err := strconv.ParseUint(roundHash[:13], 16, 64)
	if err != nil {
		// Only reachable with a non-hex input, which only a programming
		// error can produce.
		log.Fatalf("[FAIR] Malformed round hash %q: %v", roundHash, err)
	}

	const e = uint64(1) << 52

	if h%INSTANT_CRASH_MOD == 0 {
		return MIN_MULTIPLIER
	}

	multiplier := float64((100*e-h)/(e-h)) / 100.0

	if multiplier < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	if multiplier > MAX_MULTIPLIER {
		return MAX_MULTIPLIER
	}
	return multiplier
}

// GenerateSeed creates a cryptographically secure 32-byte random seed,
// hex encoded. Entropy failure is fatal: falling back to a weaker source
// would silently break the fairness guarantee.
func GenerateSeed() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("[FAIR] Entropy source failed: %v", err)
	}
	return hex.EncodeToString(b)
}

// HashCommitment creates the SHA-256 hash of a seed for publication before
// the seed is used.
func HashCommitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// VerifyCrashPoint lets players check a finished round: recompute the
// multiplier from the revealed seed and compare against the broadcast value.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int64, claimedMultiplier float64) bool {
	calculated, _ := CrashPoint(serverSeed, clientSeed, nonce)
	diff := calculated - claimedMultiplier
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.005
}
