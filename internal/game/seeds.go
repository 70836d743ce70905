package game

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// SEED_REVEAL_CADENCE is how many settled rounds a server seed covers
// before it is published for verification.
const SEED_REVEAL_CADENCE = 100

// SeedManager owns the provably-fair commitment scheme: one unrevealed
// server seed at a time, its hash published before any round uses it, the
// raw seed released on a fixed cadence. Only the engine goroutine calls
// into it, which is what keeps commitment creation single-writer.
type SeedManager struct {
	store Store
}

func NewSeedManager(store Store) *SeedManager {
	return &SeedManager{store: store}
}

// EnsureActiveSeed returns the current unrevealed commitment, creating and
// persisting a fresh one when none exists (first boot, or right after a
// reveal).
func (sm *SeedManager) EnsureActiveSeed(ctx context.Context) (*SeedCommitment, error) {
	seed, err := sm.store.FindUnrevealedSeed(ctx)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	raw := GenerateSeed()
	commitment := &SeedCommitment{
		ID:             uuid.NewString(),
		ServerSeed:     raw,
		ServerSeedHash: HashCommitment(raw),
		CreatedAt:      time.Now(),
	}
	if err := sm.store.SaveSeed(ctx, commitment); err != nil {
		return nil, err
	}

	log.Printf("[FAIR] New seed committed: %s...", commitment.ServerSeedHash[:16])
	return commitment, nil
}

// MaybeReveal publishes the active seed once every SEED_REVEAL_CADENCE
// settled rounds. Outside the cadence, or when the commitment was already
// revealed, it returns nil: revealing is idempotent, the raw seed goes out
// exactly once per commitment.
func (sm *SeedManager) MaybeReveal(ctx context.Context, roundsSettled int64) (*SeedCommitment, error) {
	if roundsSettled == 0 || roundsSettled%SEED_REVEAL_CADENCE != 0 {
		return nil, nil
	}

	seed, err := sm.store.FindUnrevealedSeed(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seed.Revealed = true
	seed.RevealedAt = &now
	if err := sm.store.SaveSeed(ctx, seed); err != nil {
		return nil, err
	}

	log.Printf("[FAIR] Seed revealed after %d rounds: %s...", roundsSettled, seed.ServerSeedHash[:16])
	return seed, nil
}
