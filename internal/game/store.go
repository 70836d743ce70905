package game

import (
	"context"
	"errors"
)

// ErrNotFound reports that a lookup matched nothing. Store implementations
// must keep it distinct from transient I/O failures: a missing row is a
// player-facing rejection, a dead store abandons the in-flight round.
var ErrNotFound = errors.New("not found")

// Store is the durable persistence contract the engine runs against. The
// production implementation lives in internal/database; tests use an
// in-memory one.
type Store interface {
	FindUnrevealedSeed(ctx context.Context) (*SeedCommitment, error)
	SaveSeed(ctx context.Context, seed *SeedCommitment) error

	CreateRound(ctx context.Context, round *Round) error
	SaveRound(ctx context.Context, round *Round) error
	FindRoundByID(ctx context.Context, id string) (*Round, error)
	FindLatestRound(ctx context.Context) (*Round, error)
	CountRounds(ctx context.Context) (int64, error)

	FindUserByWallet(ctx context.Context, wallet string) (*User, error)
	SaveUser(ctx context.Context, user *User) error
}
