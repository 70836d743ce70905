package game

import (
	"time"
)

// Phase is the lifecycle position of a round. Phases only advance forward;
// Crashed is terminal for a round instance.
type Phase string

const (
	PhaseWaiting      Phase = "WAITING"
	PhaseCountingDown Phase = "COUNTING_DOWN"
	PhaseRunning      Phase = "RUNNING"
	PhaseCrashed      Phase = "CRASHED"
)

// SeedCommitment is one server seed and its published hash. The raw seed
// stays secret until Revealed is set; commitments are never deleted so the
// reveal history stays auditable.
type SeedCommitment struct {
	ID             string     `json:"id"`
	ServerSeed     string     `json:"-"`
	ServerSeedHash string     `json:"server_seed_hash"`
	Revealed       bool       `json:"revealed"`
	RevealedAt     *time.Time `json:"revealed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Bet is a single wallet's stake in a round. A wallet holds at most one
// bet per round; the bet is owned by its round and mutated only by the
// engine goroutine.
type Bet struct {
	WalletAddress string    `json:"wallet_address"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CashedOut     bool      `json:"cashed_out"`
	AutoCashout   float64   `json:"auto_cashout,omitempty"`
	PlacedAt      time.Time `json:"placed_at"`
}

// Round is one complete game: its provably-fair material, crash point and
// ordered bet list. CrashMultiplier is fixed once derived and hidden from
// clients until the crash.
type Round struct {
	ID              string    `json:"id"`
	Nonce           int64     `json:"nonce"`
	StartTime       time.Time `json:"start_time"`
	SeedHash        string    `json:"seed_hash"`
	RoundHash       string    `json:"-"`
	CrashMultiplier float64   `json:"-"`
	Phase           Phase     `json:"phase"`
	Bets            []Bet     `json:"bets"`
}

// ActiveBet returns the index of the wallet's non-settled bet in this
// round, or -1. Bets are few per round; a linear scan is fine.
func (r *Round) ActiveBet(wallet string) int {
	for i := range r.Bets {
		if r.Bets[i].WalletAddress == wallet {
			return i
		}
	}
	return -1
}

// User is a player identified by wallet address, with one balance per
// currency. Balances are owned by the durable store; the engine reads and
// conditionally adjusts them.
type User struct {
	WalletAddress string             `json:"wallet_address"`
	Balances      map[string]float64 `json:"balances"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ClockState is a point-in-time snapshot of the engine clock: the single
// authoritative phase/multiplier state reset at each round start and
// advanced only by the engine's own tick loop.
type ClockState struct {
	Phase             Phase   `json:"phase"`
	CurrentMultiplier float64 `json:"current_multiplier"`
	Elapsed           float64 `json:"elapsed"`
	ActiveRoundID     string  `json:"active_round_id"`
}

// BetRequest asks the engine to stake an amount on the current round.
type BetRequest struct {
	WalletAddress string           `json:"wallet_address"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	AutoCashout   float64          `json:"auto_cashout,omitempty"`
	ResponseChan  chan BetResponse `json:"-"`
}

type BetResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Balance float64 `json:"balance,omitempty"`
}

// CashoutRequest asks the engine to settle the wallet's active bet at the
// multiplier in effect when the request is accepted.
type CashoutRequest struct {
	WalletAddress string               `json:"wallet_address"`
	ResponseChan  chan CashoutResponse `json:"-"`
}

type CashoutResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Winnings   float64 `json:"winnings,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
}
