package game

import (
	"context"
	"testing"
)

// Helpers driving the ledger directly, the way the engine goroutine does.

func newLedgerEngine(t *testing.T, store *memStore, phase Phase) *Engine {
	t.Helper()
	e := NewEngine(store, &recorder{}, DefaultConfig())
	round := &Round{ID: "round-test", Phase: phase, SeedHash: "seedhash", Bets: []Bet{}}
	if err := store.CreateRound(context.Background(), round); err != nil {
		t.Fatalf("create round: %v", err)
	}
	e.resetClock(round)
	return e
}

func placeBet(e *Engine, wallet string, amount float64, currency string) BetResponse {
	ch := make(chan BetResponse, 1)
	e.processBet(context.Background(), BetRequest{
		WalletAddress: wallet,
		Amount:        amount,
		Currency:      currency,
		ResponseChan:  ch,
	})
	return <-ch
}

func TestPlaceBet(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)
	e := newLedgerEngine(t, store, PhaseWaiting)

	resp := placeBet(e, "wallet-a", 100, "USD")
	if !resp.Success {
		t.Fatalf("bet rejected: %s", resp.Message)
	}
	if resp.Balance != 900 {
		t.Errorf("balance after bet = %v, want 900", resp.Balance)
	}
	if store.balance("wallet-a", "USD") != 900 {
		t.Errorf("stored balance = %v, want 900", store.balance("wallet-a", "USD"))
	}
	if len(e.round.Bets) != 1 {
		t.Fatalf("round holds %d bets, want 1", len(e.round.Bets))
	}

	t.Run("duplicate bet rejected", func(t *testing.T) {
		resp := placeBet(e, "wallet-a", 50, "USD")
		if resp.Success {
			t.Fatal("second bet from the same wallet was accepted")
		}
		if resp.Message != "wallet already has an active bet this round" {
			t.Errorf("unexpected rejection reason: %q", resp.Message)
		}
		if store.balance("wallet-a", "USD") != 900 {
			t.Error("rejected bet moved money")
		}
	})
}

func TestPlaceBet_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		wallet   string
		amount   float64
		currency string
		balance  float64
		wantMsg  string
	}{
		{
			name: "wrong phase", phase: PhaseRunning,
			wallet: "w", amount: 100, currency: "USD", balance: 1000,
			wantMsg: "bets are closed",
		},
		{
			name: "insufficient balance", phase: PhaseWaiting,
			wallet: "w", amount: 100, currency: "USD", balance: 50,
			wantMsg: "insufficient balance",
		},
		{
			name: "wrong currency balance", phase: PhaseWaiting,
			wallet: "w", amount: 100, currency: "EUR", balance: 1000,
			wantMsg: "insufficient balance",
		},
		{
			name: "amount below minimum", phase: PhaseWaiting,
			wallet: "w", amount: 0.5, currency: "USD", balance: 1000,
			wantMsg: "bet must be between 1.00 and 10000.00",
		},
		{
			name: "missing wallet", phase: PhaseWaiting,
			wallet: "", amount: 100, currency: "USD", balance: 1000,
			wantMsg: "wallet address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.seedUser("w", "USD", tt.balance)
			e := newLedgerEngine(t, store, tt.phase)

			resp := placeBet(e, tt.wallet, tt.amount, tt.currency)
			if resp.Success {
				t.Fatal("bet should have been rejected")
			}
			if resp.Message != tt.wantMsg {
				t.Errorf("rejection reason = %q, want %q", resp.Message, tt.wantMsg)
			}
			if store.balance("w", "USD") != tt.balance {
				t.Error("rejected bet moved money")
			}
		})
	}
}

func TestPlaceBet_UnknownWallet(t *testing.T) {
	store := newMemStore()
	e := newLedgerEngine(t, store, PhaseWaiting)

	resp := placeBet(e, "nobody", 100, "USD")
	if resp.Success || resp.Message != "unknown wallet" {
		t.Errorf("got %+v, want unknown wallet rejection", resp)
	}
}

func TestPlaceBet_RollbackOnPersistFailure(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)
	e := newLedgerEngine(t, store, PhaseWaiting)

	// Round persistence dies after the debit: both halves must unwind.
	store.failSaveRound = true
	resp := placeBet(e, "wallet-a", 100, "USD")
	store.failSaveRound = false

	if resp.Success {
		t.Fatal("bet accepted while the store was down")
	}
	if store.balance("wallet-a", "USD") != 1000 {
		t.Errorf("balance = %v after rollback, want 1000", store.balance("wallet-a", "USD"))
	}
	if len(e.round.Bets) != 0 {
		t.Errorf("round holds %d bets after rollback, want 0", len(e.round.Bets))
	}
}

func TestCashout(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)
	e := newLedgerEngine(t, store, PhaseWaiting)

	if resp := placeBet(e, "wallet-a", 100, "USD"); !resp.Success {
		t.Fatalf("bet rejected: %s", resp.Message)
	}

	e.setPhase(PhaseRunning)
	e.advanceClock(2.50, 13.2)

	resp := e.settleCashout(context.Background(), "wallet-a", e.clock.CurrentMultiplier)
	if !resp.Success {
		t.Fatalf("cashout rejected: %s", resp.Message)
	}
	if resp.Winnings != 250.00 {
		t.Errorf("winnings = %v, want 250.00", resp.Winnings)
	}
	if resp.Multiplier != 2.50 {
		t.Errorf("multiplier = %v, want 2.50", resp.Multiplier)
	}
	if store.balance("wallet-a", "USD") != 1150 {
		t.Errorf("balance = %v, want 1150", store.balance("wallet-a", "USD"))
	}

	t.Run("second cashout rejected", func(t *testing.T) {
		resp := e.settleCashout(context.Background(), "wallet-a", 3.00)
		if resp.Success {
			t.Fatal("double cashout accepted")
		}
		if resp.Message != "already cashed out" {
			t.Errorf("rejection reason = %q, want %q", resp.Message, "already cashed out")
		}
		if store.balance("wallet-a", "USD") != 1150 {
			t.Error("double cashout moved money")
		}
	})
}

func TestCashout_Rejections(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)

	t.Run("wrong phase", func(t *testing.T) {
		e := newLedgerEngine(t, store, PhaseWaiting)
		resp := e.settleCashout(context.Background(), "wallet-a", 1.50)
		if resp.Success || resp.Message != "round is not running" {
			t.Errorf("got %+v, want phase rejection", resp)
		}
	})

	t.Run("no active bet", func(t *testing.T) {
		e := newLedgerEngine(t, store, PhaseRunning)
		resp := e.settleCashout(context.Background(), "wallet-a", 1.50)
		if resp.Success || resp.Message != "no active bet this round" {
			t.Errorf("got %+v, want missing-bet rejection", resp)
		}
	})
}

func TestCashout_BetStaysActiveOnCreditFailure(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)
	e := newLedgerEngine(t, store, PhaseWaiting)

	if resp := placeBet(e, "wallet-a", 100, "USD"); !resp.Success {
		t.Fatalf("bet rejected: %s", resp.Message)
	}
	e.setPhase(PhaseRunning)
	e.advanceClock(2.00, 10.0)

	store.failSaveUser = true
	resp := e.settleCashout(context.Background(), "wallet-a", 2.00)
	store.failSaveUser = false

	if resp.Success {
		t.Fatal("cashout accepted while the store was down")
	}
	if e.round.Bets[0].CashedOut {
		t.Error("bet flagged cashed out without a credit")
	}

	// The player can still cash out once the store recovers.
	retry := e.settleCashout(context.Background(), "wallet-a", 2.00)
	if !retry.Success {
		t.Fatalf("retry rejected: %s", retry.Message)
	}
	if store.balance("wallet-a", "USD") != 1100 {
		t.Errorf("balance = %v, want 1100", store.balance("wallet-a", "USD"))
	}
}

func TestLosingBet_BalanceUntouched(t *testing.T) {
	store := newMemStore()
	store.seedUser("wallet-a", "USD", 1000)
	e := newLedgerEngine(t, store, PhaseWaiting)

	if resp := placeBet(e, "wallet-a", 100, "USD"); !resp.Success {
		t.Fatalf("bet rejected: %s", resp.Message)
	}

	// A losing bet never transitions out of active; the only balance
	// movement is the original debit.
	e.setPhase(PhaseRunning)
	e.setPhase(PhaseCrashed)

	if store.balance("wallet-a", "USD") != 900 {
		t.Errorf("balance = %v, want 900", store.balance("wallet-a", "USD"))
	}
	if e.round.Bets[0].CashedOut {
		t.Error("losing bet marked cashed out")
	}
}

func TestWinnings(t *testing.T) {
	tests := []struct {
		amount     float64
		multiplier float64
		want       float64
	}{
		{100, 2.50, 250.00},
		{100, 1.01, 101.00},
		{33.33, 1.50, 49.99}, // floored, not rounded
		{1, 1.999, 1.99},
	}

	for _, tt := range tests {
		if got := Winnings(tt.amount, tt.multiplier); got != tt.want {
			t.Errorf("Winnings(%v, %v) = %v, want %v", tt.amount, tt.multiplier, got, tt.want)
		}
	}
}
