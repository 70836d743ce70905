package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// The bet ledger. Everything in this file runs on the engine goroutine,
// which is the only writer of balances, bets and the clock; per-wallet
// atomicity follows from that single ownership, not from locking.

func rejectBet(req BetRequest, reason string) {
	if req.ResponseChan != nil {
		req.ResponseChan <- BetResponse{Success: false, Message: reason}
	}
}

func rejectCashout(req CashoutRequest, reason string) {
	if req.ResponseChan != nil {
		req.ResponseChan <- CashoutResponse{Success: false, Message: reason}
	}
}

// processBet validates and settles a bet against the current round: balance
// decrement and bet append succeed or fail together.
func (e *Engine) processBet(ctx context.Context, req BetRequest) {
	resp := BetResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	if req.WalletAddress == "" {
		resp.Message = "wallet address is required"
		return
	}
	if req.Currency == "" {
		resp.Message = "currency is required"
		return
	}
	if req.Amount < MIN_BET_AMOUNT || req.Amount > MAX_BET_AMOUNT {
		resp.Message = fmt.Sprintf("bet must be between %.2f and %.2f", MIN_BET_AMOUNT, MAX_BET_AMOUNT)
		return
	}

	if e.clock.Phase != PhaseWaiting {
		resp.Message = "bets are closed"
		return
	}
	if e.round.ActiveBet(req.WalletAddress) >= 0 {
		resp.Message = "wallet already has an active bet this round"
		return
	}

	user, err := e.store.FindUserByWallet(ctx, req.WalletAddress)
	if errors.Is(err, ErrNotFound) {
		resp.Message = "unknown wallet"
		return
	}
	if err != nil {
		resp.Message = "service unavailable, try again"
		return
	}

	balance := user.Balances[req.Currency]
	if balance < req.Amount {
		resp.Message = "insufficient balance"
		resp.Balance = balance
		return
	}

	user.Balances[req.Currency] = balance - req.Amount
	if err := e.store.SaveUser(ctx, user); err != nil {
		resp.Message = "service unavailable, try again"
		return
	}

	bet := Bet{
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		Currency:      req.Currency,
		AutoCashout:   req.AutoCashout,
		PlacedAt:      time.Now(),
	}

	e.mu.Lock()
	e.round.Bets = append(e.round.Bets, bet)
	e.mu.Unlock()

	if err := e.store.SaveRound(ctx, e.round); err != nil {
		// Undo both halves so no money is deducted without a recorded bet.
		e.mu.Lock()
		e.round.Bets = e.round.Bets[:len(e.round.Bets)-1]
		e.mu.Unlock()

		user.Balances[req.Currency] = balance
		if rbErr := e.store.SaveUser(ctx, user); rbErr != nil {
			log.Printf("[BET] Reconcile: failed to re-credit %.2f %s to %s: %v",
				req.Amount, req.Currency, req.WalletAddress, rbErr)
		}
		resp.Message = "service unavailable, try again"
		return
	}

	resp.Success = true
	resp.Message = "bet placed"
	resp.Balance = user.Balances[req.Currency]

	e.bc.Broadcast(EventPlayerBet, PlayerBetPayload{
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		Currency:      req.Currency,
	})
	log.Printf("[BET] %s staked %.2f %s on round %s", req.WalletAddress, req.Amount, req.Currency, e.round.ID)
}

// processCashout settles a cashout at the multiplier in effect the instant
// the request is accepted.
func (e *Engine) processCashout(ctx context.Context, req CashoutRequest) {
	resp := e.settleCashout(ctx, req.WalletAddress, e.clock.CurrentMultiplier)
	if req.ResponseChan != nil {
		req.ResponseChan <- resp
	}
}

// settleCashout credits the wallet and flags its bet as cashed out. Called
// only from the engine goroutine, so a second request for the same wallet
// always observes the flag set by the first.
func (e *Engine) settleCashout(ctx context.Context, wallet string, multiplier float64) CashoutResponse {
	if wallet == "" {
		return CashoutResponse{Success: false, Message: "wallet address is required"}
	}
	if e.clock.Phase != PhaseRunning {
		return CashoutResponse{Success: false, Message: "round is not running"}
	}

	idx := e.round.ActiveBet(wallet)
	if idx < 0 {
		return CashoutResponse{Success: false, Message: "no active bet this round"}
	}
	bet := &e.round.Bets[idx]
	if bet.CashedOut {
		return CashoutResponse{Success: false, Message: "already cashed out"}
	}

	winnings := Winnings(bet.Amount, multiplier)

	user, err := e.store.FindUserByWallet(ctx, wallet)
	if errors.Is(err, ErrNotFound) {
		return CashoutResponse{Success: false, Message: "unknown wallet"}
	}
	if err != nil {
		return CashoutResponse{Success: false, Message: "service unavailable, try again"}
	}

	user.Balances[bet.Currency] += winnings
	if err := e.store.SaveUser(ctx, user); err != nil {
		// Bet stays active; the player can try again before the crash.
		return CashoutResponse{Success: false, Message: "service unavailable, try again"}
	}

	e.mu.Lock()
	bet.CashedOut = true
	e.mu.Unlock()

	if err := e.store.SaveRound(ctx, e.round); err != nil {
		log.Printf("[CASHOUT] Reconcile: cashout for %s credited but round %s not persisted: %v",
			wallet, e.round.ID, err)
	}

	e.bc.Broadcast(EventPlayerCashout, PlayerCashoutPayload{
		WalletAddress: wallet,
		Winnings:      winnings,
		Multiplier:    multiplier,
	})
	log.Printf("[CASHOUT] %s cashed out at %.2fx for %.2f %s", wallet, multiplier, winnings, bet.Currency)

	return CashoutResponse{
		Success:    true,
		Message:    fmt.Sprintf("cashed out at %.2fx", multiplier),
		Multiplier: multiplier,
		Winnings:   winnings,
		Balance:    user.Balances[bet.Currency],
	}
}

// runAutoCashouts settles every bet whose auto-cashout target the current
// tick reached. Settlement uses the bet's own target, not the tick value,
// so a coarse tick never overpays an auto bet.
func (e *Engine) runAutoCashouts(ctx context.Context, multiplier float64) {
	for i := range e.round.Bets {
		bet := &e.round.Bets[i]
		if bet.CashedOut || bet.AutoCashout <= 0 || multiplier < bet.AutoCashout {
			continue
		}
		target := bet.AutoCashout
		if resp := e.settleCashout(ctx, bet.WalletAddress, target); !resp.Success {
			log.Printf("[CASHOUT] Auto-cashout for %s at %.2fx failed: %s", bet.WalletAddress, target, resp.Message)
		}
	}
}

// Winnings is the payout for a stake at a multiplier, floored to two
// decimals to match the crash-point rounding policy.
func Winnings(amount, multiplier float64) float64 {
	return math.Floor(amount*multiplier*100) / 100
}
