package game

import (
	"context"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timing contract. Compatible clients rely on these values.
const (
	COUNTDOWN_TICKS   = 10
	COUNTDOWN_TICK    = 1 * time.Second
	RUN_TICK_INTERVAL = 50 * time.Millisecond
	CRASH_COOLDOWN    = 5 * time.Second
	GROWTH_DOUBLING   = 10 * time.Second

	MIN_BET_AMOUNT = 1.0
	MAX_BET_AMOUNT = 10000.0

	REQUEST_TIMEOUT = 5 * time.Second
)

// Broadcaster delivers engine events to connected observers. *Hub is the
// production implementation.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// Config carries the engine timings and the shared client seed. Tests
// compress the timings; production uses DefaultConfig.
type Config struct {
	CountdownTicks int
	CountdownTick  time.Duration
	TickInterval   time.Duration
	Cooldown       time.Duration

	// DoublingPeriod is the curve time-scale: the multiplier doubles once
	// per period. Timer-only compression leaves rounds running on wall
	// time, so tests shrink this too.
	DoublingPeriod time.Duration

	ClientSeed string
}

func DefaultConfig() Config {
	return Config{
		CountdownTicks: COUNTDOWN_TICKS,
		CountdownTick:  COUNTDOWN_TICK,
		TickInterval:   RUN_TICK_INTERVAL,
		Cooldown:       CRASH_COOLDOWN,
		DoublingPeriod: GROWTH_DOUBLING,
		ClientSeed:     "global_client_seed",
	}
}

// Engine drives rounds through waiting -> counting down -> running ->
// crashed, forever. One goroutine (run) owns the round, the clock state and
// every balance mutation; bets and cashouts arrive over channels and are
// answered on per-request response channels. That single ownership is what
// gives per-wallet serialization and freshest-phase reads without any
// per-wallet locking.
type Engine struct {
	store Store
	seeds *SeedManager
	bc    Broadcaster
	cfg   Config

	mu    sync.RWMutex
	round *Round
	clock ClockState

	betCh     chan BetRequest
	cashoutCh chan CashoutRequest
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}
}

func NewEngine(store Store, bc Broadcaster, cfg Config) *Engine {
	if cfg.DoublingPeriod <= 0 {
		cfg.DoublingPeriod = GROWTH_DOUBLING
	}
	return &Engine{
		store:     store,
		seeds:     NewSeedManager(store),
		bc:        bc,
		cfg:       cfg,
		betCh:     make(chan BetRequest, 1000),
		cashoutCh: make(chan CashoutRequest, 1000),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (e *Engine) Start() {
	go e.run()
}

// Stop shuts the engine down after the current select step. Safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
}

// State snapshots the engine clock for HTTP reads.
func (e *Engine) State() ClockState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock
}

// CurrentRound returns a copy of the live round, or nil between rounds.
func (e *Engine) CurrentRound() *Round {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.round == nil {
		return nil
	}
	cp := *e.round
	cp.Bets = append([]Bet(nil), e.round.Bets...)
	return &cp
}

// PlaceBet submits a bet and waits for the engine's verdict.
func (e *Engine) PlaceBet(req BetRequest) BetResponse {
	respChan := make(chan BetResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.betCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(REQUEST_TIMEOUT):
			return BetResponse{Success: false, Message: "bet timed out"}
		}
	default:
		return BetResponse{Success: false, Message: "bet queue full"}
	}
}

// Cashout submits a cashout and waits for the engine's verdict.
func (e *Engine) Cashout(req CashoutRequest) CashoutResponse {
	respChan := make(chan CashoutResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.cashoutCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(REQUEST_TIMEOUT):
			return CashoutResponse{Success: false, Message: "cashout timed out"}
		}
	default:
		return CashoutResponse{Success: false, Message: "cashout queue full"}
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			log.Println("[ENGINE] Stopped")
			return
		default:
		}

		if err := e.runRound(); err != nil {
			// Never retry a failed transition: re-deriving a crash point
			// against an already-observed nonce is worse than losing the
			// round. Cool down and start fresh.
			log.Printf("[ENGINE] Round abandoned: %v", err)
		}

		if !e.cooldown() {
			log.Println("[ENGINE] Stopped")
			return
		}
	}
}

// cooldown waits out the post-crash pause while still answering (rejecting)
// any bet or cashout that arrives between rounds. Returns false on stop.
func (e *Engine) cooldown() bool {
	timer := time.NewTimer(e.cfg.Cooldown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case req := <-e.betCh:
			rejectBet(req, "bets are closed")
		case req := <-e.cashoutCh:
			rejectCashout(req, "round is not running")
		case <-e.stopCh:
			return false
		}
	}
}

// runRound executes one complete round. Any persistence failure aborts the
// round without touching player balances; outstanding bets are logged for
// manual reconciliation.
func (e *Engine) runRound() error {
	ctx := context.Background()

	seed, err := e.seeds.EnsureActiveSeed(ctx)
	if err != nil {
		return err
	}

	round := &Round{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		SeedHash:  seed.ServerSeedHash,
		Phase:     PhaseWaiting,
		Bets:      []Bet{},
	}
	if err := e.store.CreateRound(ctx, round); err != nil {
		return err
	}

	e.resetClock(round)
	e.bc.Broadcast(EventGameWaiting, GameWaitingPayload{Message: "Place your bets"})
	log.Printf("[ENGINE] Round %s waiting (seed hash %s...)", round.ID, round.SeedHash[:16])

	// Waiting phase: a fixed countdown window in one-second ticks, each
	// broadcast. Bets are accepted, cashouts rejected.
	for t := e.cfg.CountdownTicks; t > 0; t-- {
		e.bc.Broadcast(EventCountdown, CountdownPayload{Time: t})

		timer := time.NewTimer(e.cfg.CountdownTick)
		ticking := true
		for ticking {
			select {
			case <-timer.C:
				ticking = false
			case req := <-e.betCh:
				e.processBet(ctx, req)
			case req := <-e.cashoutCh:
				rejectCashout(req, "round is not running")
			case <-e.stopCh:
				timer.Stop()
				e.logAbandoned(round)
				return nil
			}
		}
	}

	// Countdown elapsed: close betting, fix the crash point. The nonce is
	// the monotone round count; the derived multiplier is persisted before
	// any client learns the round has started.
	e.setPhase(PhaseCountingDown)

	nonce, err := e.store.CountRounds(ctx)
	if err != nil {
		e.abandon(round, err)
		return err
	}
	crashPoint, roundHash := CrashPoint(seed.ServerSeed, e.cfg.ClientSeed, nonce)

	e.mu.Lock()
	round.Nonce = nonce
	round.CrashMultiplier = crashPoint
	round.RoundHash = roundHash
	round.StartTime = time.Now()
	e.mu.Unlock()

	if err := e.store.SaveRound(ctx, round); err != nil {
		e.abandon(round, err)
		return err
	}

	e.setPhase(PhaseRunning)
	e.bc.Broadcast(EventRoundStarted, RoundStartedPayload{RoundID: round.ID, SeedHash: round.SeedHash})
	log.Printf("[ENGINE] Round %s running (nonce %d, crash point hidden)", round.ID, nonce)

	// Running phase: the tick loop is the only writer of the multiplier.
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ticker.C:
			sinceStart := time.Since(start)
			elapsed := sinceStart.Seconds()
			mult := multiplierAfter(sinceStart, e.cfg.DoublingPeriod)

			if mult >= crashPoint {
				e.finishRound(ctx, round, elapsed)
				return nil
			}

			e.advanceClock(mult, elapsed)
			e.bc.Broadcast(EventMultiply, MultiplyPayload{
				Multiplier: FormatMultiplier(mult),
				Time:       elapsed,
			})
			e.runAutoCashouts(ctx, mult)

		case req := <-e.betCh:
			rejectBet(req, "bets are closed")
		case req := <-e.cashoutCh:
			e.processCashout(ctx, req)
		case <-e.stopCh:
			e.logAbandoned(round)
			return nil
		}
	}
}

// finishRound marks the crash, persists the final state and evaluates the
// seed reveal policy once for the completed round.
func (e *Engine) finishRound(ctx context.Context, round *Round, elapsed float64) {
	e.mu.Lock()
	round.Phase = PhaseCrashed
	e.clock.Phase = PhaseCrashed
	e.clock.CurrentMultiplier = round.CrashMultiplier
	e.clock.Elapsed = elapsed
	crashPoint := round.CrashMultiplier
	e.mu.Unlock()

	e.bc.Broadcast(EventRoundCrashed, RoundCrashedPayload{Multiplier: FormatMultiplier(crashPoint)})
	log.Printf("[ENGINE] Round %s crashed at %.2fx (%d bets)", round.ID, crashPoint, len(round.Bets))

	// Losers settle implicitly: their balances are simply never credited.
	if err := e.store.SaveRound(ctx, round); err != nil {
		log.Printf("[ENGINE] Failed to persist crashed round %s: %v", round.ID, err)
		e.logAbandoned(round)
	}

	revealed, err := e.seeds.MaybeReveal(ctx, round.Nonce)
	if err != nil {
		log.Printf("[ENGINE] Seed reveal failed: %v", err)
		return
	}
	if revealed != nil {
		e.bc.Broadcast(EventSeedRevealed, SeedRevealedPayload{
			ServerSeed:     revealed.ServerSeed,
			ServerSeedHash: revealed.ServerSeedHash,
		})
	}
}

// abandon terminates a round after a failed transition. Balances already
// debited for this round are left to manual reconciliation, never silently
// re-credited by a half-dead engine.
func (e *Engine) abandon(round *Round, err error) {
	e.setPhase(PhaseCrashed)
	log.Printf("[ENGINE] Abandoning round %s: %v", round.ID, err)
	e.logAbandoned(round)
}

func (e *Engine) logAbandoned(round *Round) {
	for i := range round.Bets {
		if !round.Bets[i].CashedOut {
			log.Printf("[ENGINE] Reconcile: wallet %s bet %.2f %s on abandoned round %s",
				round.Bets[i].WalletAddress, round.Bets[i].Amount, round.Bets[i].Currency, round.ID)
		}
	}
}

func (e *Engine) resetClock(round *Round) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = round
	e.clock = ClockState{
		Phase:             round.Phase,
		CurrentMultiplier: 1.0,
		Elapsed:           0,
		ActiveRoundID:     round.ID,
	}
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round.Phase = p
	e.clock.Phase = p
}

func (e *Engine) advanceClock(mult, elapsed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.CurrentMultiplier = mult
	e.clock.Elapsed = elapsed
}

// MultiplierAt computes the live multiplier for an elapsed run time on the
// production curve: continuous exponential growth doubling every
// GROWTH_DOUBLING, floored to two decimals so it matches the payout
// rounding policy.
func MultiplierAt(elapsed float64) float64 {
	return multiplierAfter(time.Duration(elapsed*float64(time.Second)), GROWTH_DOUBLING)
}

// multiplierAfter is the curve itself, parameterized by the doubling
// period the engine runs on.
func multiplierAfter(sinceStart, doubling time.Duration) float64 {
	m := math.Pow(2, float64(sinceStart)/float64(doubling))
	return math.Floor(m*100) / 100
}

// FormatMultiplier renders a multiplier as the 2-decimal string clients
// display.
func FormatMultiplier(m float64) string {
	return strconv.FormatFloat(m, 'f', 2, 64)
}
