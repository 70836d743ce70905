package game

import (
	"context"
	"errors"
	"sync"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store for engine and seed tests, with switches
// to simulate a store outage per operation.
type memStore struct {
	mu sync.Mutex

	seeds  []*SeedCommitment
	rounds map[string]*Round
	order  []string
	users  map[string]*User

	// countBase offsets CountRounds so tests can start near a reveal
	// boundary without creating a hundred rounds.
	countBase int64

	failSaveSeed    bool
	failSaveUser    bool
	failCreateRound bool
	failSaveRound   bool
	failCountRound  bool
}

func newMemStore() *memStore {
	return &memStore{
		rounds: make(map[string]*Round),
		users:  make(map[string]*User),
	}
}

func (m *memStore) FindUnrevealedSeed(ctx context.Context) (*SeedCommitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.seeds) - 1; i >= 0; i-- {
		if !m.seeds[i].Revealed {
			cp := *m.seeds[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) SaveSeed(ctx context.Context, seed *SeedCommitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveSeed {
		return errStoreDown
	}
	cp := *seed
	for i := range m.seeds {
		if m.seeds[i].ID == seed.ID {
			m.seeds[i] = &cp
			return nil
		}
	}
	m.seeds = append(m.seeds, &cp)
	return nil
}

func (m *memStore) CreateRound(ctx context.Context, round *Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateRound {
		return errStoreDown
	}
	cp := *round
	cp.Bets = append([]Bet(nil), round.Bets...)
	m.rounds[round.ID] = &cp
	m.order = append(m.order, round.ID)
	return nil
}

func (m *memStore) SaveRound(ctx context.Context, round *Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveRound {
		return errStoreDown
	}
	if _, ok := m.rounds[round.ID]; !ok {
		return ErrNotFound
	}
	cp := *round
	cp.Bets = append([]Bet(nil), round.Bets...)
	m.rounds[round.ID] = &cp
	return nil
}

func (m *memStore) FindRoundByID(ctx context.Context, id string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *round
	cp.Bets = append([]Bet(nil), round.Bets...)
	return &cp, nil
}

func (m *memStore) FindLatestRound(ctx context.Context) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil, ErrNotFound
	}
	round := m.rounds[m.order[len(m.order)-1]]
	cp := *round
	cp.Bets = append([]Bet(nil), round.Bets...)
	return &cp, nil
}

func (m *memStore) CountRounds(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCountRound {
		return 0, errStoreDown
	}
	return m.countBase + int64(len(m.order)), nil
}

func (m *memStore) FindUserByWallet(ctx context.Context, wallet string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[wallet]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	cp.Balances = make(map[string]float64, len(user.Balances))
	for k, v := range user.Balances {
		cp.Balances[k] = v
	}
	return &cp, nil
}

func (m *memStore) SaveUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveUser {
		return errStoreDown
	}
	cp := *user
	cp.Balances = make(map[string]float64, len(user.Balances))
	for k, v := range user.Balances {
		cp.Balances[k] = v
	}
	m.users[user.WalletAddress] = &cp
	return nil
}

func (m *memStore) balance(wallet, currency string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[wallet]
	if !ok {
		return 0
	}
	return user.Balances[currency]
}

func (m *memStore) seedUser(wallet, currency string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[wallet] = &User{
		WalletAddress: wallet,
		Balances:      map[string]float64{currency: amount},
	}
}

// recorder is a Broadcaster that remembers every event, for asserting on
// order and payloads.
type recorder struct {
	mu     sync.Mutex
	events []WSMessage
}

func (r *recorder) Broadcast(msgType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, WSMessage{Type: msgType, Data: payload})
}

func (r *recorder) byType(msgType string) []WSMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []WSMessage
	for _, ev := range r.events {
		if ev.Type == msgType {
			out = append(out, ev)
		}
	}
	return out
}
