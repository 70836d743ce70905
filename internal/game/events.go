package game

// Event kinds broadcast to every connected client. The names and payload
// fields are part of the wire contract with game clients.
const (
	EventGameWaiting    = "GAME_WAITING"
	EventCountdown      = "COUNTDOWN"
	EventRoundStarted   = "ROUND_STARTED"
	EventMultiply       = "CNT_MULTIPLY"
	EventRoundCrashed   = "ROUND_CRASHED"
	EventSeedRevealed   = "SEED_REVEALED"
	EventPlayerBet      = "PLAYER_BET"
	EventPlayerCashout  = "PLAYER_CASHED_OUT"
	EventBetPlaced      = "BET_PLACED"
	EventCashoutSuccess = "CASHOUT_SUCCESS"
	EventError          = "ERROR"
)

// WSMessage is the envelope for every websocket frame, outbound and inbound.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type GameWaitingPayload struct {
	Message string `json:"message"`
}

type CountdownPayload struct {
	Time int `json:"time"`
}

type RoundStartedPayload struct {
	RoundID  string `json:"roundId"`
	SeedHash string `json:"seedHash"`
}

// MultiplyPayload carries the live multiplier. Multiplier is a 2-decimal
// string so clients never see float formatting drift.
type MultiplyPayload struct {
	Multiplier string  `json:"multiplier"`
	Time       float64 `json:"time"`
}

type RoundCrashedPayload struct {
	Multiplier string `json:"multiplier"`
}

type SeedRevealedPayload struct {
	ServerSeed     string `json:"serverSeed"`
	ServerSeedHash string `json:"serverSeedHash"`
}

type PlayerBetPayload struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

type PlayerCashoutPayload struct {
	WalletAddress string  `json:"walletAddress"`
	Winnings      float64 `json:"winnings"`
	Multiplier    float64 `json:"multiplier"`
}
