package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"crash/internal/game"
)

// Service is the durable store: the engine's persistence contract plus the
// health and lifecycle surface the HTTP layer uses.
type Service interface {
	game.Store

	Health() map[string]string
	Close() error
}

type service struct {
	pool *pgxpool.Pool
}

var (
	database = os.Getenv("BLUEPRINT_DB_DATABASE")
	password = os.Getenv("BLUEPRINT_DB_PASSWORD")
	username = os.Getenv("BLUEPRINT_DB_USERNAME")
	port     = os.Getenv("BLUEPRINT_DB_PORT")
	host     = os.Getenv("BLUEPRINT_DB_HOST")
	schema   = os.Getenv("BLUEPRINT_DB_SCHEMA")

	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		log.Fatalf("[DB] Invalid connection config: %v", err)
	}

	dbInstance = &service{pool: pool}
	return dbInstance
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	poolStats := s.pool.Stat()
	stats["total_conns"] = strconv.FormatInt(int64(poolStats.TotalConns()), 10)
	stats["idle_conns"] = strconv.FormatInt(int64(poolStats.IdleConns()), 10)
	stats["acquired_conns"] = strconv.FormatInt(int64(poolStats.AcquiredConns()), 10)
	stats["acquire_count"] = strconv.FormatInt(poolStats.AcquireCount(), 10)

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnected from database: %s", database)
	s.pool.Close()
	return nil
}

// Seed commitments. The partial unique index on revealed = false makes a
// second concurrent unrevealed commitment a constraint violation instead of
// a silent fairness bug.

func (s *service) FindUnrevealedSeed(ctx context.Context) (*game.SeedCommitment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, server_seed, server_seed_hash, revealed, revealed_at, created_at
		FROM seeds WHERE revealed = false
		ORDER BY created_at DESC LIMIT 1`)

	var seed game.SeedCommitment
	err := row.Scan(&seed.ID, &seed.ServerSeed, &seed.ServerSeedHash, &seed.Revealed, &seed.RevealedAt, &seed.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *service) SaveSeed(ctx context.Context, seed *game.SeedCommitment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO seeds (id, server_seed, server_seed_hash, revealed, revealed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET revealed = EXCLUDED.revealed, revealed_at = EXCLUDED.revealed_at`,
		seed.ID, seed.ServerSeed, seed.ServerSeedHash, seed.Revealed, seed.RevealedAt, seed.CreatedAt)
	return err
}

// Rounds. The bet list travels as JSONB: it is owned and mutated by the
// engine in memory and only snapshotted here.

func (s *service) CreateRound(ctx context.Context, round *game.Round) error {
	bets, err := json.Marshal(round.Bets)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rounds (id, nonce, start_time, seed_hash, round_hash, crash_multiplier, phase, bets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		round.ID, round.Nonce, round.StartTime, round.SeedHash, round.RoundHash,
		round.CrashMultiplier, string(round.Phase), bets)
	return err
}

func (s *service) SaveRound(ctx context.Context, round *game.Round) error {
	bets, err := json.Marshal(round.Bets)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE rounds
		SET nonce = $2, start_time = $3, round_hash = $4, crash_multiplier = $5, phase = $6, bets = $7
		WHERE id = $1`,
		round.ID, round.Nonce, round.StartTime, round.RoundHash,
		round.CrashMultiplier, string(round.Phase), bets)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return game.ErrNotFound
	}
	return nil
}

func (s *service) FindRoundByID(ctx context.Context, id string) (*game.Round, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, nonce, start_time, seed_hash, round_hash, crash_multiplier, phase, bets
		FROM rounds WHERE id = $1`, id)
	return scanRound(row)
}

func (s *service) FindLatestRound(ctx context.Context) (*game.Round, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, nonce, start_time, seed_hash, round_hash, crash_multiplier, phase, bets
		FROM rounds ORDER BY start_time DESC LIMIT 1`)
	return scanRound(row)
}

func (s *service) CountRounds(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&count)
	return count, err
}

func scanRound(row pgx.Row) (*game.Round, error) {
	var round game.Round
	var phase string
	var bets []byte

	err := row.Scan(&round.ID, &round.Nonce, &round.StartTime, &round.SeedHash,
		&round.RoundHash, &round.CrashMultiplier, &phase, &bets)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	round.Phase = game.Phase(phase)
	if err := json.Unmarshal(bets, &round.Bets); err != nil {
		return nil, err
	}
	return &round, nil
}

// Users.

func (s *service) FindUserByWallet(ctx context.Context, wallet string) (*game.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet_address, balances, created_at FROM users WHERE wallet_address = $1`, wallet)

	var user game.User
	var balances []byte
	err := row.Scan(&user.WalletAddress, &balances, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(balances, &user.Balances); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *service) SaveUser(ctx context.Context, user *game.User) error {
	balances, err := json.Marshal(user.Balances)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (wallet_address, balances, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE SET balances = EXCLUDED.balances`,
		user.WalletAddress, balances, user.CreatedAt)
	return err
}
