package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crash/internal/cache"
	"crash/internal/database"
	"crash/internal/game"
)

type FiberServer struct {
	*fiber.App

	db     database.Service
	cache  cache.Service
	engine *game.Engine
	hub    *game.Hub
}

// eventRecorder sits between the engine and the hub: every event reaches
// connected clients, and crash results are additionally mirrored into the
// Redis history list for late joiners.
type eventRecorder struct {
	hub   *game.Hub
	cache cache.Service
}

func (r *eventRecorder) Broadcast(msgType string, payload interface{}) {
	if msgType == game.EventRoundCrashed {
		if p, ok := payload.(game.RoundCrashedPayload); ok {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.cache.RecordCrash(ctx, p.Multiplier); err != nil {
					log.Printf("[CACHE] Failed to record crash: %v", err)
				}
			}()
		}
	}
	r.hub.Broadcast(msgType, payload)
}

func New() *FiberServer {
	db := database.New()

	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for game functionality")
	}

	hub := game.NewHub()

	cfg := game.DefaultConfig()
	if seed := os.Getenv("CLIENT_SEED"); seed != "" {
		cfg.ClientSeed = seed
	}
	engine := game.NewEngine(db, &eventRecorder{hub: hub, cache: redisService}, cfg)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crash",
			AppName:       "crash",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:     db,
		cache:  redisService,
		engine: engine,
		hub:    hub,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	engine.Start()

	log.Println("[SERVER] Round engine started")

	return server
}

// Shutdown stops the round engine and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.engine != nil {
		s.engine.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
