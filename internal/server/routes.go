package server

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"crash/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getHistoryHandler)
	api.Get("/game/verify", s.verifyHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Get("/user/:wallet/balance", s.getBalanceHandler)
	api.Post("/user/:wallet/balance", s.setBalanceHandler)

	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"phase":             s.engine.State().Phase,
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// getGameStateHandler returns the engine clock snapshot.
func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	round := s.engine.CurrentRound()
	if round == nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(fiber.Map{
		"clock": s.engine.State(),
		"round": round,
	})
}

// getHistoryHandler returns recent crash multipliers, newest first.
func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	history, err := s.cache.CrashHistory(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load crash history",
		})
	}
	return c.JSON(fiber.Map{
		"history": history,
	})
}

// verifyHandler recomputes a crash point from a revealed seed so players
// can audit a finished round.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	serverSeed := c.Query("server_seed")
	clientSeed := c.Query("client_seed")
	nonceStr := c.Query("nonce")

	if serverSeed == "" || clientSeed == "" || nonceStr == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "server_seed, client_seed and nonce are required",
		})
	}
	nonce, err := strconv.ParseInt(nonceStr, 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "nonce must be an integer",
		})
	}

	multiplier, roundHash := game.CrashPoint(serverSeed, clientSeed, nonce)

	result := fiber.Map{
		"multiplier":       game.FormatMultiplier(multiplier),
		"round_hash":       roundHash,
		"server_seed_hash": game.HashCommitment(serverSeed),
	}
	if claimedStr := c.Query("claimed"); claimedStr != "" {
		claimed, err := strconv.ParseFloat(claimedStr, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "claimed must be a number",
			})
		}
		result["valid"] = game.VerifyCrashPoint(serverSeed, clientSeed, nonce, claimed)
	}
	return c.JSON(result)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.WalletAddress == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Wallet address is required",
		})
	}

	resp := s.engine.PlaceBet(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req game.CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.WalletAddress == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Wallet address is required",
		})
	}

	resp := s.engine.Cashout(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if wallet == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Wallet address is required",
		})
	}

	user, err := s.db.FindUserByWallet(c.Context(), wallet)
	if errors.Is(err, game.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Unknown wallet",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load balance",
		})
	}

	return c.JSON(fiber.Map{
		"wallet_address": user.WalletAddress,
		"balances":       user.Balances,
	})
}

// setBalanceHandler seeds a wallet's balance in one currency. Admin/testing
// surface, not part of the game protocol.
func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if wallet == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Wallet address is required",
		})
	}

	var body struct {
		Currency string  `json:"currency"`
		Amount   float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Currency == "" || body.Amount < 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "currency and a non-negative amount are required",
		})
	}

	user, err := s.db.FindUserByWallet(c.Context(), wallet)
	if errors.Is(err, game.ErrNotFound) {
		user = &game.User{
			WalletAddress: wallet,
			Balances:      map[string]float64{},
			CreatedAt:     time.Now(),
		}
	} else if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load balance",
		})
	}

	user.Balances[body.Currency] = body.Amount
	if err := s.db.SaveUser(c.Context(), user); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save balance",
		})
	}

	return c.JSON(fiber.Map{
		"wallet_address": wallet,
		"balances":       user.Balances,
	})
}

// gameWebSocketHandler is the per-connection loop: push the current round
// on connect, then answer place-bet and cash-out requests until the client
// goes away.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	wallet := conn.Query("wallet", "anonymous")

	log.Printf("[WS] New connection from wallet: %s", wallet)

	client := s.hub.RegisterClient(conn, wallet)
	defer s.hub.UnregisterClient(client)

	if round := s.engine.CurrentRound(); round != nil {
		client.Send(game.WSMessage{
			Type: "initial_state",
			Data: fiber.Map{
				"clock": s.engine.State(),
				"round": round,
			},
		})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for wallet %s: %v", wallet, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg struct {
			Type        string  `json:"type"`
			Amount      float64 `json:"amount"`
			Currency    string  `json:"currency"`
			AutoCashout float64 `json:"auto_cashout"`
		}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		switch clientMsg.Type {
		case "place_bet":
			resp := s.engine.PlaceBet(game.BetRequest{
				WalletAddress: wallet,
				Amount:        clientMsg.Amount,
				Currency:      clientMsg.Currency,
				AutoCashout:   clientMsg.AutoCashout,
			})
			if resp.Success {
				client.Send(game.WSMessage{Type: game.EventBetPlaced, Data: resp})
			} else {
				client.Send(game.WSMessage{Type: game.EventError, Data: fiber.Map{"message": resp.Message}})
			}

		case "cash_out":
			resp := s.engine.Cashout(game.CashoutRequest{WalletAddress: wallet})
			if resp.Success {
				client.Send(game.WSMessage{Type: game.EventCashoutSuccess, Data: resp})
			} else {
				client.Send(game.WSMessage{Type: game.EventError, Data: fiber.Map{"message": resp.Message}})
			}

		case "ping":
			client.Send(game.WSMessage{Type: "pong"})
		}
	}
}
