package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"crash/internal/game"
)

func TestHealthHandler(t *testing.T) {
	// Minimal Fiber app; the full server needs live Postgres and Redis.
	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Server is running",
		})
	})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("could not unmarshal response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status to be 'ok'; got %v", result["status"])
	}
}

func TestVerifyHandler(t *testing.T) {
	// verifyHandler is pure over its query params, so it can run without
	// the database or cache wired up.
	s := &FiberServer{App: fiber.New()}
	s.App.Get("/verify", s.verifyHandler)

	serverSeed := "verification_test_seed"
	clientSeed := "global_client_seed"
	nonce := int64(100)
	expected, expectedHash := game.CrashPoint(serverSeed, clientSeed, nonce)

	t.Run("recomputes the crash point", func(t *testing.T) {
		url := fmt.Sprintf("/verify?server_seed=%s&client_seed=%s&nonce=%d", serverSeed, clientSeed, nonce)
		req, _ := http.NewRequest("GET", url, nil)

		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("could not perform request: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status OK; got %v", resp.Status)
		}

		var result map[string]interface{}
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("could not unmarshal response: %v", err)
		}

		if result["multiplier"] != game.FormatMultiplier(expected) {
			t.Errorf("multiplier = %v, want %v", result["multiplier"], game.FormatMultiplier(expected))
		}
		if result["round_hash"] != expectedHash {
			t.Errorf("round_hash = %v, want %v", result["round_hash"], expectedHash)
		}
	})

	t.Run("validates a claimed multiplier", func(t *testing.T) {
		url := fmt.Sprintf("/verify?server_seed=%s&client_seed=%s&nonce=%d&claimed=%v", serverSeed, clientSeed, nonce, expected)
		req, _ := http.NewRequest("GET", url, nil)

		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("could not perform request: %v", err)
		}

		var result map[string]interface{}
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("could not unmarshal response: %v", err)
		}

		if result["valid"] != true {
			t.Errorf("valid = %v, want true", result["valid"])
		}
	})

	t.Run("rejects missing params", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/verify?server_seed=only", nil)

		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("could not perform request: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400; got %v", resp.Status)
		}
	})
}
