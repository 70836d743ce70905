package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"crash/internal/server"
)

func gracefulShutdown(fiberServer *server.FiberServer, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("[SERVER] Shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fiberServer.ShutdownWithContext(ctx); err != nil {
		log.Printf("[SERVER] Forced to shutdown with error: %v", err)
	}
	fiberServer.Shutdown()

	done <- true
}

func main() {
	app := server.New()
	app.RegisterFiberRoutes()

	done := make(chan bool, 1)

	go func() {
		port, _ := strconv.Atoi(os.Getenv("PORT"))
		if port == 0 {
			port = 8080
		}
		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			log.Fatalf("[SERVER] Listen error: %v", err)
		}
	}()

	go gracefulShutdown(app, done)

	<-done
	log.Println("[SERVER] Graceful shutdown complete")
}
