package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlor-chat/parlor/internal/auth"
	"github.com/parlor-chat/parlor/internal/server"
	"github.com/parlor-chat/parlor/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting Parlor chat server...")

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	st, err := store.Open(config.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	tokens := auth.NewJWTManager(auth.JWTConfig{
		SecretKey:            config.JWTSecret,
		Issuer:               config.JWTIssuer,
		AccessTokenDuration:  config.AccessTokenTTL,
		RefreshTokenDuration: config.RefreshTokenTTL,
	})
	authService := auth.NewService(tokens, auth.NewPasswordHasher(), st)

	srv := server.New(st, authService)
	go srv.Hub().Run()

	httpServer := server.CreateServer(config.Port, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
		if err := srv.Hub().Shutdown(shutdownTimeout); err != nil {
			log.Printf("Hub shutdown error: %v", err)
		}
	}
}
