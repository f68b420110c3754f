package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/internal/config"
	"github.com/jrsteele09/go-portal-sessions/stubauth"
	"github.com/jrsteele09/go-portal-sessions/tabs"
	fakeuserrepo "github.com/jrsteele09/go-portal-sessions/users/repofake"
)

// Standalone authentication stub for local development. Exposes the two
// endpoints the session coordinator delegates to, with a seeded user set.
func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Fatalf("Error running auth stub: %s\n", err)
	}
	log.Printf("Auth stub stopped\n")
}

func run() error {
	displayAppname("Auth Stub")
	logger := zerolog.New(os.Stdout).Level(zerolog.DebugLevel).With().Timestamp().Logger()

	secret := []byte(config.GetEnv("AUTH_SECRET", "dev-only-secret"))
	repo := fakeuserrepo.NewFakeUserRepo()

	stub, err := stubauth.New(repo, secret, stubauth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("stubauth.New: %w", err)
	}
	if err := seedUsers(stub); err != nil {
		return fmt.Errorf("seedUsers: %w", err)
	}

	addr := ":" + config.GetEnv("AUTH_PORT", "9090")
	httpServer := &http.Server{Addr: addr, Handler: stub}
	go func() {
		logger.Info().Str("addr", addr).Msg("auth stub listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Err(err).Msg("server.ListenAndServe")
		}
	}()

	waitForStopSignal()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func seedUsers(stub *stubauth.Server) error {
	seeds := []struct {
		email, name, password string
		roles                 []tabs.Role
	}{
		{"rider@example.com", "Test Rider", "Rider-Pass-1!", []tabs.Role{tabs.RoleRider}},
		{"driver@example.com", "Test Driver", "Driver-Pass-1!", []tabs.Role{tabs.RoleDriver}},
		{"admin@example.com", "Test Admin", "Admin-Pass-1!", []tabs.Role{tabs.RoleAdmin}},
		{"multi@example.com", "Multi Role", "Multi-Pass-1!", []tabs.Role{tabs.RoleRider, tabs.RoleDriver, tabs.RoleAdmin}},
	}
	for _, s := range seeds {
		if err := stub.AddUser(s.email, s.name, s.password, s.roles...); err != nil {
			return err
		}
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
