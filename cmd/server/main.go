package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jrsteele09/go-portal-sessions/auth"
	"github.com/jrsteele09/go-portal-sessions/authapi"
	"github.com/jrsteele09/go-portal-sessions/internal/config"
	"github.com/jrsteele09/go-portal-sessions/notify"
	"github.com/jrsteele09/go-portal-sessions/server"
	"github.com/jrsteele09/go-portal-sessions/tabs"
	"github.com/jrsteele09/go-portal-sessions/tabs/filerepo"
	"github.com/jrsteele09/go-portal-sessions/tabs/redisrepo"
)

func main() {
	_ = godotenv.Load()
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := newTabRepo(c, logger)
	if err != nil {
		return fmt.Errorf("newTabRepo: %w", err)
	}
	defer closeRepo()

	manager, err := tabs.NewManager(repo, tabs.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("tabs.NewManager: %w", err)
	}
	manager.StartSweeper(ctx, c.GetSweepInterval(), c.GetTabTTL())

	backend := authapi.NewClient(c.GetAuthBaseURL())
	roles, err := auth.NewRoleService(repo, backend, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("auth.NewRoleService: %w", err)
	}

	watcher, err := notify.NewWatcher(ctx, repo, notify.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("notify.NewWatcher: %w", err)
	}
	defer watcher.Close()

	handler, err := server.New(manager, roles, watcher, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// newTabRepo selects the shared store: Redis when an address is configured,
// otherwise the file-backed store under the sessions directory.
func newTabRepo(c config.Config, logger zerolog.Logger) (tabs.Repo, func(), error) {
	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		repo, err := redisrepo.New(client, redisrepo.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			repo.Close()
			_ = client.Close()
		}, nil
	}

	store, err := filerepo.NewStore(c.GetSessionsDir())
	if err != nil {
		return nil, nil, err
	}
	return store.Open(), func() {}, nil
}

func newLogger(c config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if file := c.GetLogFile(); file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}
	level := zerolog.InfoLevel
	if c.GetEnv() == "DEV" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
