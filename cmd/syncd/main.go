// Command syncd is the local synchronization daemon. It keeps a durable copy
// of the exercise collection on disk, accepts writes from the local UI with
// zero network latency, and reconciles with the remote backend whenever it is
// reachable. The UI talks to it over localhost REST plus a WebSocket event
// stream.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reptrack/backend/cmd/syncd/handlers"
	"github.com/reptrack/backend/internal/config"
	"github.com/reptrack/backend/internal/logging"
	"github.com/reptrack/backend/internal/remote"
	"github.com/reptrack/backend/internal/store"
	syncpkg "github.com/reptrack/backend/internal/sync"
	"github.com/reptrack/backend/internal/sync/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Invalid configuration", err)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg); err != nil {
		logging.Error("Daemon exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	client := remote.NewHTTPClient(remote.HTTPConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	})

	engine := syncpkg.NewEngine(st, client)

	hub := NewWSHub()
	unsubscribe := engine.Subscribe(hub.BroadcastEvent)
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Init(ctx, cfg.StartOnline); err != nil {
		return err
	}

	sched := scheduler.NewScheduler(engine, func(ctx context.Context) bool {
		return client.Ping(ctx) == nil
	}, &scheduler.Config{
		SyncInterval:  cfg.SyncInterval.Std(),
		ProbeInterval: cfg.ProbeInterval.Std(),
		SyncTimeout:   2 * time.Minute,
	})
	sched.Start(ctx)
	defer sched.Stop()

	mux := handlers.NewRouter(engine, engine)
	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
