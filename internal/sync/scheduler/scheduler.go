// Package scheduler drives the sync engine in the background: periodic full
// synchronization while online, and a reachability probe that feeds the
// engine's connectivity signal.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/reptrack/backend/internal/errors"
	"github.com/reptrack/backend/internal/logging"
)

// Engine is the slice of the sync engine the scheduler needs.
type Engine interface {
	Sync(ctx context.Context) error
	SetOnline(online bool)
	Online() bool
}

// Probe reports whether the remote backend is reachable right now.
type Probe func(ctx context.Context) bool

// Config holds scheduler configuration.
type Config struct {
	SyncInterval  time.Duration // how often to run a full sync when online
	ProbeInterval time.Duration // how often to check reachability
	SyncTimeout   time.Duration // per-sync deadline
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  5 * time.Minute,
		ProbeInterval: 30 * time.Second,
		SyncTimeout:   2 * time.Minute,
	}
}

// Scheduler owns the background loops. Start spawns them, Stop joins them.
type Scheduler struct {
	engine Engine
	probe  Probe

	syncInterval  time.Duration
	probeInterval time.Duration
	syncTimeout   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
}

// NewScheduler creates a scheduler over the given engine. probe may be nil,
// in which case the reachability loop is not started and the host is expected
// to drive SetOnline itself.
func NewScheduler(engine Engine, probe Probe, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:        engine,
		probe:         probe,
		syncInterval:  config.SyncInterval,
		probeInterval: config.ProbeInterval,
		syncTimeout:   config.SyncTimeout,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background loops. Calling Start twice is a no-op; a
// stopped scheduler can be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.syncLoop(ctx, stopCh)

	if s.probe != nil {
		s.wg.Add(1)
		go s.probeLoop(ctx, stopCh)
	}

	logging.Info("Sync scheduler started", map[string]interface{}{
		"syncInterval":  s.syncInterval.String(),
		"probeInterval": s.probeInterval.String(),
	})
}

// Stop signals the loops and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// IsRunning reports whether the loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// syncLoop runs a full sync on every tick while the engine is online. The
// engine's own single-flight guards make overlapping triggers harmless.
func (s *Scheduler) syncLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.engine.Online() {
				continue
			}
			s.runSync(ctx)
		}
	}
}

// probeLoop checks reachability on every tick and feeds the result into the
// engine. Flipping from offline to online makes the engine replay its queue.
func (s *Scheduler) probeLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, s.probeInterval)
			reachable := s.probe(probeCtx)
			cancel()

			if reachable != s.engine.Online() {
				logging.Info("Reachability probe result changed",
					map[string]interface{}{"reachable": reachable})
			}
			s.engine.SetOnline(reachable)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	if err := s.engine.Sync(syncCtx); err != nil {
		logging.ErrorWithCode("Periodic sync failed", string(errors.ErrSyncFailed), err, nil)
	}
}
