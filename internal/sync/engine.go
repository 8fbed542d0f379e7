// Package sync implements the store-and-forward synchronization engine: a
// durable local copy of the exercise collection that the host application
// can read and mutate instantly, reconciled with the remote authority when
// connectivity allows.
package sync

import (
	"context"
	"errors"
	"sort"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/reptrack/backend/internal/errors"
	"github.com/reptrack/backend/internal/logging"
	"github.com/reptrack/backend/internal/models"
	"github.com/reptrack/backend/internal/remote"
	"github.com/reptrack/backend/internal/store"
)

// EventType identifies what a subscriber notification is about.
type EventType string

const (
	EventStatusChanged EventType = "status.changed"
	EventCacheChanged  EventType = "cache.changed"
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
)

// Event is pushed to subscribers on cache and status changes. Fan-out is
// synchronous in registration order; a slow listener delays the others.
type Event struct {
	Type   EventType         `json:"type"`
	Status models.SyncStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// Listener receives engine events. Listeners are called outside the cache
// lock, so they may call back into the engine.
type Listener func(Event)

// errUnknownKind marks a queued mutation whose kind the engine cannot
// dispatch, e.g. after loading a log written by a newer version. It is
// treated as an application-class failure: the entry stays queued and the
// loop advances past it.
var errUnknownKind = errors.New("unknown mutation kind")

// Engine owns the in-memory exercise cache and the mutation queue for the
// life of the process. All cache mutation happens behind one mutex; flush
// and reconciliation passes hold independent single-flight guards and may
// run concurrently with each other.
type Engine struct {
	store  store.Store
	remote remote.Client
	queue  *MutationQueue

	mu           stdsync.Mutex
	cache        map[string]*models.Exercise
	profile      *models.UserProfile
	online       bool
	flushing     bool
	pulling      bool
	activeOps    int
	lastSyncedAt *time.Time

	lmu       stdsync.Mutex
	listeners []listenerEntry
	nextSubID int

	// sleep suspends the flush loop between retries. Replaced in tests.
	sleep func(time.Duration)
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewEngine creates an engine over the given durable store and remote
// client. Call Init exactly once before anything else.
func NewEngine(st store.Store, rc remote.Client) *Engine {
	return &Engine{
		store:  st,
		remote: rc,
		queue:  NewMutationQueue(st),
		cache:  make(map[string]*models.Exercise),
		sleep:  time.Sleep,
	}
}

// Init loads the cache, queue and profile from the store, notifies
// subscribers, and — when the reachability signal says online — attempts a
// full reconciliation pull followed by a queue flush. A failing pull is not
// fatal: the local cache stays authoritative and the queue untouched.
func (e *Engine) Init(ctx context.Context, online bool) error {
	exercises, err := e.store.LoadExercises()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load exercise cache", err)
	}
	if err := e.queue.Load(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load mutation queue", err)
	}
	profile, err := e.store.LoadProfile()
	if err != nil {
		logging.Error("Failed to load user profile", err)
	}

	e.mu.Lock()
	e.cache = make(map[string]*models.Exercise, len(exercises))
	for _, ex := range exercises {
		e.cache[ex.Key()] = ex
	}
	e.profile = profile
	e.online = online
	e.mu.Unlock()

	logging.Info("Sync engine initialized", map[string]interface{}{
		"cached":  len(exercises),
		"pending": e.queue.Len(),
		"online":  online,
	})

	e.notifyCache()
	e.notifyStatus()

	if online {
		if err := e.Reconcile(ctx); err != nil {
			logging.Warn("Startup reconciliation failed",
				map[string]interface{}{"error": err.Error()})
		}
		if err := e.Flush(ctx); err != nil {
			logging.Warn("Startup flush failed",
				map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Subscribe registers a listener for engine events and returns its
// deregistration handle.
func (e *Engine) Subscribe(l Listener) func() {
	e.lmu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.listeners = append(e.listeners, listenerEntry{id: id, fn: l})
	e.lmu.Unlock()

	return func() {
		e.lmu.Lock()
		defer e.lmu.Unlock()
		for i, entry := range e.listeners {
			if entry.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() models.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() models.SyncStatus {
	s := models.SyncStatus{
		IsOnline:             e.online,
		IsSyncing:            e.activeOps > 0,
		PendingMutationCount: e.queue.Len(),
	}
	if e.lastSyncedAt != nil {
		t := *e.lastSyncedAt
		s.LastSyncedAt = &t
	}
	return s
}

// Online reports the current connectivity status.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetOnline feeds the host's reachability signal into the engine. Losing
// reachability never aborts an in-flight call; the flush loop observes the
// flip between queue entries. Regaining reachability triggers a full
// reconciliation pull followed by a queue flush.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	if !changed {
		return
	}
	logging.Info("Connectivity changed", map[string]interface{}{"online": online})
	e.notifyStatus()

	if online {
		go func() {
			if err := e.Sync(context.Background()); err != nil {
				logging.Warn("Reconnect sync failed",
					map[string]interface{}{"error": err.Error()})
			}
		}()
	}
}

// Exercises returns copies of every cached exercise, newest first.
func (e *Engine) Exercises() []*models.Exercise {
	e.mu.Lock()
	out := make([]*models.Exercise, 0, len(e.cache))
	for _, ex := range e.cache {
		out = append(out, ex.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Exercise returns a copy of the cached exercise matching id by either
// identifier.
func (e *Engine) Exercise(id string) (*models.Exercise, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ex := e.findLocked(id); ex != nil {
		return ex.Clone(), nil
	}
	return nil, apperrors.New(apperrors.ErrNotFound, "exercise not found")
}

// findLocked resolves id against the cache by key, then by either
// identifier. Callers hold e.mu.
func (e *Engine) findLocked(id string) *models.Exercise {
	if ex, ok := e.cache[id]; ok {
		return ex
	}
	for _, ex := range e.cache {
		if ex.Matches(id) {
			return ex
		}
	}
	return nil
}

// Profile returns the loaded user profile, or nil when none is stored.
func (e *Engine) Profile() *models.UserProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return nil
	}
	p := *e.profile
	return &p
}

// SaveProfile persists the single user profile row.
func (e *Engine) SaveProfile(p *models.UserProfile) error {
	p.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveProfile(p); err != nil {
		return err
	}
	e.mu.Lock()
	saved := *p
	e.profile = &saved
	e.mu.Unlock()
	return nil
}

// PendingMutations returns copies of the queued mutations in order.
func (e *Engine) PendingMutations() []*models.PendingMutation {
	return e.queue.List()
}

// QueueStats returns queued mutation counts by kind.
func (e *Engine) QueueStats() map[string]int {
	return e.queue.Stats()
}

// CreateExercise applies a local creation optimistically — cache and store
// first, then the queue entry — and triggers a flush attempt when online.
func (e *Engine) CreateExercise(ex *models.Exercise) (*models.Exercise, error) {
	if ex == nil || ex.Title == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "exercise title is required")
	}

	rec := ex.Clone()
	rec.LocalID = uuid.New().String()
	rec.ServerID = ""
	rec.ThanksCount = 0
	if rec.ModerationStatus == "" {
		rec.ModerationStatus = models.ModerationPending
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.DeletedAt = nil

	e.mu.Lock()
	e.cache[rec.Key()] = rec
	snapshot := rec.Clone()
	e.mu.Unlock()

	e.persistExercise(snapshot)
	e.notifyCache()

	e.queue.Enqueue(&models.PendingMutation{
		Kind:     models.MutationCreate,
		Exercise: snapshot.Clone(),
	})
	e.notifyStatus()
	e.maybeFlush()

	return snapshot, nil
}

// SayThanks increments the thanks counter of an exercise. The cache and
// store reflect the increment before the mutation is even enqueued, so the
// UI sees it with zero network latency.
func (e *Engine) SayThanks(id string) (*models.Exercise, error) {
	e.mu.Lock()
	rec := e.findLocked(id)
	if rec == nil {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrNotFound, "exercise not found")
	}
	rec.ThanksCount++
	rec.Touch()
	target := rec.Key()
	snapshot := rec.Clone()
	e.mu.Unlock()

	e.persistExercise(snapshot)
	e.notifyCache()

	e.queue.Enqueue(&models.PendingMutation{
		Kind:   models.MutationThanks,
		Target: target,
		Amount: 1,
	})
	e.notifyStatus()
	e.maybeFlush()

	return snapshot, nil
}

// ApplyModerationPatch changes the moderation status of an exercise
// optimistically and queues the corresponding remote patch.
func (e *Engine) ApplyModerationPatch(id, status string) (*models.Exercise, error) {
	switch status {
	case models.ModerationPending, models.ModerationApproved, models.ModerationRejected:
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown moderation status")
	}

	e.mu.Lock()
	rec := e.findLocked(id)
	if rec == nil {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrNotFound, "exercise not found")
	}
	rec.ModerationStatus = status
	rec.Touch()
	target := rec.Key()
	snapshot := rec.Clone()
	e.mu.Unlock()

	e.persistExercise(snapshot)
	e.notifyCache()

	e.queue.Enqueue(&models.PendingMutation{
		Kind:   models.MutationModerate,
		Target: target,
		Status: status,
	})
	e.notifyStatus()
	e.maybeFlush()

	return snapshot, nil
}

// Sync runs a full reconciliation pull followed by a queue flush. The two
// are isolated: a failing pull does not block the flush.
func (e *Engine) Sync(ctx context.Context) error {
	e.fanout(Event{Type: EventSyncStarted, Status: e.Status()})

	pullErr := e.Reconcile(ctx)
	flushErr := e.Flush(ctx)

	err := flushErr
	if err == nil {
		err = pullErr
	}
	if err != nil {
		e.fanout(Event{Type: EventSyncFailed, Status: e.Status(), Error: err.Error()})
		return err
	}
	e.fanout(Event{Type: EventSyncCompleted, Status: e.Status()})
	return nil
}

// Reconcile fetches the full remote snapshot and merges it into the local
// cache and store. Single-flight: a second trigger while one pass is active
// is a no-op.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	if e.pulling {
		e.mu.Unlock()
		return nil
	}
	if !e.online {
		e.mu.Unlock()
		return apperrors.New(apperrors.ErrSyncOffline, "engine is offline")
	}
	e.pulling = true
	e.activeOps++
	e.mu.Unlock()
	e.notifyStatus()

	defer func() {
		e.mu.Lock()
		e.pulling = false
		e.activeOps--
		e.mu.Unlock()
		e.notifyStatus()
	}()

	remoteRecs, err := e.remote.FetchAll(ctx)
	if err != nil {
		if remote.IsConnectivityError(err) {
			e.setOffline()
		}
		return apperrors.Wrap(apperrors.ErrSyncFailed, "failed to fetch remote snapshot", err)
	}

	e.mu.Lock()
	local := make([]*models.Exercise, 0, len(e.cache))
	for _, ex := range e.cache {
		local = append(local, ex)
	}
	merged := MergeRemoteSnapshot(local, remoteRecs)
	e.cache = make(map[string]*models.Exercise, len(merged))
	// The store write below happens outside the lock, so it gets clones;
	// the cache entries stay mutable only under e.mu.
	snapshot := make([]*models.Exercise, 0, len(merged))
	for _, ex := range merged {
		// Records first seen from the server get a local id here; the store
		// keys rows by it.
		if ex.LocalID == "" {
			ex.LocalID = uuid.New().String()
		}
		e.cache[ex.Key()] = ex
		snapshot = append(snapshot, ex.Clone())
	}
	now := time.Now().UTC()
	e.lastSyncedAt = &now
	e.mu.Unlock()

	if err := e.store.ReplaceExercises(snapshot); err != nil {
		logging.Error("Failed to persist reconciled cache", err,
			map[string]interface{}{"records": len(snapshot)})
	}

	logging.Info("Reconciliation pull completed", map[string]interface{}{
		"remote": len(remoteRecs),
		"merged": len(merged),
	})
	e.notifyCache()
	return nil
}

// Flush drains the mutation queue against the remote client. Single-flight:
// at most one flush loop runs at a time; a second trigger is a no-op and the
// active loop picks up anything enqueued meanwhile since it reads the live
// queue. On a connectivity-class failure the engine flips offline and the
// loop stops, leaving the remaining entries untouched; on an
// application-class failure the loop backs off, stays online and advances —
// the failed entry keeps its position for a future pass.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.flushing || !e.online {
		e.mu.Unlock()
		return nil
	}
	e.flushing = true
	e.activeOps++
	e.mu.Unlock()
	e.notifyStatus()

	defer func() {
		e.mu.Lock()
		e.flushing = false
		e.activeOps--
		e.mu.Unlock()
		e.notifyStatus()
	}()

	skipped := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Online() {
			return nil
		}

		m := e.queue.Next(skipped)
		if m == nil {
			return nil
		}

		serverCopy, err := e.dispatch(ctx, m)
		if err == nil {
			// A success proves connectivity, clearing any offline flip a
			// prior transient failure caused.
			e.markOnline()
			e.applyAck(m, serverCopy)
			if ackErr := e.queue.Ack(m.ID); ackErr != nil {
				logging.Error("Failed to acknowledge mutation", ackErr,
					map[string]interface{}{"id": m.ID})
			}
			e.mu.Lock()
			now := time.Now().UTC()
			e.lastSyncedAt = &now
			e.mu.Unlock()
			e.notifyStatus()
			continue
		}

		delay, qerr := e.queue.RecordFailure(m.ID)
		if qerr != nil {
			logging.Error("Failed to record mutation failure", qerr,
				map[string]interface{}{"id": m.ID})
			skipped[m.ID] = true
			continue
		}

		logging.Warn("Mutation dispatch failed", map[string]interface{}{
			"id":      m.ID,
			"kind":    m.Kind,
			"error":   err.Error(),
			"backoff": delay.String(),
		})
		e.sleep(delay)

		if remote.IsConnectivityError(err) && !errors.Is(err, errUnknownKind) {
			e.setOffline()
			return nil
		}
		skipped[m.ID] = true
	}
}

// dispatch performs the remote call a queued mutation stands for.
func (e *Engine) dispatch(ctx context.Context, m *models.PendingMutation) (*models.Exercise, error) {
	switch m.Kind {
	case models.MutationCreate:
		return e.remote.Create(ctx, m.Exercise)
	case models.MutationThanks:
		amount := m.Amount
		if amount <= 0 {
			amount = 1
		}
		return e.remote.Mutate(ctx, e.resolveTarget(m.Target), remote.Patch{ThanksDelta: amount})
	case models.MutationModerate:
		return e.remote.Mutate(ctx, e.resolveTarget(m.Target), remote.Patch{ModerationStatus: m.Status})
	default:
		return nil, errUnknownKind
	}
}

// resolveTarget upgrades a queued identity to the server id when the cache
// has learned it since enqueue time — a record created locally moments
// before its thanks mutation dispatches is targeted correctly.
func (e *Engine) resolveTarget(target string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec := e.findLocked(target); rec != nil && rec.ServerID != "" {
		return rec.ServerID
	}
	return target
}

// applyAck folds an acknowledged server response back into the cache and
// store via the reconciler.
func (e *Engine) applyAck(m *models.PendingMutation, serverCopy *models.Exercise) {
	if serverCopy == nil {
		return
	}
	if m.Kind == models.MutationCreate && serverCopy.LocalID == "" && m.Exercise != nil {
		serverCopy.LocalID = m.Exercise.LocalID
	}

	e.mu.Lock()
	var prevLocalID string
	if _, existing := lookupIdentity(e.cache, serverCopy); existing != nil {
		prevLocalID = existing.LocalID
	}
	merged, removed := ApplyAcknowledged(e.cache, serverCopy)
	var snapshot *models.Exercise
	var staleLocalID string
	if merged != nil {
		if merged.LocalID == "" {
			merged.LocalID = uuid.New().String()
		}
		// The merge may adopt a local id minted on another device. The row
		// keyed by the previous local id is superseded and must go, or it
		// lingers as a duplicate until the next full replace.
		if prevLocalID != "" && merged.LocalID != prevLocalID {
			staleLocalID = prevLocalID
		}
		snapshot = merged.Clone()
	}
	e.mu.Unlock()

	if removed != nil {
		if err := e.store.DeleteExercise(removed.LocalID); err != nil {
			logging.Error("Failed to delete tombstoned exercise", err,
				map[string]interface{}{"localId": removed.LocalID})
		}
	}
	if staleLocalID != "" {
		if err := e.store.DeleteExercise(staleLocalID); err != nil {
			logging.Error("Failed to delete superseded exercise row", err,
				map[string]interface{}{"localId": staleLocalID})
		}
	}
	if snapshot != nil {
		e.persistExercise(snapshot)
	}
	e.notifyCache()
}

// maybeFlush kicks a background flush pass when online.
func (e *Engine) maybeFlush() {
	if !e.Online() {
		return
	}
	go func() {
		if err := e.Flush(context.Background()); err != nil {
			logging.Warn("Background flush failed",
				map[string]interface{}{"error": err.Error()})
		}
	}()
}

// persistExercise writes a record through the store, best-effort: a storage
// failure is logged and the in-memory cache keeps serving reads.
func (e *Engine) persistExercise(ex *models.Exercise) {
	if err := e.store.PutExercise(ex); err != nil {
		logging.Error("Failed to persist exercise", err,
			map[string]interface{}{"localId": ex.LocalID})
	}
}

func (e *Engine) markOnline() {
	e.mu.Lock()
	changed := !e.online
	e.online = true
	e.mu.Unlock()
	if changed {
		e.notifyStatus()
	}
}

func (e *Engine) setOffline() {
	e.mu.Lock()
	changed := e.online
	e.online = false
	e.mu.Unlock()
	if changed {
		logging.Warn("Connectivity lost, engine going offline")
		e.notifyStatus()
	}
}

func (e *Engine) notifyStatus() {
	e.fanout(Event{Type: EventStatusChanged, Status: e.Status()})
}

func (e *Engine) notifyCache() {
	e.fanout(Event{Type: EventCacheChanged, Status: e.Status()})
}

// fanout delivers an event to all listeners in registration order.
func (e *Engine) fanout(ev Event) {
	e.lmu.Lock()
	entries := make([]listenerEntry, len(e.listeners))
	copy(entries, e.listeners)
	e.lmu.Unlock()

	for _, entry := range entries {
		entry.fn(ev)
	}
}
