package call

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dialout/dialout/internal/metrics"
)

// keepAliveTimeout bounds a single keep-alive request. A beat that runs
// past it is abandoned; the next tick fires on schedule regardless.
const keepAliveTimeout = time.Minute

// KeepAliver performs the periodic keep-alive action for one call session.
type KeepAliver interface {
	KeepAlive(ctx context.Context, tenant, scenarioID, callID string) error
}

// Registry is the concurrent mapping from call id to its Handler. It is the
// sole owner of handler lifetime: Register and Release are the only
// mutation points.
type Registry struct {
	interval  time.Duration
	keepAlive KeepAliver
	counters  *metrics.Counters
	logger    *slog.Logger

	handlers sync.Map // call id -> *Handler
	count    atomic.Int64
}

// NewRegistry creates a registry whose handlers beat every interval.
// counters may be nil.
func NewRegistry(interval time.Duration, keepAlive KeepAliver, counters *metrics.Counters, logger *slog.Logger) *Registry {
	return &Registry{
		interval:  interval,
		keepAlive: keepAlive,
		counters:  counters,
		logger:    logger.With("subsystem", "registry"),
	}
}

// Register creates the handler for a call id and starts its heartbeat.
// Registering an id that already has a handler is a no-op returning the
// existing one; there is never more than one handler per call id.
func (r *Registry) Register(callID, tenantID string) *Handler {
	h := newHandler(callID, tenantID, uuid.NewString())
	if existing, loaded := r.handlers.LoadOrStore(callID, h); loaded {
		return existing.(*Handler)
	}

	r.count.Add(1)
	go r.heartbeatLoop(h)

	r.logger.Info("call handler registered",
		"call_id", callID,
		"tenant_id", tenantID,
		"heartbeat_interval", r.interval.String(),
	)
	return h
}

// Release stops a call's heartbeat and drops its handler. Releasing an
// unknown or already-released id is a safe no-op.
func (r *Registry) Release(callID string) {
	v, loaded := r.handlers.LoadAndDelete(callID)
	if !loaded {
		return
	}
	h := v.(*Handler)
	h.stop()
	r.count.Add(-1)

	r.logger.Info("call handler released",
		"call_id", callID,
		"lifetime", time.Since(h.RegisteredAt).String(),
	)
}

// Get looks up the handler for a call id.
func (r *Registry) Get(callID string) (*Handler, bool) {
	v, ok := r.handlers.Load(callID)
	if !ok {
		return nil, false
	}
	return v.(*Handler), true
}

// ActiveCallCount returns the number of registered handlers.
func (r *Registry) ActiveCallCount() int {
	return int(r.count.Load())
}

// Snapshot describes one registered handler for introspection.
type Snapshot struct {
	CallID       string    `json:"call_id"`
	TenantID     string    `json:"tenant_id"`
	RegisteredAt time.Time `json:"registered_at"`
	Recording    bool      `json:"recording"`
}

// Active returns a snapshot of all registered handlers.
func (r *Registry) Active() []Snapshot {
	var out []Snapshot
	r.handlers.Range(func(_, v any) bool {
		h := v.(*Handler)
		out = append(out, Snapshot{
			CallID:       h.CallID,
			TenantID:     h.TenantID,
			RegisteredAt: h.RegisteredAt,
			Recording:    h.Recording(),
		})
		return true
	})
	return out
}

// ReleaseAll releases every handler and waits for their heartbeat loops to
// exit. Used on shutdown.
func (r *Registry) ReleaseAll() {
	var released []*Handler
	r.handlers.Range(func(key, v any) bool {
		released = append(released, v.(*Handler))
		r.Release(key.(string))
		return true
	})
	for _, h := range released {
		<-h.Done()
	}
}

// heartbeatLoop fires the keep-alive action on a fixed schedule until the
// handler is released. Each beat runs as its own goroutine so a slow or
// failed keep-alive never delays the next tick.
func (r *Registry) heartbeatLoop(h *Handler) {
	defer close(h.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go r.beat(h)
		case <-h.stopCh:
			return
		}
	}
}

// beat performs one keep-alive. Failures are logged and counted, never
// escalated; a failed beat is simply retried at the next tick.
func (r *Registry) beat(h *Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in keep-alive beat", "call_id", h.CallID, "panic", rec)
		}
	}()

	if r.counters != nil {
		r.counters.KeepAliveBeats.Add(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), keepAliveTimeout)
	defer cancel()

	err := r.keepAlive.KeepAlive(ctx, h.TenantID, h.ScenarioID, h.CallID)
	if err == nil {
		r.logger.Debug("keep-alive sent", "call_id", h.CallID)
		return
	}

	if h.released() {
		// The call went away while the beat was in flight; the result is
		// discarded rather than reported.
		r.logger.Debug("keep-alive after release discarded", "call_id", h.CallID, "error", err)
		return
	}

	if r.counters != nil {
		r.counters.KeepAliveFailures.Add(1)
	}
	r.logger.Warn("keep-alive failed",
		"call_id", h.CallID,
		"tenant_id", h.TenantID,
		"scenario_id", h.ScenarioID,
		"error", err,
	)
}
