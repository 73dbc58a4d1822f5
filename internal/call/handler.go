package call

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handler owns the keep-alive timer for one call and the per-call recording
// guard. Handlers are created and destroyed only by the Registry.
type Handler struct {
	CallID       string
	TenantID     string
	ScenarioID   string
	RegisteredAt time.Time

	recording atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newHandler(callID, tenantID, scenarioID string) *Handler {
	return &Handler{
		CallID:       callID,
		TenantID:     tenantID,
		ScenarioID:   scenarioID,
		RegisteredAt: time.Now(),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// TryStartRecording flips the recording guard. It returns true for exactly
// one caller per call; a second established/active notification while a
// record operation is outstanding gets false.
func (h *Handler) TryStartRecording() bool {
	return h.recording.CompareAndSwap(false, true)
}

// AbandonRecording clears the recording guard after a record request failed,
// so a later platform notification can try again.
func (h *Handler) AbandonRecording() {
	h.recording.Store(false)
}

// Recording reports whether a record operation is outstanding.
func (h *Handler) Recording() bool {
	return h.recording.Load()
}

// stop signals the heartbeat loop to exit. Safe to call more than once.
func (h *Handler) stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// released reports whether the handler has been released. In-flight beats
// check this to discard their results quietly.
func (h *Handler) released() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// Done is closed once the heartbeat loop has fully exited.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
