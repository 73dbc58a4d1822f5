package call

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dialout/dialout/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeKeepAliver records keep-alive invocations and signals each beat.
type fakeKeepAliver struct {
	mu    sync.Mutex
	calls []string
	err   error
	beats chan struct{}
}

func newFakeKeepAliver() *fakeKeepAliver {
	return &fakeKeepAliver{beats: make(chan struct{}, 64)}
}

func (f *fakeKeepAliver) KeepAlive(ctx context.Context, tenant, scenarioID, callID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, callID)
	err := f.err
	f.mu.Unlock()

	select {
	case f.beats <- struct{}{}:
	default:
	}
	return err
}

func (f *fakeKeepAliver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitForBeat(t *testing.T, f *fakeKeepAliver) {
	t.Helper()
	select {
	case <-f.beats:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keep-alive beat")
	}
}

func TestRegister_Idempotent(t *testing.T) {
	r := NewRegistry(time.Hour, newFakeKeepAliver(), nil, testLogger())
	defer r.ReleaseAll()

	h1 := r.Register("C1", "tenant-a")
	h2 := r.Register("C1", "tenant-a")

	if h1 != h2 {
		t.Error("re-registering the same call id produced a second handler")
	}
	if r.ActiveCallCount() != 1 {
		t.Errorf("active count = %d, want 1", r.ActiveCallCount())
	}
}

func TestRelease_Idempotent(t *testing.T) {
	r := NewRegistry(time.Hour, newFakeKeepAliver(), nil, testLogger())

	h := r.Register("C1", "tenant-a")
	r.Release("C1")
	r.Release("C1")

	if r.ActiveCallCount() != 0 {
		t.Errorf("active count = %d, want 0", r.ActiveCallCount())
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat loop did not exit after release")
	}
}

func TestRelease_UnknownID(t *testing.T) {
	r := NewRegistry(time.Hour, newFakeKeepAliver(), nil, testLogger())

	// Must complete without error or panic.
	r.Release("unknown-id")

	if r.ActiveCallCount() != 0 {
		t.Errorf("active count = %d, want 0", r.ActiveCallCount())
	}
}

func TestHeartbeat_FiresAndStops(t *testing.T) {
	ka := newFakeKeepAliver()
	counters := &metrics.Counters{}
	r := NewRegistry(10*time.Millisecond, ka, counters, testLogger())

	h := r.Register("C1", "tenant-a")

	waitForBeat(t, ka)
	waitForBeat(t, ka)

	r.Release("C1")
	<-h.Done()

	// Drain any beat that was already in flight at release, then confirm
	// the timer is really stopped.
	time.Sleep(30 * time.Millisecond)
	stopped := ka.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := ka.callCount(); got != stopped {
		t.Errorf("keep-alive fired after release: %d -> %d", stopped, got)
	}

	if counters.KeepAliveBeats.Load() < 2 {
		t.Errorf("beat counter = %d, want >= 2", counters.KeepAliveBeats.Load())
	}
}

func TestHeartbeat_FailureIsNotFatal(t *testing.T) {
	ka := newFakeKeepAliver()
	ka.err = errors.New("platform unavailable")
	counters := &metrics.Counters{}
	r := NewRegistry(10*time.Millisecond, ka, counters, testLogger())
	defer r.ReleaseAll()

	r.Register("C1", "tenant-a")

	// The schedule keeps firing despite every beat failing.
	waitForBeat(t, ka)
	waitForBeat(t, ka)
	waitForBeat(t, ka)

	if counters.KeepAliveFailures.Load() < 1 {
		t.Errorf("failure counter = %d, want >= 1", counters.KeepAliveFailures.Load())
	}
}

func TestActive_Snapshots(t *testing.T) {
	r := NewRegistry(time.Hour, newFakeKeepAliver(), nil, testLogger())
	defer r.ReleaseAll()

	r.Register("C1", "tenant-a")
	h2 := r.Register("C2", "tenant-b")
	h2.TryStartRecording()

	snapshots := r.Active()
	if len(snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snapshots))
	}

	byID := make(map[string]Snapshot, len(snapshots))
	for _, s := range snapshots {
		byID[s.CallID] = s
	}
	if byID["C2"].TenantID != "tenant-b" {
		t.Errorf("C2 tenant = %q, want tenant-b", byID["C2"].TenantID)
	}
	if !byID["C2"].Recording {
		t.Error("C2 snapshot should show recording outstanding")
	}
	if byID["C1"].Recording {
		t.Error("C1 snapshot should not show recording")
	}
}

func TestReleaseAll(t *testing.T) {
	r := NewRegistry(time.Hour, newFakeKeepAliver(), nil, testLogger())

	r.Register("C1", "tenant-a")
	r.Register("C2", "tenant-a")
	r.Register("C3", "tenant-b")

	r.ReleaseAll()

	if r.ActiveCallCount() != 0 {
		t.Errorf("active count = %d, want 0", r.ActiveCallCount())
	}
}

func TestTryStartRecording_Guard(t *testing.T) {
	h := newHandler("C1", "tenant-a", "scn-1")

	if !h.TryStartRecording() {
		t.Fatal("first TryStartRecording returned false")
	}
	if h.TryStartRecording() {
		t.Error("second TryStartRecording returned true while outstanding")
	}

	h.AbandonRecording()
	if !h.TryStartRecording() {
		t.Error("TryStartRecording returned false after abandon")
	}
}
