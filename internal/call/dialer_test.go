package call

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
	"github.com/dialout/dialout/internal/prompts"
)

type fakeCreator struct {
	req     *platform.CallRequest
	created *platform.Call
	err     error
}

func (f *fakeCreator) CreateCall(ctx context.Context, scenarioID string, req *platform.CallRequest) (*platform.Call, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

func newTestDialer(t *testing.T, creator *fakeCreator) (*Dialer, *Registry, *metrics.Counters) {
	t.Helper()
	counters := &metrics.Counters{}
	registry := NewRegistry(time.Hour, newFakeKeepAliver(), counters, testLogger())
	t.Cleanup(registry.ReleaseAll)
	d := NewDialer(creator, registry, "https://bot.example.com", "https://bot.example.com/api/v1/callbacks", "tenant-default", counters, testLogger())
	return d, registry, counters
}

func TestStartCall_BuildsRequestAndRegisters(t *testing.T) {
	creator := &fakeCreator{created: &platform.Call{ID: "C1", State: platform.CallStateEstablishing}}
	d, registry, counters := newTestDialer(t, creator)

	created, err := d.StartCall(context.Background(), "+15551230000", "tenant-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "C1" {
		t.Fatalf("created call id = %q, want C1", created.ID)
	}

	req := creator.req
	if req.CallbackURI != "https://bot.example.com/api/v1/callbacks" {
		t.Errorf("callback URI = %q", req.CallbackURI)
	}
	if req.TenantID != "tenant-a" {
		t.Errorf("tenant = %q, want tenant-a", req.TenantID)
	}
	if len(req.Targets) != 1 || req.Targets[0].Identity.Phone == nil || req.Targets[0].Identity.Phone.ID != "+15551230000" {
		t.Errorf("targets = %+v, want one phone identity", req.Targets)
	}
	if len(req.RequestedModalities) != 1 || req.RequestedModalities[0] != "audio" {
		t.Errorf("modalities = %v, want [audio]", req.RequestedModalities)
	}
	if req.MediaConfig == nil || req.MediaConfig.ODataType != platform.TypeMediaConfig {
		t.Fatalf("media config = %+v", req.MediaConfig)
	}
	if len(req.MediaConfig.PreFetchMedia) != len(prompts.Files) {
		t.Errorf("prefetch media count = %d, want %d", len(req.MediaConfig.PreFetchMedia), len(prompts.Files))
	}
	for _, m := range req.MediaConfig.PreFetchMedia {
		if !strings.HasPrefix(m.URI, "https://bot.example.com/audio/") {
			t.Errorf("prompt URI = %q, want bot base prefix", m.URI)
		}
		if m.ResourceID == "" {
			t.Error("prompt missing resource id")
		}
	}

	if _, ok := registry.Get("C1"); !ok {
		t.Error("no handler registered for created call")
	}
	if counters.CallsCreated.Load() != 1 {
		t.Errorf("calls created = %d, want 1", counters.CallsCreated.Load())
	}
}

func TestStartCall_DefaultTenantFallback(t *testing.T) {
	creator := &fakeCreator{created: &platform.Call{ID: "C1"}}
	d, _, _ := newTestDialer(t, creator)

	if _, err := d.StartCall(context.Background(), "+15551230000", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.req.TenantID != "tenant-default" {
		t.Errorf("tenant = %q, want tenant-default", creator.req.TenantID)
	}
}

func TestStartCall_RequiresPhoneNumber(t *testing.T) {
	creator := &fakeCreator{}
	d, registry, _ := newTestDialer(t, creator)

	if _, err := d.StartCall(context.Background(), "   ", "tenant-a"); err == nil {
		t.Fatal("expected error for blank phone number")
	}
	if creator.req != nil {
		t.Error("create call issued despite missing phone number")
	}
	if registry.ActiveCallCount() != 0 {
		t.Errorf("active count = %d, want 0", registry.ActiveCallCount())
	}
}

func TestStartCall_CreateFailure(t *testing.T) {
	creator := &fakeCreator{err: &platform.DownstreamError{StatusCode: 403, Code: "forbidden"}}
	d, registry, counters := newTestDialer(t, creator)

	if _, err := d.StartCall(context.Background(), "+15551230000", "tenant-a"); err == nil {
		t.Fatal("expected downstream error")
	}
	if registry.ActiveCallCount() != 0 {
		t.Errorf("active count = %d, want 0", registry.ActiveCallCount())
	}
	if counters.CallsCreated.Load() != 0 {
		t.Errorf("calls created = %d, want 0", counters.CallsCreated.Load())
	}
}
