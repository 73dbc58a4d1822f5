package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dialout/dialout/internal/auth"
	"github.com/dialout/dialout/internal/call"
	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
)

type fakeValidator struct {
	result auth.Result
}

func (f *fakeValidator) Validate(ctx context.Context, r *http.Request) auth.Result {
	return f.result
}

type fakeProcessor struct {
	tenant string
	batch  []platform.Notification
	err    error
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, tenant string, batch []platform.Notification) error {
	f.tenant = tenant
	f.batch = batch
	return f.err
}

type fakeDialer struct {
	phone   string
	tenant  string
	created *platform.Call
	err     error
}

func (f *fakeDialer) StartCall(ctx context.Context, phoneNumber, tenant string) (*platform.Call, error) {
	f.phone = phoneNumber
	f.tenant = tenant
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

type fakeActive struct {
	snapshots []call.Snapshot
}

func (f *fakeActive) Active() []call.Snapshot { return f.snapshots }

type serverFixture struct {
	server    *Server
	validator *fakeValidator
	processor *fakeProcessor
	dialer    *fakeDialer
	active    *fakeActive
	counters  *metrics.Counters
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		validator: &fakeValidator{result: auth.Result{Valid: true, TenantID: "tenant-a"}},
		processor: &fakeProcessor{},
		dialer:    &fakeDialer{created: &platform.Call{ID: "C1"}},
		active:    &fakeActive{},
		counters:  &metrics.Counters{},
	}
	f.server = NewServer(f.processor, f.dialer, f.active, f.validator, nil, f.counters, nil)
	return f
}

const callbackBody = `{
	"@odata.type": "#microsoft.graph.commsNotifications",
	"value": [
		{
			"@odata.type": "#microsoft.graph.commsNotification",
			"changeType": "updated",
			"resource": "/communications/calls/C1",
			"resourceData": {
				"@odata.type": "#microsoft.graph.call",
				"id": "C1",
				"state": "established"
			}
		}
	]
}`

func postCallback(f *serverFixture, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestCallback_Accepted(t *testing.T) {
	f := newTestServer(t)

	rec := postCallback(f, callbackBody)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	if f.processor.tenant != "tenant-a" {
		t.Errorf("processor tenant = %q, want the validated tenant", f.processor.tenant)
	}
	if len(f.processor.batch) != 1 {
		t.Fatalf("processor batch size = %d, want 1", len(f.processor.batch))
	}

	var resp struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data["received"] != 1 {
		t.Errorf("received = %d, want 1", resp.Data["received"])
	}
}

func TestCallback_AuthRejected(t *testing.T) {
	f := newTestServer(t)
	f.validator.result = auth.Result{Valid: false}

	rec := postCallback(f, callbackBody)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if f.processor.batch != nil {
		t.Error("processor invoked despite rejected auth")
	}
	if f.counters.AuthRejections.Load() != 1 {
		t.Errorf("auth rejections = %d, want 1", f.counters.AuthRejections.Load())
	}
}

func TestCallback_MalformedEnvelope(t *testing.T) {
	f := newTestServer(t)

	for _, body := range []string{"not json", `{"value": "nope"}`, `{}`} {
		rec := postCallback(f, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if f.processor.batch != nil {
		t.Error("processor invoked for malformed payload")
	}
}

func TestCallback_DownstreamStatusMirrored(t *testing.T) {
	f := newTestServer(t)
	f.processor.err = &platform.DownstreamError{StatusCode: http.StatusNotFound, Code: "itemNotFound"}

	rec := postCallback(f, callbackBody)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want the downstream 404", rec.Code)
	}
}

func TestStartCall(t *testing.T) {
	f := newTestServer(t)

	body := `{"phone_number": "+15551230000", "tenant_id": "tenant-b"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	if f.dialer.phone != "+15551230000" || f.dialer.tenant != "tenant-b" {
		t.Errorf("dialer called with phone=%q tenant=%q", f.dialer.phone, f.dialer.tenant)
	}

	var resp struct {
		Data platform.Call `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.ID != "C1" {
		t.Errorf("created call id = %q, want C1", resp.Data.ID)
	}
}

func TestStartCall_BadRequests(t *testing.T) {
	f := newTestServer(t)

	for _, body := range []string{"not json", `{}`, `{"phone_number": "  "}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStartCall_PlatformRejection(t *testing.T) {
	f := newTestServer(t)
	f.dialer.err = &platform.DownstreamError{StatusCode: http.StatusForbidden, Code: "forbidden"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{"phone_number": "+15551230000"}`))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want the platform's 403", rec.Code)
	}
}

func TestActiveCalls(t *testing.T) {
	f := newTestServer(t)
	f.active.snapshots = []call.Snapshot{
		{CallID: "C1", TenantID: "tenant-a", RegisteredAt: time.Now(), Recording: true},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/active", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data []call.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].CallID != "C1" || !resp.Data[0].Recording {
		t.Errorf("snapshots = %+v", resp.Data)
	}
}

func TestActiveCalls_EmptyIsArray(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/active", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("body = %s, want empty array data", rec.Body.String())
	}
}

func TestPromptAudioServed(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/audio/bot-incoming.wav", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty prompt body")
	}
}

func TestHealth(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
