package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DownstreamError is a non-2xx answer from the platform API. The status
// code is preserved so callers answering an inbound webhook can mirror it.
type DownstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements error.
func (e *DownstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform returned status %d", e.StatusCode)
}

// apiError matches the platform's error response body: { "error": { ... } }.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is an HTTP client for the calling platform's communications API.
// It implements the create/record/hang-up/keep-alive actions the lifecycle
// layer drives.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     AccessTokenSource
	logger     *slog.Logger
}

// NewClient creates a platform API client. baseURL is the API root
// (e.g., "https://graph.microsoft.com/v1.0").
func NewClient(baseURL string, tokens AccessTokenSource, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		tokens:     tokens,
		logger:     logger.With("subsystem", "platform"),
	}
}

// CreateCall places an outbound call and returns the platform's view of it.
func (c *Client) CreateCall(ctx context.Context, scenarioID string, req *CallRequest) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodPost, "/communications/calls", req.TenantID, scenarioID, req, &call); err != nil {
		return nil, fmt.Errorf("creating call: %w", err)
	}

	c.logger.Info("call created",
		"call_id", call.ID,
		"state", string(call.State),
		"scenario_id", scenarioID,
	)
	return &call, nil
}

// RecordResponse starts recording the remote party on an established call.
// The request's clientContext carries the call id so the completion
// notification can be correlated back.
func (c *Client) RecordResponse(ctx context.Context, tenant, scenarioID, callID string, req *RecordRequest) (*PlayPromptOperation, error) {
	path := "/communications/calls/" + callID + "/recordResponse"

	var op PlayPromptOperation
	if err := c.do(ctx, http.MethodPost, path, tenant, scenarioID, req, &op); err != nil {
		return nil, fmt.Errorf("recording call %s: %w", callID, err)
	}

	c.logger.Info("record operation started",
		"call_id", callID,
		"operation_id", op.ID,
		"status", string(op.Status),
		"scenario_id", scenarioID,
	)
	return &op, nil
}

// HangUp terminates a call.
func (c *Client) HangUp(ctx context.Context, tenant, scenarioID, callID string) error {
	path := "/communications/calls/" + callID
	if err := c.do(ctx, http.MethodDelete, path, tenant, scenarioID, nil, nil); err != nil {
		return fmt.Errorf("hanging up call %s: %w", callID, err)
	}

	c.logger.Info("call hung up", "call_id", callID, "scenario_id", scenarioID)
	return nil
}

// KeepAlive tells the platform an idle call session is still wanted.
func (c *Client) KeepAlive(ctx context.Context, tenant, scenarioID, callID string) error {
	path := "/communications/calls/" + callID + "/keepAlive"
	if err := c.do(ctx, http.MethodPost, path, tenant, scenarioID, nil, nil); err != nil {
		return fmt.Errorf("keep-alive for call %s: %w", callID, err)
	}
	return nil
}

// do performs one authenticated request. A non-2xx status is returned as
// *DownstreamError; out, when non-nil, receives the decoded response body.
func (c *Client) do(ctx context.Context, method, path, tenant, scenarioID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if scenarioID != "" {
		req.Header.Set("Scenario-Id", scenarioID)
	}

	token, err := c.tokens.AccessToken(ctx, tenant)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &DownstreamError{StatusCode: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil {
			derr.Code = apiErr.Error.Code
			derr.Message = apiErr.Error.Message
		}
		return derr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
