package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dialout/dialout/internal/platform"
)

// startCallRequest is the operator request to place an outbound call.
type startCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	TenantID    string `json:"tenant_id,omitempty"`
}

// handleStartCall places an outbound PSTN call via the platform.
func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	created, err := s.dialer.StartCall(r.Context(), req.PhoneNumber, req.TenantID)
	if err != nil {
		var derr *platform.DownstreamError
		if errors.As(err, &derr) && derr.StatusCode >= 400 {
			writeError(w, derr.StatusCode, "platform rejected the call")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to place call")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}
