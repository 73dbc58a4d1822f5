package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dialout/dialout/internal/api/middleware"
	"github.com/dialout/dialout/internal/platform"
)

// maxCallbackBody bounds the size of an accepted notification envelope.
const maxCallbackBody = 1 << 20

// handleCallback receives a notification batch from the platform, parses
// it, and hands it to the lifecycle controller. 202 on hand-off, 400 for a
// malformed envelope, and a mirrored status when the platform rejected a
// follow-on action.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	batch, err := platform.ParseNotifications(body)
	if err != nil {
		if errors.Is(err, platform.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, "malformed notification payload")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	tenant := middleware.TenantFromContext(r.Context())

	if err := s.processor.ProcessBatch(r.Context(), tenant, batch); err != nil {
		var derr *platform.DownstreamError
		if errors.As(err, &derr) && derr.StatusCode >= 400 {
			writeError(w, derr.StatusCode, "downstream action failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"received": len(batch)})
}
