package platform

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ParseNotifications decodes a callback body into its ordered notification
// entries. A body that is not a valid envelope fails with an error wrapping
// ErrMalformedPayload. A single undecodable entry inside an otherwise valid
// batch is skipped with a warning rather than failing the whole batch.
func ParseNotifications(body []byte) ([]Notification, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Value == nil {
		return nil, fmt.Errorf("%w: missing value array", ErrMalformedPayload)
	}

	notifications := make([]Notification, 0, len(env.Value))
	for i, raw := range env.Value {
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			slog.Warn("skipping undecodable notification entry", "index", i, "error", err)
			continue
		}
		if !n.ChangeType.Valid() {
			slog.Warn("skipping notification with invalid change type",
				"index", i,
				"change_type", string(n.ChangeType),
			)
			continue
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}
