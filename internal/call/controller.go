package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
)

// ErrInvalidOperationState marks an operation notification whose client
// context is empty: the platform sent a completion event this service
// cannot correlate to a call.
var ErrInvalidOperationState = errors.New("operation notification has no client context")

// Record options used for every recordResponse request.
const (
	recordStopTone           = "#"
	recordMaxDurationSeconds = 20
	recordSilenceSeconds     = 2
)

// ActionClient is the subset of the platform client the lifecycle
// controller drives.
type ActionClient interface {
	RecordResponse(ctx context.Context, tenant, scenarioID, callID string, req *platform.RecordRequest) (*platform.PlayPromptOperation, error)
	HangUp(ctx context.Context, tenant, scenarioID, callID string) error
}

// Controller reacts to platform notifications: it starts recording when a
// call is established with active audio, hangs up when the record/prompt
// operation completes, and releases the call's handler when the platform
// reports the call gone.
type Controller struct {
	actions  ActionClient
	registry *Registry
	counters *metrics.Counters
	logger   *slog.Logger
}

// NewController creates a lifecycle controller. counters may be nil.
func NewController(actions ActionClient, registry *Registry, counters *metrics.Counters, logger *slog.Logger) *Controller {
	return &Controller{
		actions:  actions,
		registry: registry,
		counters: counters,
		logger:   logger.With("subsystem", "lifecycle"),
	}
}

// ProcessBatch handles the entries of one notification batch in order.
// Each entry is handled independently: a failure is logged and does not
// stop delivery to its siblings. The first platform fault encountered is
// returned so a webhook response can mirror its status; all other entry
// errors surface only in the log.
func (c *Controller) ProcessBatch(ctx context.Context, tenant string, batch []platform.Notification) error {
	if c.counters != nil {
		c.counters.NotificationBatches.Add(1)
	}

	var firstFault error
	for i := range batch {
		n := &batch[i]
		err := c.process(ctx, tenant, n)
		if err == nil {
			if c.counters != nil {
				c.counters.NotificationsProcessed.Add(1)
			}
			continue
		}

		c.logger.Error("notification handling failed",
			"index", i,
			"change_type", string(n.ChangeType),
			"resource_url", n.ResourceURL,
			"scenario_id", n.ScenarioID,
			"error", err,
		)

		var derr *platform.DownstreamError
		if errors.As(err, &derr) {
			if c.counters != nil {
				c.counters.DownstreamFaults.Add(1)
			}
			if firstFault == nil {
				firstFault = err
			}
		}
	}
	return firstFault
}

// process dispatches one notification by its classified resource type.
func (c *Controller) process(ctx context.Context, tenant string, n *platform.Notification) error {
	res, err := n.Resource()
	if err != nil {
		// Malformed entry in an otherwise valid batch: skip with a warning
		// rather than failing the siblings.
		c.skip(n, "unparseable resource data", "error", err)
		return nil
	}
	if res == nil {
		c.skip(n, "notification without resource data")
		return nil
	}

	switch res := res.(type) {
	case *platform.Call:
		return c.handleCall(ctx, tenant, n, res)
	case *platform.PlayPromptOperation:
		return c.handleOperation(ctx, tenant, n, res)
	case *platform.UnknownResource:
		// Future resource types must not crash dispatch.
		c.skip(n, "unrecognized resource type", "resource_type", res.Type)
		return nil
	default:
		c.skip(n, "unhandled resource variant", "resource_type", res.ResourceType())
		return nil
	}
}

// handleCall applies the call-state transition rules to a call resource.
func (c *Controller) handleCall(ctx context.Context, tenant string, n *platform.Notification, res *platform.Call) error {
	if res.ID == "" {
		c.skip(n, "call resource without id")
		return nil
	}
	tenant = pickTenant(res.TenantID, n.TenantID, tenant)

	// The platform reported the call removed: release the handler and treat
	// the id as closed.
	if n.ChangeType == platform.ChangeDeleted && res.State == platform.CallStateTerminated {
		c.registry.Release(res.ID)
		return nil
	}

	// A newly appearing call gets a handler so its session is kept alive.
	if n.ChangeType == platform.ChangeCreated {
		c.registry.Register(res.ID, tenant)
	}

	if res.State == platform.CallStateEstablished && res.MediaState != nil && res.MediaState.Audio == platform.AudioActive {
		return c.startRecording(ctx, tenant, n.ScenarioID, res.ID)
	}

	c.logger.Debug("call state observed",
		"call_id", res.ID,
		"state", string(res.State),
		"change_type", string(n.ChangeType),
	)
	return nil
}

// startRecording issues the record action for an established call with
// active audio, at most once per call while the operation is outstanding.
func (c *Controller) startRecording(ctx context.Context, tenant, scenarioID, callID string) error {
	h := c.registry.Register(callID, tenant)
	if !h.TryStartRecording() {
		c.logger.Debug("record already outstanding", "call_id", callID)
		return nil
	}

	req := &platform.RecordRequest{
		BargeInAllowed: true,
		ClientContext:  callID,
		PlayBeep:       true,
		StopTones:      []string{recordStopTone},

		MaxRecordDurationInSeconds:     recordMaxDurationSeconds,
		InitialSilenceTimeoutInSeconds: recordSilenceSeconds,
		MaxSilenceTimeoutInSeconds:     recordSilenceSeconds,
	}

	if _, err := c.actions.RecordResponse(ctx, tenant, scenarioID, callID, req); err != nil {
		// No operation is outstanding after a failed request; the next
		// established/active notification may try again.
		h.AbandonRecording()
		return err
	}

	if c.counters != nil {
		c.counters.RecordingsStarted.Add(1)
	}
	return nil
}

// handleOperation reacts to prompt/record operation progress. Only the
// completed status drives an action; running and failed are explicit no-ops.
func (c *Controller) handleOperation(ctx context.Context, tenant string, n *platform.Notification, op *platform.PlayPromptOperation) error {
	if strings.TrimSpace(op.ClientContext) == "" {
		return ErrInvalidOperationState
	}
	if op.Status != platform.OperationCompleted {
		c.logger.Debug("operation progress",
			"operation_id", op.ID,
			"status", string(op.Status),
			"call_id", op.ClientContext,
		)
		return nil
	}

	callID := op.ClientContext
	tenant = pickTenant(n.TenantID, tenant)

	if err := c.actions.HangUp(ctx, tenant, n.ScenarioID, callID); err != nil {
		return err
	}
	if c.counters != nil {
		c.counters.HangUps.Add(1)
	}
	return nil
}

// skip logs a notification this version does not act on and counts it.
func (c *Controller) skip(n *platform.Notification, reason string, args ...any) {
	if c.counters != nil {
		c.counters.NotificationsSkipped.Add(1)
	}
	args = append([]any{
		"reason", reason,
		"change_type", string(n.ChangeType),
		"resource_url", n.ResourceURL,
	}, args...)
	c.logger.Warn("notification skipped", args...)
}

// pickTenant returns the first non-blank tenant id.
func pickTenant(candidates ...string) string {
	for _, t := range candidates {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return ""
}
