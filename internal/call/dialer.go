package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
	"github.com/dialout/dialout/internal/prompts"
)

// CallCreator places a call on the platform.
type CallCreator interface {
	CreateCall(ctx context.Context, scenarioID string, req *platform.CallRequest) (*platform.Call, error)
}

// Dialer places outbound PSTN calls and registers a handler for each one it
// creates.
type Dialer struct {
	client        CallCreator
	registry      *Registry
	callbackURL   string
	defaultTenant string
	prompts       []platform.MediaInfo
	counters      *metrics.Counters
	logger        *slog.Logger
}

// NewDialer creates a dialer. botBaseURL is the externally reachable base
// the prompt audio is served from; callbackURL is where the platform posts
// notifications.
func NewDialer(client CallCreator, registry *Registry, botBaseURL, callbackURL, defaultTenant string, counters *metrics.Counters, logger *slog.Logger) *Dialer {
	media := make([]platform.MediaInfo, 0, len(prompts.Files))
	for _, f := range prompts.Files {
		media = append(media, platform.MediaInfo{
			URI:        botBaseURL + "/audio/" + f,
			ResourceID: uuid.NewString(),
		})
	}

	return &Dialer{
		client:        client,
		registry:      registry,
		callbackURL:   callbackURL,
		defaultTenant: defaultTenant,
		prompts:       media,
		counters:      counters,
		logger:        logger.With("subsystem", "dialer"),
	}
}

// StartCall places a P2P audio call to the given phone number and registers
// a handler for the created call. tenant falls back to the configured
// default when blank.
func (d *Dialer) StartCall(ctx context.Context, phoneNumber, tenant string) (*platform.Call, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return nil, fmt.Errorf("phone number is required")
	}
	tenant = pickTenant(tenant, d.defaultTenant)
	scenarioID := uuid.NewString()

	req := &platform.CallRequest{
		CallbackURI: d.callbackURL,
		TenantID:    tenant,
		Targets: []platform.ParticipantInfo{{
			Identity: platform.IdentitySet{
				Phone: &platform.Identity{ID: phoneNumber},
			},
		}},
		RequestedModalities: []string{"audio"},
		MediaConfig: &platform.MediaConfig{
			ODataType:     platform.TypeMediaConfig,
			PreFetchMedia: d.prompts,
		},
	}

	created, err := d.client.CreateCall(ctx, scenarioID, req)
	if err != nil {
		return nil, err
	}

	if created.ID != "" {
		d.registry.Register(created.ID, pickTenant(created.TenantID, tenant))
	}
	if d.counters != nil {
		d.counters.CallsCreated.Add(1)
	}

	d.logger.Info("outbound call placed",
		"call_id", created.ID,
		"tenant_id", tenant,
		"scenario_id", scenarioID,
	)
	return created, nil
}
