package platform

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a notification body is not a valid
// envelope for the expected schema.
var ErrMalformedPayload = errors.New("malformed notification payload")

// ChangeType describes what happened to the resource named by a notification.
type ChangeType string

// Change types delivered by the platform.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Valid reports whether the change type is one the platform defines.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
		return true
	}
	return false
}

// CallState is the platform-reported state of a call.
type CallState string

// Call states.
const (
	CallStateIncoming     CallState = "incoming"
	CallStateEstablishing CallState = "establishing"
	CallStateEstablished  CallState = "established"
	CallStateHold         CallState = "hold"
	CallStateTransferring CallState = "transferring"
	CallStateRedirecting  CallState = "redirecting"
	CallStateTerminating  CallState = "terminating"
	CallStateTerminated   CallState = "terminated"
)

// AudioState is the media-channel state within a call.
type AudioState string

// Audio states.
const (
	AudioActive   AudioState = "active"
	AudioInactive AudioState = "inactive"
)

// OperationStatus is the status of an asynchronous platform operation.
type OperationStatus string

// Operation statuses.
const (
	OperationNotStarted OperationStatus = "notStarted"
	OperationRunning    OperationStatus = "running"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// Resource type discriminators carried in the "@odata.type" field of
// notification resource data.
const (
	TypeNotifications = "#microsoft.graph.commsNotifications"
	TypeNotification  = "#microsoft.graph.commsNotification"
	TypeCall          = "#microsoft.graph.call"
	TypePlayPromptOp  = "#microsoft.graph.playPromptOperation"
	TypeRecordOp      = "#microsoft.graph.recordOperation"
	TypeMediaConfig   = "#microsoft.graph.serviceHostedMediaConfig"
)

// Envelope is the batch of notifications the platform POSTs to the callback
// endpoint: { "value": [ ... ] }. Entries are kept raw so that one
// undecodable entry does not poison its siblings.
type Envelope struct {
	ODataType string            `json:"@odata.type,omitempty"`
	Value     []json.RawMessage `json:"value"`
}

// Notification is a single resource change event from the platform.
// ResourceData stays raw: it is classified on demand by Resource() and
// round-trips byte-for-byte through re-serialization.
type Notification struct {
	ODataType    string          `json:"@odata.type,omitempty"`
	ChangeType   ChangeType      `json:"changeType"`
	ResourcePath string          `json:"resource,omitempty"`
	ResourceURL  string          `json:"resourceUrl,omitempty"`
	ScenarioID   string          `json:"scenarioId,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	TenantID     string          `json:"tenantId,omitempty"`
	ResourceData json.RawMessage `json:"resourceData,omitempty"`
}

// Resource is the classified form of a notification's resource data.
// Exactly one of the variants below implements it.
type Resource interface {
	ResourceType() string
}

// Call is the platform's view of one call. The local process never owns
// this data; it only reacts to it.
type Call struct {
	ODataType           string           `json:"@odata.type,omitempty"`
	ID                  string           `json:"id,omitempty"`
	State               CallState        `json:"state,omitempty"`
	MediaState          *MediaState      `json:"mediaState,omitempty"`
	Direction           string           `json:"direction,omitempty"`
	CallbackURI         string           `json:"callbackUri,omitempty"`
	CallChainID         string           `json:"callChainId,omitempty"`
	TenantID            string           `json:"tenantId,omitempty"`
	Subject             string           `json:"subject,omitempty"`
	Source              *ParticipantInfo `json:"source,omitempty"`
	Targets             []ParticipantInfo `json:"targets,omitempty"`
	RequestedModalities []string         `json:"requestedModalities,omitempty"`
	MediaConfig         *MediaConfig     `json:"mediaConfig,omitempty"`
	ResultInfo          *ResultInfo      `json:"resultInfo,omitempty"`
}

// ResourceType implements Resource.
func (c *Call) ResourceType() string { return TypeCall }

// PlayPromptOperation is an asynchronous prompt or record operation reported
// by the platform. ClientContext echoes the caller-supplied correlation
// string (here, the call id).
type PlayPromptOperation struct {
	ODataType     string          `json:"@odata.type,omitempty"`
	ID            string          `json:"id,omitempty"`
	Status        OperationStatus `json:"status,omitempty"`
	ClientContext string          `json:"clientContext,omitempty"`
	ResultInfo    *ResultInfo     `json:"resultInfo,omitempty"`
}

// ResourceType implements Resource.
func (p *PlayPromptOperation) ResourceType() string {
	if p.ODataType != "" {
		return p.ODataType
	}
	return TypePlayPromptOp
}

// UnknownResource preserves resource data whose discriminator this version
// does not recognize. It is never dropped at parse time; the lifecycle
// layer logs and skips it.
type UnknownResource struct {
	Type string
	Raw  json.RawMessage
}

// ResourceType implements Resource.
func (u *UnknownResource) ResourceType() string { return u.Type }

// MediaState reports the per-channel media status of a call.
type MediaState struct {
	ODataType string     `json:"@odata.type,omitempty"`
	Audio     AudioState `json:"audio,omitempty"`
}

// ResultInfo carries the platform's result code for a finished call or
// operation.
type ResultInfo struct {
	ODataType string `json:"@odata.type,omitempty"`
	Code      int    `json:"code,omitempty"`
	Subcode   int    `json:"subcode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Identity names one party on a call.
type Identity struct {
	DisplayName string `json:"displayName,omitempty"`
	ID          string `json:"id"`
}

// IdentitySet groups the identity kinds a participant may carry. Only the
// phone leg is used for PSTN calls.
type IdentitySet struct {
	Phone *Identity `json:"phone,omitempty"`
}

// ParticipantInfo describes one target or source of a call.
type ParticipantInfo struct {
	Identity     IdentitySet `json:"identity"`
	CountryCode  string      `json:"countryCode,omitempty"`
	EndpointType string      `json:"endpointType,omitempty"`
	LanguageID   string      `json:"languageId,omitempty"`
	Region       string      `json:"region,omitempty"`
}

// MediaInfo points at a prompt audio resource the platform should prefetch.
type MediaInfo struct {
	URI        string `json:"uri"`
	ResourceID string `json:"resourceId,omitempty"`
}

// MediaPrompt wraps a MediaInfo for prompt playback.
type MediaPrompt struct {
	ODataType string    `json:"@odata.type,omitempty"`
	MediaInfo MediaInfo `json:"mediaInfo"`
}

// MediaConfig selects service-hosted media and lists prompts to prefetch.
type MediaConfig struct {
	ODataType     string      `json:"@odata.type,omitempty"`
	PreFetchMedia []MediaInfo `json:"preFetchMedia,omitempty"`
}

// CallRequest is the body of a createCall request.
type CallRequest struct {
	ODataType           string            `json:"@odata.type,omitempty"`
	CallbackURI         string            `json:"callbackUri"`
	TenantID            string            `json:"tenantId"`
	Targets             []ParticipantInfo `json:"targets"`
	RequestedModalities []string          `json:"requestedModalities"`
	MediaConfig         *MediaConfig      `json:"mediaConfig,omitempty"`
	Direction           string            `json:"direction,omitempty"`
	Subject             string            `json:"subject,omitempty"`
}

// RecordRequest is the body of a recordResponse request.
type RecordRequest struct {
	BargeInAllowed                 bool          `json:"bargeInAllowed"`
	ClientContext                  string        `json:"clientContext"`
	Prompts                        []MediaPrompt `json:"prompts,omitempty"`
	MaxRecordDurationInSeconds     int           `json:"maxRecordDurationInSeconds"`
	InitialSilenceTimeoutInSeconds int           `json:"initialSilenceTimeoutInSeconds"`
	MaxSilenceTimeoutInSeconds     int           `json:"maxSilenceTimeoutInSeconds"`
	PlayBeep                       bool          `json:"playBeep"`
	StopTones                      []string      `json:"stopTones,omitempty"`
}

// discriminator peeks at the "@odata.type" field of a raw JSON object.
type discriminator struct {
	ODataType string `json:"@odata.type"`
}

// Resource classifies the notification's resource data by its "@odata.type"
// discriminator. Data with an unrecognized or missing discriminator is
// returned as *UnknownResource, never dropped. A nil result with nil error
// means the notification carried no resource data at all.
func (n *Notification) Resource() (Resource, error) {
	if len(n.ResourceData) == 0 {
		return nil, nil
	}

	var d discriminator
	if err := json.Unmarshal(n.ResourceData, &d); err != nil {
		return nil, fmt.Errorf("classifying resource data: %w", err)
	}

	switch d.ODataType {
	case TypeCall:
		var call Call
		if err := json.Unmarshal(n.ResourceData, &call); err != nil {
			return nil, fmt.Errorf("decoding call resource: %w", err)
		}
		return &call, nil
	case TypePlayPromptOp, TypeRecordOp:
		// Record operations share the prompt-operation shape; both carry the
		// clientContext used for call correlation.
		var op PlayPromptOperation
		if err := json.Unmarshal(n.ResourceData, &op); err != nil {
			return nil, fmt.Errorf("decoding operation resource: %w", err)
		}
		return &op, nil
	default:
		return &UnknownResource{Type: d.ODataType, Raw: n.ResourceData}, nil
	}
}
