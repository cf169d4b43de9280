package contract

import "time"

type Specialization string

const (
	SpecializationOrder       Specialization = "order"
	SpecializationReservation Specialization = "reservation"
	SpecializationInquiry     Specialization = "inquiry"
)

// PhoneAuto asks the lifecycle manager to resolve the destination number
// from the caller's phone directory instead of dialing a literal number.
const PhoneAuto = "auto"

// CustomerFields carries everything the ephemeral agent needs to speak on the
// caller's behalf. Which fields are required depends on the specialization.
type CustomerFields struct {
	Name           string   `json:"name"`
	Items          []string `json:"items,omitempty"`
	DeliveryMode   string   `json:"delivery_mode,omitempty"`
	Address        string   `json:"address,omitempty"`
	PartySize      int      `json:"party_size,omitempty"`
	TimePreference string   `json:"time_preference,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	TargetName     string   `json:"target_name,omitempty"`
}

type DispatchRequest struct {
	Specialization Specialization `json:"specialization"`
	Phone          string         `json:"phone"`
	Customer       CustomerFields `json:"customer"`
	AppID          string         `json:"app_id"`
	UserID         string         `json:"user_id"`
	Channel        string         `json:"channel"`
}

// AgentSession is written once on successful provisioning and never mutated.
type AgentSession struct {
	AgentID        string         `json:"agent_id"`
	Specialization Specialization `json:"specialization"`
	Channel        string         `json:"channel"`
	UserID         string         `json:"user_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

type UpdateKind string

const (
	UpdateKindProgress  UpdateKind = "UPDATE"
	UpdateKindCompleted UpdateKind = "COMPLETED"
	UpdateKindFailed    UpdateKind = "FAILED"
)

type StatusUpdate struct {
	Timestamp time.Time  `json:"timestamp"`
	Status    string     `json:"status"`
	Kind      UpdateKind `json:"kind"`
}

// CallResult is the structured outcome of an outbound call placement. The
// bridge itself reports free text; the telephony client maps that text onto a
// reason code and unrecognized reasons collapse into ReasonUnknownFailure.
type CallResult struct {
	OK         bool   `json:"ok"`
	ReasonCode string `json:"reason_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

const (
	ReasonBusy               = "busy"
	ReasonInvalidDestination = "invalid_destination"
	ReasonProviderError      = "provider_error"
	ReasonUnknownFailure     = "unknown_failure"
)

type JoinRequest struct {
	SessionID      string         `json:"session_id"`
	Token          string         `json:"token"`
	Specialization Specialization `json:"specialization"`
	Script         string         `json:"script"`
	OpeningLine    string         `json:"opening_line"`
}

type JoinResponse struct {
	AgentID string `json:"agent_id"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type HistoryResponse struct {
	Status   string           `json:"status"`
	Contents []HistoryMessage `json:"contents"`
	StartTS  int64            `json:"start_ts"`
}

// SearchResult is the slice of a search backend's response that crosses into
// the phone directory. Everything else stays on the search side.
type SearchResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ToolClass string

const (
	ToolClassAffirmation ToolClass = "affirmation"
	ToolClassData        ToolClass = "data"
)
