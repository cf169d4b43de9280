package contract

import "context"

// Handler executes one tool call and returns the string the model sees as the
// tool result.
type Handler func(ctx context.Context, appID, userID, channel string, args map[string]any) (string, error)

// HandlerRegistry is the version-scoped name->handler lookup injected into the
// dispatcher. Unknown-name behavior belongs to the dispatcher, not the registry.
type HandlerRegistry interface {
	Handler(name string) (Handler, bool)
}

// Telephony bridges a provisioned agent onto an outbound call.
type Telephony interface {
	Place(ctx context.Context, appID, sessionID, destination string) (CallResult, error)
}

// Provisioner is the remote conversational-agent API.
type Provisioner interface {
	Join(ctx context.Context, req JoinRequest) (JoinResponse, error)
	History(ctx context.Context, agentID string) (HistoryResponse, error)
}

// CredentialIssuer mints a bounded-lifetime token scoped to one session.
type CredentialIssuer interface {
	Issue(sessionID string) (string, error)
}

// PhoneDirectory accumulates name->phone mappings from prior search results.
type PhoneDirectory interface {
	Record(ctx context.Context, userID string, results []SearchResult) error
	Resolve(ctx context.Context, userID, name string) (string, bool, error)
}

// ActionPolicy holds the per-channel preferred routing action.
type ActionPolicy interface {
	Set(ctx context.Context, channel, action string) error
	Get(ctx context.Context, channel string) (string, error)
}

// SignificanceFn decides whether a pushed status update differs meaningfully
// from the previous one. Injected so the heuristic can be swapped for a
// structured status schema later.
type SignificanceFn func(newStatus, oldStatus string) bool
