package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/calldeck/calldeck/agent/contract"
	"github.com/calldeck/calldeck/agent/dispatch"
)

const (
	ToolDispatchCallAgent = "dispatch_call_agent"
	ToolGetCallStatus     = "get_call_status"
	ToolStopCallAgent     = "stop_call_agent"
	ToolSearchBusiness    = "search_business"
	ToolSetCallAction     = "set_call_action"
)

// AgentDispatcher is the lifecycle surface the catalog binds to.
type AgentDispatcher interface {
	DispatchAgent(ctx context.Context, req contractx.DispatchRequest) (string, error)
}

// StatusReader is the tracker surface the catalog binds to.
type StatusReader interface {
	Latest(ctx context.Context, channel, agentID, userID string) (string, error)
	Stop(ctx context.Context, channel, agentID, reason string) (string, error)
}

// Searcher looks up businesses by free-text query. Results flow into the
// phone directory as a side effect of the search tool.
type Searcher interface {
	Search(ctx context.Context, query string) ([]contractx.SearchResult, error)
}

// Deps binds the catalog's handlers to the engine's components.
type Deps struct {
	Dispatcher AgentDispatcher
	Status     StatusReader
	Searcher   Searcher
	Directory  contractx.PhoneDirectory
	Policy     contractx.ActionPolicy
}

// Catalog is the built tool surface: the registry the dispatcher executes
// against plus the per-tool metadata it needs.
type Catalog struct {
	Registry       *dispatch.Registry
	Classes        map[string]contractx.ToolClass
	CallInitiating []string
}

func Build(version string, deps Deps) (*Catalog, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("agent dispatcher is required")
	}
	if deps.Status == nil {
		return nil, errors.New("status reader is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("phone directory is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("action policy is required")
	}

	registry := dispatch.NewRegistry(version)
	registry.Register(ToolDispatchCallAgent, dispatchHandler(deps.Dispatcher))
	registry.Register(ToolGetCallStatus, statusHandler(deps.Status))
	registry.Register(ToolStopCallAgent, stopHandler(deps.Status))
	registry.Register(ToolSetCallAction, actionHandler(deps.Policy))
	if deps.Searcher != nil {
		registry.Register(ToolSearchBusiness, searchHandler(deps.Searcher, deps.Directory))
	}

	return &Catalog{
		Registry: registry,
		Classes: map[string]contractx.ToolClass{
			ToolDispatchCallAgent: contractx.ToolClassAffirmation,
			ToolStopCallAgent:     contractx.ToolClassAffirmation,
			ToolSetCallAction:     contractx.ToolClassAffirmation,
			ToolGetCallStatus:     contractx.ToolClassData,
			ToolSearchBusiness:    contractx.ToolClassData,
		},
		CallInitiating: []string{ToolDispatchCallAgent},
	}, nil
}

func dispatchHandler(dispatcher AgentDispatcher) contractx.Handler {
	return func(ctx context.Context, appID, userID, channel string, args map[string]any) (string, error) {
		req := contractx.DispatchRequest{
			Specialization: contractx.Specialization(stringArg(args, "specialization")),
			Phone:          stringArg(args, "phone"),
			AppID:          appID,
			UserID:         userID,
			Channel:        channel,
			Customer: contractx.CustomerFields{
				Name:           stringArg(args, "customer_name"),
				Items:          stringSliceArg(args, "items"),
				DeliveryMode:   stringArg(args, "delivery_mode"),
				Address:        stringArg(args, "address"),
				PartySize:      intArg(args, "party_size"),
				TimePreference: stringArg(args, "time_preference"),
				Topic:          stringArg(args, "topic"),
				TargetName:     stringArg(args, "target_name"),
			},
		}
		if req.Phone == "" {
			req.Phone = contractx.PhoneAuto
		}

		// Dispatch failures come back as conversational messages paired with
		// sentinel errors. The model only needs the message, so the error is
		// swallowed here once the message exists.
		msg, err := dispatcher.DispatchAgent(ctx, req)
		if err != nil && msg == "" {
			return "", err
		}
		return msg, nil
	}
}

func statusHandler(status StatusReader) contractx.Handler {
	return func(ctx context.Context, _, userID, channel string, args map[string]any) (string, error) {
		return status.Latest(ctx, channel, stringArg(args, "agent_id"), userID)
	}
}

func stopHandler(status StatusReader) contractx.Handler {
	return func(ctx context.Context, _, _, channel string, args map[string]any) (string, error) {
		reason := stringArg(args, "reason")
		if reason == "" {
			reason = "user request"
		}
		return status.Stop(ctx, channel, stringArg(args, "agent_id"), reason)
	}
}

func actionHandler(policy contractx.ActionPolicy) contractx.Handler {
	return func(ctx context.Context, _, _, channel string, args map[string]any) (string, error) {
		action := stringArg(args, "action")
		if action == "" {
			return "", fmt.Errorf("%w: action is required", contractx.ErrValidation)
		}
		if err := policy.Set(ctx, channel, action); err != nil {
			return "", err
		}
		return fmt.Sprintf("Got it. The next call will use the %s action.", action), nil
	}
}

func searchHandler(searcher Searcher, directory contractx.PhoneDirectory) contractx.Handler {
	return func(ctx context.Context, _, userID, _ string, args map[string]any) (string, error) {
		query := stringArg(args, "query")
		if query == "" {
			return "", fmt.Errorf("%w: query is required", contractx.ErrValidation)
		}

		results, err := searcher.Search(ctx, query)
		if err != nil {
			return "", fmt.Errorf("business search: %w", err)
		}
		if len(results) == 0 {
			return fmt.Sprintf("No businesses found for %q.", query), nil
		}

		if err := directory.Record(ctx, userID, results); err != nil {
			return "", fmt.Errorf("record search results: %w", err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d result(s) for %q:\n", len(results), query)
		for i, r := range results {
			fmt.Fprintf(&b, "%d. %s", i+1, r.Name)
			if r.Phone != "" {
				fmt.Fprintf(&b, " (%s)", r.Phone)
			}
			b.WriteString("\n")
		}
		return strings.TrimSpace(b.String()), nil
	}
}

// Infos describes every tool the engine exposes to the model.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolDispatchCallAgent,
			Desc: "Dispatch an ephemeral voice agent to place a phone call on the user's behalf. Gather all required customer details first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"specialization":  {Type: schema.String, Desc: "Call purpose: order, reservation, or inquiry", Required: true},
				"phone":           {Type: schema.String, Desc: "Destination phone number, or \"auto\" to reuse a previously searched business", Required: false},
				"target_name":     {Type: schema.String, Desc: "Business name to dial when phone is auto", Required: false},
				"customer_name":   {Type: schema.String, Desc: "Customer's real name", Required: true},
				"items":           {Type: schema.Array, ElemInfo: &schema.ParameterInfo{Type: schema.String}, Desc: "Items to order", Required: false},
				"delivery_mode":   {Type: schema.String, Desc: "pickup or delivery", Required: false},
				"address":         {Type: schema.String, Desc: "Delivery address, required when delivery_mode is delivery", Required: false},
				"party_size":      {Type: schema.Integer, Desc: "Reservation party size", Required: false},
				"time_preference": {Type: schema.String, Desc: "Preferred reservation time", Required: false},
				"topic":           {Type: schema.String, Desc: "Inquiry topic", Required: false},
			}),
		},
		{
			Name: ToolGetCallStatus,
			Desc: "Get the latest status of the active call agent for this conversation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"agent_id": {Type: schema.String, Desc: "Agent id, omitted to use the conversation's active agent", Required: false},
			}),
		},
		{
			Name: ToolStopCallAgent,
			Desc: "Stop tracking the active call agent and allow a new call to start.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"agent_id": {Type: schema.String, Desc: "Agent id, omitted to use the conversation's active agent", Required: false},
				"reason":   {Type: schema.String, Desc: "Why tracking is being stopped", Required: false},
			}),
		},
		{
			Name: ToolSearchBusiness,
			Desc: "Search for businesses by name or description. Results can later be dialed with phone set to auto.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Free-text search query", Required: true},
			}),
		},
		{
			Name: ToolSetCallAction,
			Desc: "Set the preferred call routing action for the next hour.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"action": {Type: schema.String, Desc: "Routing action, e.g. direct_dial", Required: true},
			}),
		},
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
