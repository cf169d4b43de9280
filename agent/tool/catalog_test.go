package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

type fakeAgentDispatcher struct {
	req contractx.DispatchRequest
	msg string
	err error
}

func (f *fakeAgentDispatcher) DispatchAgent(ctx context.Context, req contractx.DispatchRequest) (string, error) {
	f.req = req
	return f.msg, f.err
}

type fakeStatusReader struct {
	latest     string
	stopMsg    string
	stopReason string
	stopAgent  string
}

func (f *fakeStatusReader) Latest(ctx context.Context, channel, agentID, userID string) (string, error) {
	return f.latest, nil
}

func (f *fakeStatusReader) Stop(ctx context.Context, channel, agentID, reason string) (string, error) {
	f.stopAgent = agentID
	f.stopReason = reason
	return f.stopMsg, nil
}

type fakeSearcher struct {
	results []contractx.SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	return f.results, f.err
}

type fakeToolDirectory struct {
	recorded []contractx.SearchResult
}

func (f *fakeToolDirectory) Record(ctx context.Context, userID string, results []contractx.SearchResult) error {
	f.recorded = append(f.recorded, results...)
	return nil
}

func (f *fakeToolDirectory) Resolve(ctx context.Context, userID, name string) (string, bool, error) {
	return "", false, nil
}

type fakeToolPolicy struct {
	action string
}

func (f *fakeToolPolicy) Set(ctx context.Context, channel, action string) error {
	f.action = action
	return nil
}

func (f *fakeToolPolicy) Get(ctx context.Context, channel string) (string, error) {
	return f.action, nil
}

type catalogFixture struct {
	catalog    *Catalog
	dispatcher *fakeAgentDispatcher
	status     *fakeStatusReader
	searcher   *fakeSearcher
	directory  *fakeToolDirectory
	policy     *fakeToolPolicy
}

func newCatalog(t *testing.T) *catalogFixture {
	t.Helper()

	f := &catalogFixture{
		dispatcher: &fakeAgentDispatcher{msg: "dispatched"},
		status:     &fakeStatusReader{latest: "in progress", stopMsg: "stopped"},
		searcher:   &fakeSearcher{},
		directory:  &fakeToolDirectory{},
		policy:     &fakeToolPolicy{},
	}

	catalog, err := Build("v1", Deps{
		Dispatcher: f.dispatcher,
		Status:     f.status,
		Searcher:   f.searcher,
		Directory:  f.directory,
		Policy:     f.policy,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.catalog = catalog
	return f
}

func run(t *testing.T, f *catalogFixture, name string, args map[string]any) (string, error) {
	t.Helper()
	handler, ok := f.catalog.Registry.Handler(name)
	if !ok {
		t.Fatalf("handler %q not registered", name)
	}
	return handler(context.Background(), "app-1", "user-1", "ch-1", args)
}

func TestBuildRegistersEveryTool(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	for _, name := range []string{ToolDispatchCallAgent, ToolGetCallStatus, ToolStopCallAgent, ToolSearchBusiness, ToolSetCallAction} {
		if _, ok := f.catalog.Registry.Handler(name); !ok {
			t.Fatalf("tool %q not registered", name)
		}
	}
	if len(f.catalog.CallInitiating) != 1 || f.catalog.CallInitiating[0] != ToolDispatchCallAgent {
		t.Fatalf("unexpected call-initiating set: %#v", f.catalog.CallInitiating)
	}
	if f.catalog.Classes[ToolDispatchCallAgent] != contractx.ToolClassAffirmation {
		t.Fatal("dispatch must be classed as affirmation")
	}
	if f.catalog.Classes[ToolGetCallStatus] != contractx.ToolClassData {
		t.Fatal("status must be classed as data")
	}
}

func TestBuildWithoutSearcherSkipsSearchTool(t *testing.T) {
	t.Parallel()

	catalog, err := Build("v1", Deps{
		Dispatcher: &fakeAgentDispatcher{},
		Status:     &fakeStatusReader{},
		Directory:  &fakeToolDirectory{},
		Policy:     &fakeToolPolicy{},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := catalog.Registry.Handler(ToolSearchBusiness); ok {
		t.Fatal("search tool must be absent without a searcher")
	}
}

func TestDispatchHandlerMapsArguments(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	msg, err := run(t, f, ToolDispatchCallAgent, map[string]any{
		"specialization":  "order",
		"phone":           "+15551234567",
		"customer_name":   "Maria Lopez",
		"items":           []any{"pizza", "garlic bread"},
		"delivery_mode":   "delivery",
		"address":         "12 Main St",
		"party_size":      float64(4),
		"time_preference": "7pm",
		"topic":           "",
		"target_name":     "Tony's Pizza",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if msg != "dispatched" {
		t.Fatalf("unexpected message: %q", msg)
	}

	req := f.dispatcher.req
	if req.Specialization != contractx.SpecializationOrder {
		t.Fatalf("unexpected specialization: %s", req.Specialization)
	}
	if req.AppID != "app-1" || req.UserID != "user-1" || req.Channel != "ch-1" {
		t.Fatalf("caller identity not threaded through: %#v", req)
	}
	if len(req.Customer.Items) != 2 || req.Customer.Items[0] != "pizza" {
		t.Fatalf("unexpected items: %#v", req.Customer.Items)
	}
	if req.Customer.PartySize != 4 {
		t.Fatalf("unexpected party size: %d", req.Customer.PartySize)
	}
}

func TestDispatchHandlerDefaultsPhoneToAuto(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	if _, err := run(t, f, ToolDispatchCallAgent, map[string]any{
		"specialization": "order",
		"customer_name":  "Maria Lopez",
		"target_name":    "Tony's Pizza",
	}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if f.dispatcher.req.Phone != contractx.PhoneAuto {
		t.Fatalf("unexpected phone: %q", f.dispatcher.req.Phone)
	}
}

func TestDispatchHandlerRelaysValidationMessage(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	f.dispatcher.msg = "I need the customer's real name before calling."
	f.dispatcher.err = contractx.ErrValidation

	msg, err := run(t, f, ToolDispatchCallAgent, map[string]any{"specialization": "order"})
	if err != nil {
		t.Fatalf("conversational failure must not be an error, got %v", err)
	}
	if !strings.Contains(msg, "real name") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestStopHandlerDefaultsReason(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	if _, err := run(t, f, ToolStopCallAgent, map[string]any{"agent_id": "agent-1"}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if f.status.stopAgent != "agent-1" {
		t.Fatalf("unexpected agent id: %q", f.status.stopAgent)
	}
	if f.status.stopReason != "user request" {
		t.Fatalf("unexpected reason: %q", f.status.stopReason)
	}
}

func TestSearchHandlerRecordsAndFormats(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	f.searcher.results = []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza", Phone: "+15551234567"},
		{ID: "b2", Name: "Luigi's", Phone: ""},
	}

	msg, err := run(t, f, ToolSearchBusiness, map[string]any{"query": "pizza"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !strings.Contains(msg, "Tony's Pizza") || !strings.Contains(msg, "+15551234567") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "Luigi's") {
		t.Fatalf("phoneless hits still belong in the reply, got %q", msg)
	}
	if len(f.directory.recorded) != 2 {
		t.Fatalf("all results go to the directory, got %#v", f.directory.recorded)
	}
}

func TestSearchHandlerEmptyResults(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	msg, err := run(t, f, ToolSearchBusiness, map[string]any{"query": "nonexistent"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !strings.Contains(msg, "No businesses found") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if len(f.directory.recorded) != 0 {
		t.Fatal("nothing to record for an empty result set")
	}
}

func TestSearchHandlerRequiresQuery(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	if _, err := run(t, f, ToolSearchBusiness, map[string]any{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetCallActionHandler(t *testing.T) {
	t.Parallel()

	f := newCatalog(t)
	msg, err := run(t, f, ToolSetCallAction, map[string]any{"action": "conference"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if f.policy.action != "conference" {
		t.Fatalf("policy not updated: %q", f.policy.action)
	}
	if !strings.Contains(msg, "conference") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestInfosCoverEveryTool(t *testing.T) {
	t.Parallel()

	infos := Infos()
	if len(infos) != 5 {
		t.Fatalf("expected 5 tool infos, got %d", len(infos))
	}
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Name] = true
		if info.Desc == "" {
			t.Fatalf("tool %q missing description", info.Name)
		}
	}
	for _, name := range []string{ToolDispatchCallAgent, ToolGetCallStatus, ToolStopCallAgent, ToolSearchBusiness, ToolSetCallAction} {
		if !seen[name] {
			t.Fatalf("tool %q missing from infos", name)
		}
	}
}
