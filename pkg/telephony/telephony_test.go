package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

func TestClassifyResult(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		result     string
		wantOK     bool
		wantReason string
	}{
		{"bridged", "call bridged successfully", true, ""},
		{"plain ok", "ok", true, ""},
		{"busy", "call failed: line busy", false, contractx.ReasonBusy},
		{"invalid number", "invalid destination number", false, contractx.ReasonInvalidDestination},
		{"provider error", "provider error: carrier rejected", false, contractx.ReasonProviderError},
		{"bare failure", "call failed", false, contractx.ReasonUnknownFailure},
		// "busy" alone is not a failure marker; the bridge says "failed",
		// "error", or "invalid" when something went wrong.
		{"busy without failure marker", "line busy tone detected, retrying", true, ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyResult(tc.result)
			if got.OK != tc.wantOK {
				t.Fatalf("ClassifyResult(%q).OK = %v, want %v", tc.result, got.OK, tc.wantOK)
			}
			if got.ReasonCode != tc.wantReason {
				t.Fatalf("ClassifyResult(%q).ReasonCode = %q, want %q", tc.result, got.ReasonCode, tc.wantReason)
			}
			if got.Detail != tc.result {
				t.Fatalf("Detail should carry the raw text, got %q", got.Detail)
			}
		})
	}
}

func TestPlaceSendsCallerIDAndClassifies(t *testing.T) {
	t.Parallel()

	var gotReq placeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.URL.Path != "/calls" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"result":"call bridged"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, APIKey: "key-1", CallerID: "+15550000000"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	result, err := client.Place(context.Background(), "app-1", "session-1", "+15551234567")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if !result.OK {
		t.Fatalf("unexpected result: %#v", result)
	}

	if gotReq.SessionID != "session-1" || gotReq.Destination != "+15551234567" {
		t.Fatalf("unexpected request: %#v", gotReq)
	}
	if gotReq.CallerID != "+15550000000" {
		t.Fatalf("caller id missing from request: %#v", gotReq)
	}
}

func TestPlaceBridgeFailureIsStructuredNotError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		fmt.Fprint(w, `{"result":"call failed: destination busy"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, APIKey: "key-1", CallerID: "+15550000000"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	result, err := client.Place(context.Background(), "app-1", "session-1", "+15551234567")
	if err != nil {
		t.Fatalf("bridge-reported failure must not be an error, got %v", err)
	}
	if result.OK || result.ReasonCode != contractx.ReasonBusy {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestPlaceHTTPFailureIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, APIKey: "key-1", CallerID: "+15550000000"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Place(context.Background(), "app-1", "session-1", "+15551234567"); err == nil {
		t.Fatal("expected error but got nil")
	}
}

func TestPlaceValidatesInputs(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{URL: "http://localhost:1", APIKey: "key-1", CallerID: "+15550000000"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Place(context.Background(), "app-1", "", "+15551234567"); err == nil {
		t.Fatal("expected error for missing session id")
	}
	if _, err := client.Place(context.Background(), "app-1", "session-1", ""); err == nil {
		t.Fatal("expected error for missing destination")
	}
}
