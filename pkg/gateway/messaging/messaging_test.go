package messaging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestClient_SendPostsMessage(t *testing.T) {
	var got struct {
		From string `json:"from"`
		To   string `json:"to"`
		Body string `json:"body"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sms_key", "+15550000", srv.Client())
	if err := c.Send(t.Context(), "+15551234", "your checkout link"); err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if auth != "Bearer sms_key" {
		t.Fatalf("auth header = %q", auth)
	}
	if got.From != "+15550000" || got.To != "+15551234" || got.Body != "your checkout link" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sms_key", "+15550000", srv.Client())
	if err := c.Send(t.Context(), "+15551234", "hello"); err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad number", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sms_key", "+15550000", srv.Client())
	err := c.Send(t.Context(), "+15551234", "hello")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("err = %v, want status 400", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestClient_UnconfiguredRejectsSend(t *testing.T) {
	c := NewClient("", "", "", nil)
	if c.Configured() {
		t.Fatal("Configured() = true for empty client")
	}
	if err := c.Send(t.Context(), "+15551234", "hello"); err == nil {
		t.Fatal("expected error from unconfigured client")
	}
}
