package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramSendSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("token", "chat", srv.URL, time.Second, 0, testLogger())
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	if err := n.SendText(context.Background(), "BTCUSDT basis 1.20%"); err != nil {
		t.Fatalf("SendText should succeed: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id wrong: %#v", received)
	}
	if received["text"] != "BTCUSDT basis 1.20%" {
		t.Fatalf("text wrong: %#v", received)
	}
}

func TestTelegramSendNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("token", "chat", srv.URL, time.Second, 0, testLogger())
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	if err := n.SendText(context.Background(), "x"); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestTelegramLocalRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("token", "chat", srv.URL, time.Second, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	if err := n.SendText(context.Background(), "first"); err != nil {
		t.Fatalf("first send should pass: %v", err)
	}
	if err := n.SendText(context.Background(), "second"); err == nil {
		t.Fatal("second send inside the interval should be dropped")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one HTTP call, got %d", calls)
	}
}

func TestTelegramMissingConfig(t *testing.T) {
	if _, err := NewTelegramNotifier("", "chat", "", time.Second, 0, testLogger()); err == nil {
		t.Fatal("missing bot token should fail construction")
	}
	if _, err := NewTelegramNotifier("token", "", "", time.Second, 0, testLogger()); err == nil {
		t.Fatal("missing chat id should fail construction")
	}
}
