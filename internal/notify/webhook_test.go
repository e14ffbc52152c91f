package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifier_SendsMessageCard(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type=%q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewWebhookNotifier() err=%v", err)
	}
	err = n.Send(context.Background(), Message{
		Subject: "Request approved",
		Body:    "aks-cluster approved by ops@example.com",
		Facts:   []Fact{{Name: "Request", Value: "req-1"}},
		LinkURL: "https://portal.example.test/requests/req-1",
	})
	if err != nil {
		t.Fatalf("Send() err=%v", err)
	}

	if got["@type"] != "MessageCard" {
		t.Fatalf("@type=%v", got["@type"])
	}
	if got["summary"] != "Request approved" {
		t.Fatalf("summary=%v", got["summary"])
	}
	if _, ok := got["potentialAction"]; !ok {
		t.Fatal("expected potentialAction for link")
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewWebhookNotifier() err=%v", err)
	}
	if err := n.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

type failingNotifier struct{ err error }

func (f failingNotifier) Send(ctx context.Context, msg Message) error { return f.err }

func TestMulti_AttemptsAllChannels(t *testing.T) {
	sent := 0
	counting := notifierFunc(func(ctx context.Context, msg Message) error {
		sent++
		return nil
	})
	failure := errors.New("smtp down")
	m := Multi{Notifiers: []Notifier{failingNotifier{err: failure}, counting}}

	err := m.Send(context.Background(), Message{Subject: "x"})
	if !errors.Is(err, failure) {
		t.Fatalf("expected joined failure, got %v", err)
	}
	if sent != 1 {
		t.Fatalf("second channel not attempted, sent=%d", sent)
	}
}

type notifierFunc func(ctx context.Context, msg Message) error

func (f notifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
