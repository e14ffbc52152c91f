package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestEmailNotifier_RendersHeadersAndFacts(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n, err := NewEmailNotifier(EmailConfig{Host: "smtp.example.test", Port: 587, From: "portal@example.com"})
	if err != nil {
		t.Fatalf("NewEmailNotifier() err=%v", err)
	}
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err = n.Send(context.Background(), Message{
		To:      []string{"dev@example.com"},
		Subject: "Request approved",
		Body:    "Your request was approved.",
		Facts:   []Fact{{Name: "Request", Value: "req-1"}},
		LinkURL: "https://portal.example.test/requests/req-1",
	})
	if err != nil {
		t.Fatalf("Send() err=%v", err)
	}

	if gotAddr != "smtp.example.test:587" {
		t.Fatalf("addr=%q", gotAddr)
	}
	if gotFrom != "portal@example.com" || len(gotTo) != 1 || gotTo[0] != "dev@example.com" {
		t.Fatalf("from=%q to=%v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{
		"Subject: Request approved\r\n",
		"To: dev@example.com\r\n",
		"Request: req-1\r\n",
		"https://portal.example.test/requests/req-1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered mail missing %q:\n%s", want, body)
		}
	}
}

func TestEmailNotifier_RequiresRecipients(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{Host: "smtp.example.test", Port: 587, From: "portal@example.com"})
	if err != nil {
		t.Fatalf("NewEmailNotifier() err=%v", err)
	}
	if err := n.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected error for empty recipients")
	}
}

func TestEmailConfig_Configured(t *testing.T) {
	if (EmailConfig{}).Configured() {
		t.Fatal("empty host must read as not configured")
	}
	if !(EmailConfig{Host: "smtp.example.test"}).Configured() {
		t.Fatal("host set must read as configured")
	}
}
