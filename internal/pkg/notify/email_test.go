package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"supertodo/internal/config"

	"gopkg.in/gomail.v2"
)

func TestSendWelcome_SkipsWhenNotConfigured(t *testing.T) {
	n := NewEmailNotifier(&config.EmailConfig{SMTPHost: "smtp.example.com"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	called := false
	n.send = func(m *gomail.Message) error {
		called = true
		return nil
	}
	if err := n.SendWelcome(context.Background(), "Ann", "ann@x.com"); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
	if called {
		t.Fatalf("expected no mail to be sent")
	}
}

func TestSendWelcome_SendsMessage(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUser: "u", FromEmail: "noreply@example.com"}
	n := NewEmailNotifier(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var sent *gomail.Message
	n.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}
	if err := n.SendWelcome(context.Background(), "<Ann>", "ann@x.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent == nil {
		t.Fatalf("expected message to be sent")
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "ann@x.com" {
		t.Fatalf("to header = %v", got)
	}
	var body strings.Builder
	if _, err := sent.WriteTo(&body); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if strings.Contains(body.String(), "<Ann>") {
		t.Fatalf("expected name to be escaped")
	}
}

func TestSendWelcome_WrapsTransportError(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPUser: "u", FromEmail: "noreply@example.com"}
	n := NewEmailNotifier(cfg, nil)
	boom := errors.New("connection refused")
	n.send = func(m *gomail.Message) error { return boom }

	if err := n.SendWelcome(context.Background(), "Ann", "ann@x.com"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
