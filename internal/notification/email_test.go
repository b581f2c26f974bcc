package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestEmailService_SendEmailConfirmation(t *testing.T) {
	rec := &recordingSender{}
	svc := NewEmailService(rec, nil)

	err := svc.SendEmailConfirmation(context.Background(), "ann@example.com", "https://app/confirm?token=a&b", 5*24*time.Hour)
	if err != nil {
		t.Fatalf("SendEmailConfirmation: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rec.sent))
	}
	msg := rec.sent[0]
	if msg.To != "ann@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if !strings.Contains(msg.HTMLBody, "token=a&amp;b") {
		t.Error("html body should escape the link")
	}
	if !strings.Contains(msg.TextBody, "https://app/confirm?token=a&b") || !strings.Contains(msg.TextBody, "5 days") {
		t.Errorf("unexpected text body %q", msg.TextBody)
	}
}

func TestEmailService_SendPasswordReset(t *testing.T) {
	rec := &recordingSender{}
	svc := NewEmailService(rec, nil)

	if err := svc.SendPasswordReset(context.Background(), "ann@example.com", "<ann>", "https://app/reset", 3*24*time.Hour); err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}
	if !strings.Contains(rec.sent[0].HTMLBody, "&lt;ann&gt;") {
		t.Error("username should be escaped")
	}
}

func TestEmailService_SenderError(t *testing.T) {
	boom := errors.New("relay down")
	svc := NewEmailService(&recordingSender{err: boom}, nil)

	err := svc.SendPasswordReset(context.Background(), "a@b.c", "ann", "https://app/reset", time.Hour)
	if !errors.Is(err, boom) {
		t.Errorf("expected relay error, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	if err := NewLogSender(nil).Send(context.Background(), Message{To: "a@b.c"}); err != nil {
		t.Errorf("LogSender.Send: %v", err)
	}
}
