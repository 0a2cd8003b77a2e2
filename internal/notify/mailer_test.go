// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/aiqx/core-service/internal/domain"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(sent *[]sentMail, sendErr error) *Mailer {
	m := NewMailer(Config{
		Host:          "mail.example.com",
		Port:          587,
		SenderName:    "AIQX Core",
		SenderAddress: "noreply@example.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if sendErr != nil {
			return sendErr
		}
		*sent = append(*sent, sentMail{
			addr: addr,
			from: from,
			to:   append([]string(nil), to...),
			msg:  string(msg),
		})
		return nil
	}
	return m
}

func TestSendStepHandoff(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, nil)

	err := m.SendStepHandoff(context.Background(),
		[]string{"owner@example.com"},
		"P01-H2-welding-check", "en",
		"https://portal.example.com/use-cases/123",
		domain.StepInitialFeasibilityCheck)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("expected 1 mail got %d", len(sent))
	}
	mail := sent[0]
	if mail.addr != "mail.example.com:587" {
		t.Fatalf("unexpected smtp addr %s", mail.addr)
	}
	if mail.from != "noreply@example.com" {
		t.Fatalf("unexpected sender %s", mail.from)
	}
	if len(mail.to) != 1 || mail.to[0] != "owner@example.com" {
		t.Fatalf("unexpected recipients %v", mail.to)
	}
	if !strings.Contains(mail.msg, "Subject: Use case P01-H2-welding-check: step initial-feasibility-check completed") {
		t.Fatalf("missing subject in message:\n%s", mail.msg)
	}
	if !strings.Contains(mail.msg, `href="https://portal.example.com/use-cases/123"`) {
		t.Fatalf("missing detail link in message:\n%s", mail.msg)
	}
	if !strings.Contains(mail.msg, "Content-Type: text/html") {
		t.Fatal("expected html content type")
	}
}

func TestSendStepHandoffGerman(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, nil)

	err := m.SendStepHandoff(context.Background(),
		[]string{"owner@example.com"},
		"P01-H2-welding-check", "DE",
		"https://portal.example.com/use-cases/123",
		domain.StepOffer)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(sent[0].msg, "Subject: Use Case P01-H2-welding-check: Schritt offer abgeschlossen") {
		t.Fatalf("expected german subject:\n%s", sent[0].msg)
	}
}

func TestSendStepHandoffUnknownLanguageFallsBack(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, nil)

	err := m.SendStepHandoff(context.Background(),
		[]string{"owner@example.com"},
		"uc", "fr", "https://example.com/1", domain.StepOrder)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(sent[0].msg, "Subject: Use case uc:") {
		t.Fatalf("expected english fallback:\n%s", sent[0].msg)
	}
}

func TestSendStepHandoffNoRecipients(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, nil)

	if err := m.SendStepHandoff(context.Background(), nil, "uc", "en", "", domain.StepOrder); err == nil {
		t.Fatal("expected error for empty recipients")
	}
}

func TestSendStepHandoffDeliveryError(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, errors.New("connection refused"))

	err := m.SendStepHandoff(context.Background(),
		[]string{"owner@example.com"}, "uc", "en", "", domain.StepOrder)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if !strings.Contains(err.Error(), "smtp send") {
		t.Fatalf("expected wrapped smtp error, got %v", err)
	}
}

func TestSendStepHandoffCancelledContext(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(&sent, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.SendStepHandoff(ctx, []string{"owner@example.com"}, "uc", "en", "", domain.StepOrder)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if len(sent) != 0 {
		t.Fatal("no mail must be sent after cancellation")
	}
}
