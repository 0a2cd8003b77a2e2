// SPDX-License-Identifier: Apache-2.0

// Package notify delivers the step-handoff mail. Delivery failures are
// reported to the caller for logging but are never fatal to the workflow
// operation that triggered them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/aiqx/core-service/internal/domain"
)

type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SenderName    string
	SenderAddress string
}

type Mailer struct {
	cfg    Config
	logger *slog.Logger
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send:   smtp.SendMail,
	}
}

var subjects = map[string]string{
	"en": "Use case %s: step %s completed",
	"de": "Use Case %s: Schritt %s abgeschlossen",
}

var bodyTmpl = template.Must(template.New("handoff").Parse(`<html>
<body>
<p>{{.Intro}}</p>
<p><strong>{{.UseCaseName}}</strong>: {{.StepName}}</p>
<p><a href="{{.DetailURL}}">{{.LinkText}}</a></p>
</body>
</html>`))

var intros = map[string]string{
	"en": "A workflow step was completed and the use case is now waiting for you.",
	"de": "Ein Workflow-Schritt wurde abgeschlossen und der Use Case wartet nun auf Sie.",
}

var linkTexts = map[string]string{
	"en": "Open the use case",
	"de": "Use Case öffnen",
}

// SendStepHandoff renders and delivers the handoff mail in the
// recipient's language, falling back to English.
func (m *Mailer) SendStepHandoff(ctx context.Context, recipients []string, useCaseName, lang, detailURL string, step domain.Step) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := subjects[lang]; !ok {
		lang = "en"
	}

	subject := fmt.Sprintf(subjects[lang], useCaseName, step)

	var body bytes.Buffer
	err := bodyTmpl.Execute(&body, map[string]string{
		"Intro":       intros[lang],
		"UseCaseName": useCaseName,
		"StepName":    step.String(),
		"DetailURL":   detailURL,
		"LinkText":    linkTexts[lang],
	})
	if err != nil {
		return fmt.Errorf("render handoff mail: %w", err)
	}

	msg := buildMessage(m.cfg.SenderName, m.cfg.SenderAddress, recipients, subject, body.Bytes())

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.SenderAddress, recipients, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.logger.Debug("handoff mail delivered",
		"recipients", len(recipients),
		"lang", lang,
		"step", step,
	)
	return nil
}

func buildMessage(senderName, senderAddress string, recipients []string, subject string, body []byte) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", senderName, senderAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body)
	return msg.Bytes()
}
