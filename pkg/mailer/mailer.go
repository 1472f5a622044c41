package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"incident-service/pkg/config"
	"incident-service/pkg/models"
)

var severityColors = map[models.Severity]string{
	models.SeverityInfo:     "#2e7d32",
	models.SeverityWarning:  "#f9a825",
	models.SeverityCritical: "#c62828",
}

// Mailer delivers alerts over SMTP with STARTTLS. Built for Gmail app
// passwords but works against any server that accepts plain auth on 587.
type Mailer struct {
	from     string
	password string
	to       string
	server   string
	port     string
}

func New(cfg *config.Config) *Mailer {
	return &Mailer{
		from:     cfg.EmailFrom,
		password: cfg.EmailAppPassword,
		to:       cfg.EmailTo,
		server:   cfg.SMTPServer,
		port:     cfg.SMTPPort,
	}
}

// Send delivers one alert email. The context is checked before dialing;
// net/smtp does not support mid-send cancellation.
func (m *Mailer) Send(ctx context.Context, payload models.AlertPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.buildMessage(payload)
	auth := smtp.PlainAuth("", m.from, m.password, m.server)
	addr := m.server + ":" + m.port

	if err := smtp.SendMail(addr, auth, m.from, []string{m.to}, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

func (m *Mailer) buildMessage(payload models.AlertPayload) []byte {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(payload.Severity)), payload.Subject)

	color, ok := severityColors[payload.Severity]
	if !ok {
		color = severityColors[models.SeverityWarning]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", m.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")

	b.WriteString("<html><body style=\"font-family: monospace;\">")
	fmt.Fprintf(&b, "<h2 style=\"color: %s;\">%s</h2>", color, htmlEscape(payload.Subject))
	fmt.Fprintf(&b, "<pre>%s</pre>", htmlEscape(payload.Body))
	fmt.Fprintf(&b, "<p style=\"color: #757575; font-size: 12px;\">incident-service | %s | %s</p>",
		htmlEscape(payload.Container), payload.Timestamp.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("</body></html>\r\n")

	return []byte(b.String())
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
