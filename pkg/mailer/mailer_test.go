package mailer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"incident-service/pkg/config"
	"incident-service/pkg/models"
)

func testMailer() *Mailer {
	return New(&config.Config{
		EmailFrom:        "alerts@example.com",
		EmailAppPassword: "app-password",
		EmailTo:          "oncall@example.com",
		SMTPServer:       "smtp.gmail.com",
		SMTPPort:         "587",
	})
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(testMailer().buildMessage(models.AlertPayload{
		Severity:  models.SeverityCritical,
		Container: "prod-db-01",
		Subject:   "URGENT: container prod-db-01 DOWN, auto-heal failed",
		Body:      "details",
		Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}))

	assert.Contains(t, msg, "From: alerts@example.com\r\n")
	assert.Contains(t, msg, "To: oncall@example.com\r\n")
	assert.Contains(t, msg, "Subject: [CRITICAL] URGENT: container prod-db-01 DOWN, auto-heal failed\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, severityColors[models.SeverityCritical])
}

func TestBuildMessageEscapesHTML(t *testing.T) {
	msg := string(testMailer().buildMessage(models.AlertPayload{
		Severity:  models.SeverityWarning,
		Container: "api-server",
		Subject:   "exit <1>",
		Body:      "log line: <script>alert(1)</script> & more",
		Timestamp: time.Now(),
	}))

	assert.NotContains(t, msg, "<script>")
	assert.Contains(t, msg, "&lt;script&gt;")
	assert.Contains(t, msg, "&amp; more")
}

func TestBuildMessageBodyIsPreformatted(t *testing.T) {
	msg := string(testMailer().buildMessage(models.AlertPayload{
		Severity:  models.SeverityWarning,
		Container: "api-server",
		Subject:   "Container api-server is exited",
		Body:      "Status: exited\nExit code: 1",
		Timestamp: time.Now(),
	}))

	idx := strings.Index(msg, "<pre>")
	assert.Greater(t, idx, 0)
	assert.Contains(t, msg[idx:], "Status: exited\nExit code: 1")
}
