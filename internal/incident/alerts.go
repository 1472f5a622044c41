package incident

import (
	"fmt"
	"strings"
	"time"

	"incident-service/pkg/config"
	"incident-service/pkg/models"
)

func dedupeKey(rec *models.IncidentRecord) string {
	return rec.ContainerID + "@" + rec.DetectedAt.UTC().Format(time.RFC3339Nano)
}

// baseSeverity escalates to critical for configured critical services.
func baseSeverity(cfg *config.Config, name string, fallback models.Severity) models.Severity {
	if cfg.IsCriticalService(name) {
		return models.SeverityCritical
	}
	return fallback
}

func buildDetectedAlert(cfg *config.Config, snap models.ContainerSnapshot, rec *models.IncidentRecord) models.AlertPayload {
	var b strings.Builder

	fmt.Fprintf(&b, "Container Alert: %s\n\n", snap.Name)
	fmt.Fprintf(&b, "Status: %s\n", snap.Status)
	if snap.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *snap.ExitCode)
	}
	fmt.Fprintf(&b, "Image: %s\n", snap.Image)
	b.WriteString("Mode: check only, no healing attempted (awaiting manual intervention)\n\n")

	b.WriteString(diagnosisSection("Diagnosis", rec.PreDiagnosis))

	fmt.Fprintf(&b, "\nDetected at: %s\n", rec.DetectedAt.UTC().Format(time.RFC3339))

	return models.AlertPayload{
		Severity:   baseSeverity(cfg, snap.Name, models.SeverityWarning),
		Transition: models.TransitionDetected,
		Container:  snap.Name,
		Subject:    fmt.Sprintf("Container %s is %s", snap.Name, snap.Status),
		Body:       b.String(),
		DedupeKey:  dedupeKey(rec),
		Timestamp:  time.Now().UTC(),
	}
}

func buildHealedAlert(cfg *config.Config, snap models.ContainerSnapshot, rec *models.IncidentRecord) models.AlertPayload {
	var b strings.Builder

	fmt.Fprintf(&b, "Container Alert: %s\n\n", rec.ContainerName)
	b.WriteString("Status: container was DOWN and has been auto-restarted\n")
	fmt.Fprintf(&b, "Restart attempts: %d\n", len(rec.Attempts))
	fmt.Fprintf(&b, "Old status: %s\n", rec.Status)
	fmt.Fprintf(&b, "New status: %s\n\n", snap.Status)

	b.WriteString(diagnosisSection("Pre-heal diagnosis", rec.PreDiagnosis))
	b.WriteString(diagnosisSection("Post-heal verification", rec.PostDiagnosis))

	b.WriteString("\nNo further action required. System is operational.\n")

	// Successful auto-heals are info severity: audited, not emailed.
	return models.AlertPayload{
		Severity:   models.SeverityInfo,
		Transition: models.TransitionHealed,
		Container:  rec.ContainerName,
		Subject:    fmt.Sprintf("Container %s auto-healed after %d attempt(s)", rec.ContainerName, len(rec.Attempts)),
		Body:       b.String(),
		DedupeKey:  dedupeKey(rec),
		Timestamp:  time.Now().UTC(),
	}
}

func buildHealFailedAlert(cfg *config.Config, rec *models.IncidentRecord, reason string) models.AlertPayload {
	var b strings.Builder

	fmt.Fprintf(&b, "CRITICAL INCIDENT\n\nContainer: %s\n", rec.ContainerName)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "Auto-heal result: FAILED\n")
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Restart attempts: %d\n\n", len(rec.Attempts))

	b.WriteString(diagnosisSection("Pre-heal diagnosis", rec.PreDiagnosis))
	if len(rec.Attempts) > 0 {
		b.WriteString(diagnosisSection("Post-heal verification", rec.PostDiagnosis))
	}

	fmt.Fprintf(&b, "\nACTION REQUIRED: manual intervention needed.\n\n")
	fmt.Fprintf(&b, "Suggested actions:\n")
	fmt.Fprintf(&b, "1. Check container logs: docker logs %s\n", rec.ContainerName)
	fmt.Fprintf(&b, "2. Inspect container: docker inspect %s\n", rec.ContainerName)
	b.WriteString("3. Check host resources: disk space, memory\n")

	return models.AlertPayload{
		Severity:   models.SeverityCritical,
		Transition: models.TransitionHealFailed,
		Container:  rec.ContainerName,
		Subject:    fmt.Sprintf("URGENT: container %s DOWN, auto-heal failed", rec.ContainerName),
		Body:       b.String(),
		DedupeKey:  dedupeKey(rec),
		Timestamp:  time.Now().UTC(),
	}
}

// diagnosisSection renders a diagnosis block. Absence is stated explicitly
// rather than silently omitted.
func diagnosisSection(title string, d *models.DiagnosisResult) string {
	if d == nil {
		return fmt.Sprintf("%s: unavailable (diagnosis backend unreachable or timed out)\n", title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", title)
	fmt.Fprintf(&b, "- Root cause: %s\n", d.Cause)
	fmt.Fprintf(&b, "- Summary: %s\n", d.Summary)
	fmt.Fprintf(&b, "- Restart safe: %t\n", d.RestartSafe)
	fmt.Fprintf(&b, "- Confidence: %.0f%%\n", d.Confidence*100)
	return b.String()
}
