package models

import "time"

// ContainerStatus is the runtime status of a managed container.
type ContainerStatus string

const (
	StatusRunning    ContainerStatus = "running"
	StatusExited     ContainerStatus = "exited"
	StatusRestarting ContainerStatus = "restarting"
	StatusUnknown    ContainerStatus = "unknown"
)

// ContainerSnapshot is a point-in-time read of a container, produced fresh
// each poll cycle and never mutated.
type ContainerSnapshot struct {
	ID           string
	Name         string
	Labels       map[string]string
	Status       ContainerStatus
	Healthy      bool
	ExitCode     *int
	Image        string
	TransitionAt time.Time
}

// RootCause is the diagnosis category for a container failure.
type RootCause string

const (
	CauseConfig     RootCause = "config"
	CauseResource   RootCause = "resource"
	CauseDependency RootCause = "dependency"
	CauseAppCrash   RootCause = "app-crash"
	CauseUnknown    RootCause = "unknown"
)

// DiagnosisResult is the structured output of the diagnosis service. A nil
// *DiagnosisResult means the service was unavailable, which is a valid,
// handled value.
type DiagnosisResult struct {
	Cause       RootCause `json:"root_cause"`
	Summary     string    `json:"summary"`
	RestartSafe bool      `json:"restart_safe"`
	Confidence  float64   `json:"confidence"`
}

// AttemptOutcome classifies a single restart attempt.
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
	AttemptTimedOut  AttemptOutcome = "timed_out"
)

// HealAttempt records one restart attempt within a heal episode.
type HealAttempt struct {
	Attempt   int
	StartedAt time.Time
	Outcome   AttemptOutcome
	Error     string
}

// HealResult is the outcome of a full heal episode for one container.
type HealResult struct {
	Attempts  []HealAttempt
	Succeeded bool
}

// Resolution is the lifecycle state of an incident record.
type Resolution string

const (
	IncidentOpen     Resolution = "open"
	IncidentResolved Resolution = "resolved"
	IncidentFailed   Resolution = "failed"
)

// IncidentRecord tracks one continuous unhealthy episode for a container,
// from detection to resolution or failure. At most one open record exists
// per container at any time.
type IncidentRecord struct {
	ContainerID   string
	ContainerName string
	DetectedAt    time.Time
	Status        ContainerStatus
	ExitCode      *int
	PreDiagnosis  *DiagnosisResult
	Attempts      []HealAttempt
	PostDiagnosis *DiagnosisResult
	Resolution    Resolution

	// Per-transition alert flags: exactly one alert per transition,
	// never one per poll tick.
	AlertedDetected bool
	AlertedClosed   bool

	// Cool-down bookkeeping after exhausted retries.
	LastAlertAt time.Time
}

// Severity is the alert level. Critical is reserved for containers in the
// configured critical-services set.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Transition names the incident state change an alert reports.
type Transition string

const (
	TransitionDetected   Transition = "detected"
	TransitionHealed     Transition = "healed"
	TransitionHealFailed Transition = "heal-failed"
)

// AlertPayload is a structured alert handed to the dispatcher.
type AlertPayload struct {
	Severity   Severity
	Transition Transition
	Container  string
	Subject    string
	Body       string
	DedupeKey  string
	Timestamp  time.Time
}
