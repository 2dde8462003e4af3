// Package messaging defines standard subject names for the ELT message bus.
package messaging

// Subject constants for the ELT message bus.
// Follow the pattern: {domain}.{resource}.{event}
const (
	// SubjectRunsCompleted carries the summary of every finished transform run.
	SubjectRunsCompleted = "elt.runs.completed"

	// SubjectAlertsErrorRate is published when a run's normalization error
	// rate exceeds the configured threshold.
	SubjectAlertsErrorRate = "elt.alerts.error_rate"

	// SubjectAll matches every ELT subject.
	SubjectAll = "elt.>"
)

