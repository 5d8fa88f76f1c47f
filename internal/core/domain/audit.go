package domain

import "time"

// AuditCategory groups audit entries.
type AuditCategory string

const (
	AuditValidation    AuditCategory = "VALIDATION"
	AuditCalculation   AuditCategory = "CALCULATION"
	AuditError         AuditCategory = "ERROR"
	AuditSecurity      AuditCategory = "SECURITY"
	AuditSystem        AuditCategory = "SYSTEM"
	AuditDataAccess    AuditCategory = "DATA_ACCESS"
	AuditConfiguration AuditCategory = "CONFIGURATION"
	AuditUserAction    AuditCategory = "USER_ACTION"
	AuditRecovery      AuditCategory = "RECOVERY"
	AuditLog           AuditCategory = "AUDIT"
)

// AuditLevel controls flush urgency.
type AuditLevel string

const (
	LevelDebug    AuditLevel = "debug"
	LevelInfo     AuditLevel = "info"
	LevelWarning  AuditLevel = "warning"
	LevelError    AuditLevel = "error"
	LevelCritical AuditLevel = "critical"
)

// Urgent reports whether entries at this level are flushed immediately.
func (l AuditLevel) Urgent() bool {
	return l == LevelError || l == LevelCritical
}

// Audit results.
const (
	ResultSuccess     = "success"
	ResultFailed      = "failed"
	ResultRecovered   = "recovered"
	ResultRateLimited = "rate_limited"
	ResultIgnored     = "ignored"
	ResultQueued      = "queued"
)

// AuditEntry is immutable once signed.
type AuditEntry struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Action          string         `json:"action"`
	ActorID         string         `json:"actorId"`
	SessionID       string         `json:"sessionId"`
	Category        AuditCategory  `json:"category"`
	Details         map[string]any `json:"details"`
	Result          string         `json:"result"`
	DurationMs      *float64       `json:"durationMs,omitempty"`
	PreviousEntryID string         `json:"previousEntryId"`
	Signature       string         `json:"signature"`
}
