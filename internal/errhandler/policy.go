package errhandler

import (
	"errors"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Policy is the default treatment of one category.
type Policy struct {
	Severity domain.Severity
	// Strategy is empty when the category is never recovered automatically.
	Strategy    domain.Strategy
	MaxAttempts int
	Audit       domain.AuditCategory
	Message     string
}

// GenericMessage is shown for failures whose details must not reach the user.
const GenericMessage = "An unexpected error occurred"

// Policies is the per-category default table.
var Policies = map[domain.Category]Policy{
	domain.CategoryValidation: {
		Severity: domain.SeverityLow,
		Strategy: domain.StrategyFallback,
		Audit:    domain.AuditValidation,
	},
	domain.CategoryNetwork: {
		Severity:    domain.SeverityMedium,
		Strategy:    domain.StrategyRetry,
		MaxAttempts: 3,
		Audit:       domain.AuditError,
		Message:     "Unable to reach the computation service. Please check your connection and try again.",
	},
	domain.CategoryAuthentication: {
		Severity: domain.SeverityHigh,
		Audit:    domain.AuditSecurity,
		Message:  "Your session has expired. Please sign in again.",
	},
	domain.CategoryAuthorization: {
		Severity: domain.SeverityHigh,
		Audit:    domain.AuditSecurity,
		Message:  "You do not have permission to perform this action.",
	},
	domain.CategoryCalculation: {
		Severity:    domain.SeverityMedium,
		Strategy:    domain.StrategyRetry,
		MaxAttempts: 3,
		Audit:       domain.AuditCalculation,
		Message:     "The calculation could not be completed.",
	},
	domain.CategorySystem: {
		Severity: domain.SeverityCritical,
		Audit:    domain.AuditSystem,
		Message:  GenericMessage,
	},
	domain.CategoryDataIntegrity: {
		Severity: domain.SeverityCritical,
		Strategy: domain.StrategyEscalate,
		Audit:    domain.AuditSecurity,
		Message:  "A data integrity problem was detected and has been reported.",
	},
	domain.CategoryConfiguration: {
		Severity: domain.SeverityHigh,
		Audit:    domain.AuditConfiguration,
		Message:  "The application is not configured correctly. Please contact an administrator.",
	},
	domain.CategoryUnknown: {
		Severity:    domain.SeverityMedium,
		Strategy:    domain.StrategyRetry,
		MaxAttempts: 1,
		Audit:       domain.AuditError,
		Message:     GenericMessage,
	},
}

// PolicyFor returns the policy for c, falling back to Unknown.
func PolicyFor(c domain.Category) Policy {
	if p, ok := Policies[c]; ok {
		return p
	}
	return Policies[domain.CategoryUnknown]
}

// NotificationLevel derives the user-visible level. Validation is always a
// warning; otherwise the level follows severity, lowered to info once the
// failure was recovered.
func NotificationLevel(c domain.Category, s domain.Severity, handled bool) domain.NotificationLevel {
	if c == domain.CategoryValidation {
		if handled {
			return domain.NotifyInfo
		}
		return domain.NotifyWarning
	}
	if handled && s != domain.SeverityCritical {
		return domain.NotifyInfo
	}
	switch s {
	case domain.SeverityCritical:
		return domain.NotifyCritical
	case domain.SeverityHigh:
		return domain.NotifyError
	case domain.SeverityLow:
		return domain.NotifyInfo
	}
	return domain.NotifyWarning
}

// UserMessage is the text shown to the user. Validation failures are
// user-correctable and shown verbatim; other categories use fixed text.
func UserMessage(err error, c domain.Category, handled bool) string {
	if c == domain.CategoryValidation {
		var vf *domain.ValidationFailure
		if errors.As(err, &vf) {
			return "Invalid " + vf.Field + ": " + vf.Constraint
		}
		return err.Error()
	}
	if handled {
		return "A temporary problem occurred and was resolved automatically."
	}
	if msg := PolicyFor(c).Message; msg != "" {
		return msg
	}
	return GenericMessage
}

func auditLevel(s domain.Severity) domain.AuditLevel {
	switch s {
	case domain.SeverityCritical:
		return domain.LevelCritical
	case domain.SeverityHigh:
		return domain.LevelError
	case domain.SeverityLow:
		return domain.LevelInfo
	}
	return domain.LevelWarning
}
