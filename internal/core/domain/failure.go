package domain

import (
	"fmt"
	"time"
)

// Kind tags every failure that flows through the core.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindCalculation    Kind = "calculation"
	KindDataIntegrity  Kind = "data_integrity"
	KindSecurity       Kind = "security"
	KindSystem         Kind = "system"
	KindConfiguration  Kind = "configuration"
	KindRecoverable    Kind = "recoverable"
	KindUnknown        Kind = "unknown"
)

// kindParents is the whole kind hierarchy. A kind has at most one parent.
var kindParents = map[Kind]Kind{
	KindTimeout:     KindNetwork,
	KindSecurity:    KindDataIntegrity,
	KindRecoverable: KindUnknown,
}

// Parent returns the parent kind, if any.
func (k Kind) Parent() (Kind, bool) {
	p, ok := kindParents[k]
	return p, ok
}

// Lineage returns the kind followed by its ancestors.
func (k Kind) Lineage() []Kind {
	out := []Kind{k}
	for p, ok := k.Parent(); ok; p, ok = p.Parent() {
		out = append(out, p)
	}
	return out
}

// Kinded is implemented by every typed failure.
type Kinded interface {
	error
	Kind() Kind
}

// Severity of a failure.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 1
	}
}

// Category is the fixed taxonomy used by the central error handler.
type Category string

const (
	CategoryValidation     Category = "Validation"
	CategoryNetwork        Category = "Network"
	CategoryAuthentication Category = "Authentication"
	CategoryAuthorization  Category = "Authorization"
	CategoryCalculation    Category = "Calculation"
	CategorySystem         Category = "System"
	CategoryDataIntegrity  Category = "DataIntegrity"
	CategoryConfiguration  Category = "Configuration"
	CategoryUnknown        Category = "Unknown"
)

// CategoryOrder is the priority order used when classifying a failure.
var CategoryOrder = []Category{
	CategoryValidation,
	CategoryNetwork,
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryCalculation,
	CategorySystem,
	CategoryDataIntegrity,
	CategoryConfiguration,
	CategoryUnknown,
}

// CategoryOf maps a failure kind onto the taxonomy.
func CategoryOf(k Kind) Category {
	switch k {
	case KindValidation:
		return CategoryValidation
	case KindNetwork, KindTimeout:
		return CategoryNetwork
	case KindAuthentication:
		return CategoryAuthentication
	case KindAuthorization:
		return CategoryAuthorization
	case KindCalculation:
		return CategoryCalculation
	case KindSystem:
		return CategorySystem
	case KindDataIntegrity, KindSecurity:
		return CategoryDataIntegrity
	case KindConfiguration:
		return CategoryConfiguration
	default:
		return CategoryUnknown
	}
}

// Error is the general typed failure.
type Error struct {
	kind    Kind
	Message string
	Cause   error
}

// NewError creates a failure of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, Message: msg}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, Message: msg, Cause: cause}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// ValidationFailure is raised by the parameter validator. It is never
// mutated after creation.
type ValidationFailure struct {
	Field      string         `json:"field"`
	Value      any            `json:"value"`
	Constraint string         `json:"constraint"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (e *ValidationFailure) Kind() Kind { return KindValidation }

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Constraint)
}
