package domain

import "time"

// CircuitStatus is the state of a circuit breaker.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "CLOSED"
	CircuitOpen     CircuitStatus = "OPEN"
	CircuitHalfOpen CircuitStatus = "HALF_OPEN"
)

// CircuitState is a snapshot of one named breaker.
type CircuitState struct {
	Name            string        `json:"name"`
	State           CircuitStatus `json:"state"`
	FailureCount    int           `json:"failureCount"`
	SuccessCount    int           `json:"successCount"`
	LastFailureTime time.Time     `json:"lastFailureTime,omitzero"`
	NextAttemptTime time.Time     `json:"nextAttemptTime,omitzero"`
}
