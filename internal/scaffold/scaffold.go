// Package scaffold holds types named in the original implementation's
// recovery and performance layers — circuit_breaker.py, degraded_mode.py,
// connection_pool.py, request_batcher.py — that spec.md's Non-goals
// describe as "present in name only... not wired into the runtime
// described here." Nothing in this package is called from anywhere else
// in this module; it exists solely so the names exist.
package scaffold

import "time"

// CircuitBreaker would trip after repeated provider failures and hold
// requests open until a cooldown elapses. Unwired.
type CircuitBreaker struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DegradedMode would describe a reduced-capability operating state entered
// when dependent services are unhealthy. Unwired.
type DegradedMode struct {
	Reason    string
	EnteredAt time.Time
}

// ConnectionPool would bound and reuse outbound connections to LLM
// providers. Unwired.
type ConnectionPool struct {
	MaxSize int
	Idle    time.Duration
}

// RequestBatcher would coalesce concurrent completion requests against the
// same provider/model into a single upstream call. Unwired.
type RequestBatcher struct {
	MaxBatchSize int
	MaxWait      time.Duration
}
