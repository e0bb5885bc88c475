// Package metrics holds the Prometheus collectors for moderation and voting.
// They register with the default registry, which the HTTP server exposes at
// /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/store"
)

var (
	// operationsTotal counts core operations by name and outcome.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthtally_operations_total",
		Help: "Moderation and voting operations by operation and result",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truthtally_operation_duration_seconds",
		Help:    "Operation duration in seconds, retries included",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	conflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthtally_conflict_retries_total",
		Help: "Transactions retried after a write conflict",
	}, []string{"operation"})

	votesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthtally_votes_total",
		Help: "Votes committed by value",
	}, []string{"value"})

	statementsFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthtally_statements_flagged_total",
		Help: "Statements that crossed the downvote threshold",
	})

	auditEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthtally_audit_entries_total",
		Help: "Audit entries committed by entity type",
	}, []string{"entity_type"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthtally_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "code"})
)

// ObserveOperation records the result and latency of one operation.
func ObserveOperation(operation string, start time.Time, err error) {
	operationsTotal.WithLabelValues(operation, Result(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Result buckets an error into a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, policy.ErrInvalidState) && !errors.Is(err, policy.ErrForbidden):
		return "invalid_state"
	case errors.Is(err, policy.ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func ConflictRetry(operation string) {
	conflictRetries.WithLabelValues(operation).Inc()
}

func VoteCast(value int) {
	label := "up"
	if value < 0 {
		label = "down"
	}
	votesCast.WithLabelValues(label).Inc()
}

func StatementFlagged() {
	statementsFlagged.Inc()
}

func AuditEntry(entityType string) {
	auditEntries.WithLabelValues(entityType).Inc()
}

func HTTPRequest(method, code string) {
	httpRequests.WithLabelValues(method, code).Inc()
}
