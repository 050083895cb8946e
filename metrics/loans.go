package metrics

import (
	"Gin_postgres_redis_lending/models"

	"github.com/prometheus/client_golang/prometheus"
)

// LoanMetrics counts lifecycle transitions and optimistic-lock conflicts.
type LoanMetrics struct {
	transitions *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
}

func NewLoanMetrics(reg prometheus.Registerer) *LoanMetrics {
	if reg == nil {
		return &LoanMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loan_transitions_total",
		Help:      "Loan status changes, by source and target status.",
	}, []string{"from", "to"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loan_commit_conflicts_total",
		Help:      "Commits rejected because a record changed since it was read.",
	}, []string{"operation"})
	reg.MustRegister(transitions, conflicts)
	return &LoanMetrics{transitions: transitions, conflicts: conflicts}
}

// ObserveTransition records one status change; an empty from is a new loan.
func (m *LoanMetrics) ObserveTransition(from, to models.LoanStatus) {
	if m == nil || m.transitions == nil {
		return
	}
	f := string(from)
	if f == "" {
		f = "none"
	}
	m.transitions.WithLabelValues(f, normalizeLabel(string(to))).Inc()
}

func (m *LoanMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}
