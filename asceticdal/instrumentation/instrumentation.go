// Package instrumentation turns session events into log lines and
// Prometheus metrics.
package instrumentation

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/signals"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	queries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered, which tests use to avoid the global registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dal_queries_total",
			Help: "Statements executed against the storage backend.",
		}, []string{"backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dal_query_duration_seconds",
			Help:    "Response time of storage backend statements.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dal_transactions_total",
			Help: "Finished root transactions by outcome.",
		}, []string{"backend", "outcome"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.queries, err = register(reg, m.queries); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.transactions, err = register(reg, m.transactions); err != nil {
		return nil, err
	}
	return m, nil
}

// register reuses the collector of an earlier registration with the same
// descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) QueryEnded(backend string, e session.QueryEndedEvent) {
	outcome := OutcomeOK
	if e.Err != nil {
		outcome = OutcomeError
	}
	m.queries.WithLabelValues(backend, outcome).Inc()
	m.duration.WithLabelValues(backend).Observe(e.ResponseTime.Seconds())
}

func (m *Metrics) TransactionEnded(backend string, e session.TransactionEndedEvent) {
	m.transactions.WithLabelValues(backend, string(e.Outcome)).Inc()
}

type QueryLogger struct {
	logger zerolog.Logger
}

func NewQueryLogger(logger zerolog.Logger) *QueryLogger {
	return &QueryLogger{logger: logger}
}

func (l *QueryLogger) QueryEnded(e session.QueryEndedEvent) {
	event := l.logger.Debug()
	if e.Err != nil {
		event = l.logger.Warn().Err(e.Err)
	}
	event.
		Str("query", e.Query).
		Int("params", len(e.Params)).
		Dur("response_time", e.ResponseTime).
		Msg("query executed")
}

func (l *QueryLogger) TransactionEnded(e session.TransactionEndedEvent) {
	if e.Outcome == session.Committed {
		l.logger.Debug().Str("tx", e.ID).Msg("transaction committed")
		return
	}
	l.logger.Warn().Str("tx", e.ID).Str("outcome", string(e.Outcome)).Err(e.Err).Msg("transaction not committed")
}

// Attach subscribes the logger and, when not nil, the metrics to source.
// Disposing the result detaches them.
func Attach(source session.Observable, backend string, logger *QueryLogger, metrics *Metrics) signals.Disposable {
	var ds signals.Disposables
	if logger != nil {
		ds = append(ds,
			source.OnQueryEnded().Attach(logger.QueryEnded, logger),
			source.OnTransactionEnded().Attach(logger.TransactionEnded, logger),
		)
	}
	if metrics != nil {
		ds = append(ds,
			source.OnQueryEnded().Attach(func(e session.QueryEndedEvent) { metrics.QueryEnded(backend, e) }, metrics),
			source.OnTransactionEnded().Attach(func(e session.TransactionEndedEvent) { metrics.TransactionEnded(backend, e) }, metrics),
		)
	}
	return ds
}
