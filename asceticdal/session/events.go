package session

import (
	"time"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/signals"
)

type QueryStartedEvent struct {
	Query   string
	Params  []any
	Sender  any
	Session Session
}

type QueryEndedEvent struct {
	Query        string
	Params       []any
	Sender       any
	Session      Session
	ResponseTime time.Duration
	Err          error
}

type TransactionOutcome string

const (
	Committed  TransactionOutcome = "committed"
	RolledBack TransactionOutcome = "rolled_back"
	Failed     TransactionOutcome = "failed"
)

type TransactionEndedEvent struct {
	ID      string
	Outcome TransactionOutcome
	Err     error
}

// Signals is the ready-made Observable implementation sessions embed.
type Signals struct {
	queryStarted     signals.Signal[QueryStartedEvent]
	queryEnded       signals.Signal[QueryEndedEvent]
	transactionEnded signals.Signal[TransactionEndedEvent]
}

func NewSignals() *Signals {
	return &Signals{
		queryStarted:     signals.NewSignal[QueryStartedEvent](),
		queryEnded:       signals.NewSignal[QueryEndedEvent](),
		transactionEnded: signals.NewSignal[TransactionEndedEvent](),
	}
}

func (s *Signals) OnQueryStarted() signals.Signal[QueryStartedEvent] {
	return s.queryStarted
}

func (s *Signals) OnQueryEnded() signals.Signal[QueryEndedEvent] {
	return s.queryEnded
}

func (s *Signals) OnTransactionEnded() signals.Signal[TransactionEndedEvent] {
	return s.transactionEnded
}

// Observe notifies the start of a query and returns the function that
// notifies its end.
func (s *Signals) Observe(sess Session, sender any, query string, params []any) func(error) {
	s.queryStarted.Notify(QueryStartedEvent{Query: query, Params: params, Sender: sender, Session: sess})
	start := time.Now()
	return func(err error) {
		s.queryEnded.Notify(QueryEndedEvent{
			Query:        query,
			Params:       params,
			Sender:       sender,
			Session:      sess,
			ResponseTime: time.Since(start),
			Err:          err,
		})
	}
}
