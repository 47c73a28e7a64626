package modem

import (
	"log/slog"
	"time"

	"i4.energy/across/modemd/atmodem"
)

// reportQueue turns driver reports into events on a single channel, so they
// keep the order the modem sent them in. Reports are timestamped on arrival
// and dropped while the queue is full.
type reportQueue struct {
	ch     chan Event
	logger *slog.Logger
}

func newReportQueue(size int, logger *slog.Logger) *reportQueue {
	return &reportQueue{
		ch:     make(chan Event, size),
		logger: logger.With("component", "events"),
	}
}

func (q *reportQueue) push(ev Event) {
	ev.Time = time.Now()
	select {
	case q.ch <- ev:
	default:
		q.logger.Warn("report queue full, dropping event", "kind", ev.Kind)
	}
}

func (q *reportQueue) Message(msg atmodem.Message) {
	q.push(Event{Kind: EventMessage, Message: &msg})
}

func (q *reportQueue) StatusReport(rep atmodem.StatusReport) {
	q.push(Event{Kind: EventStatusReport, StatusReport: &rep})
}

func (q *reportQueue) Registration(reg atmodem.Registration) {
	q.push(Event{Kind: EventRegistration, Registration: &reg})
}

func (q *reportQueue) SignalStrength(percent int) {
	q.push(Event{Kind: EventSignal, Signal: percent})
}

func (q *reportQueue) USSD(resp atmodem.USSDResponse) {
	q.push(Event{Kind: EventUSSD, USSD: &resp})
}
