package atmodem

// Sink receives what the drivers report on their own. Unsolicited results
// are reported from the chat event loop in the order the modem sent them; a
// message read from storage is reported from the goroutine that fetched it.
// Implementations must not block.
type Sink interface {
	Message(Message)
	StatusReport(StatusReport)
	Registration(Registration)
	SignalStrength(percent int)
	USSD(USSDResponse)
}

type discardSink struct{}

func (discardSink) Message(Message)           {}
func (discardSink) StatusReport(StatusReport) {}
func (discardSink) Registration(Registration) {}
func (discardSink) SignalStrength(int)        {}
func (discardSink) USSD(USSDResponse)         {}

func orDiscard(s Sink) Sink {
	if s == nil {
		return discardSink{}
	}
	return s
}
