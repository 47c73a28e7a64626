package atmodem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/chat"
)

// OperatorStatus is the <stat> of a +COPS=? entry.
type OperatorStatus int

const (
	OperatorUnknown OperatorStatus = iota
	OperatorAvailable
	OperatorCurrent
	OperatorForbidden
)

// Operator is a network operator.
type Operator struct {
	Status    OperatorStatus `json:"status"`
	Name      string         `json:"name"`
	ShortName string         `json:"short_name,omitempty"`
	MCC       string         `json:"mcc"`
	MNC       string         `json:"mnc"`
	Tech      int            `json:"tech"`
}

// NetReg is the 27.007 network registration driver.
type NetReg struct {
	chat    *chat.Chat
	profile Profile
	logger  *slog.Logger
	charset Charset

	sink Sink
}

// NewNetReg returns a network registration driver on its own handle of c.
// Registration and signal strength changes go to sink.
func NewNetReg(c *chat.Chat, profile Profile, sink Sink, logger *slog.Logger) *NetReg {
	return &NetReg{
		chat:    c.Clone(),
		profile: profile,
		logger:  logger.With("component", "netreg"),
		sink:    orDiscard(sink),
	}
}

// SetCharset sets the TE character set operator names are reported in. It
// must be called before the first operator query.
func (n *NetReg) SetCharset(cs Charset) {
	n.charset = cs
}

// decodeName converts an operator name to UTF-8, keeping it as reported
// when it does not decode.
func (n *NetReg) decodeName(s string) string {
	if n.charset == 0 || s == "" {
		return s
	}
	out, err := DecodeCharset(n.charset, s)
	if err != nil {
		n.logger.Debug("undecodable operator name", "name", s, "charset", n.charset, "error", err)
		return s
	}
	return out
}

// Probe enables registration reports with location where supported and
// starts listening for them.
func (n *NetReg) Probe(ctx context.Context) error {
	r, err := n.chat.Exec(ctx, "AT+CREG=?", []string{"+CREG:"})
	if err != nil {
		return fmt.Errorf("query registration reporting: %w", err)
	}

	var modes uint
	iter := at.NewResultIter(r)
	if iter.Next("+CREG:") && iter.OpenList() {
		for {
			lo, hi, ok := iter.NextRange()
			if !ok {
				break
			}
			for v := lo; v <= hi && v < 32; v++ {
				modes |= 1 << v
			}
		}
	}

	mode := 0
	switch {
	case modes&(1<<2) != 0:
		mode = 2
	case modes&(1<<1) != 0:
		mode = 1
	default:
		return fmt.Errorf("registration reporting: %w", ErrNotSupported)
	}

	if _, err := n.chat.Exec(ctx, fmt.Sprintf("AT+CREG=%d", mode), chat.NoPrefix); err != nil {
		return fmt.Errorf("enable registration reporting: %w", err)
	}

	n.chat.Register(at.UrcRegistration, false, n.onRegistration)
	n.chat.Register(at.UrcSignalStrength, false, n.onStrength)

	if n.profile.ExtendedCSQ {
		if _, err := n.chat.Exec(ctx, "AT%CSQ=1", chat.NoPrefix); err != nil {
			n.logger.Warn("enable signal strength reporting", "error", err)
		} else {
			n.chat.Register("%CSQ:", false, n.onStrength)
		}
	}

	n.logger.Info("network registration ready", "mode", mode)
	return nil
}

func (n *NetReg) onRegistration(r *at.Result) {
	reg, ok := ParseRegNotify(r, at.UrcRegistration, n.profile.UnquotedLACCI)
	if !ok {
		n.logger.Warn("unable to parse registration report", "line", r.Lines)
		return
	}

	n.sink.Registration(reg)
}

func (n *NetReg) onStrength(r *at.Result) {
	prefix := at.UrcSignalStrength
	if len(r.Lines) > 0 && strings.HasPrefix(r.Lines[0], "%CSQ:") {
		prefix = "%CSQ:"
	}

	iter := at.NewResultIter(r)
	if !iter.Next(prefix) {
		return
	}
	rssi, ok := iter.NextNumber()
	if !ok {
		n.logger.Warn("unable to parse signal strength", "line", r.Lines)
		return
	}

	n.sink.SignalStrength(ScaleSignal(rssi))
}

// Status queries the current registration.
func (n *NetReg) Status(ctx context.Context) (Registration, error) {
	r, err := n.chat.Exec(ctx, "AT+CREG?", []string{"+CREG:"})
	if err != nil {
		return Registration{}, err
	}

	_, reg, ok := ParseReg(r, "+CREG:", n.profile.UnquotedLACCI)
	if !ok {
		return Registration{}, fmt.Errorf("registration status: %w", ErrUnexpectedResponse)
	}
	return reg, nil
}

// CurrentOperator returns the operator the modem is registered with.
func (n *NetReg) CurrentOperator(ctx context.Context) (Operator, error) {
	var op Operator

	if _, err := n.chat.Exec(ctx, "AT+COPS=3,2", chat.NoPrefix); err != nil {
		return op, fmt.Errorf("select numeric operator format: %w", err)
	}
	r, err := n.chat.Exec(ctx, "AT+COPS?", []string{"+COPS:"})
	if err != nil {
		return op, err
	}

	iter := at.NewResultIter(r)
	if !iter.Next("+COPS:") || !iter.SkipNext() {
		return op, fmt.Errorf("operator: %w", ErrUnexpectedResponse)
	}
	format, ok := iter.NextNumber()
	if !ok || format != 2 {
		return op, fmt.Errorf("operator: %w", ErrUnexpectedResponse)
	}
	numeric, ok := iter.NextString()
	if !ok || len(numeric) < 5 {
		return op, fmt.Errorf("operator code %q: %w", numeric, ErrUnexpectedResponse)
	}
	op.MCC, op.MNC = numeric[:3], numeric[3:]
	op.Status = OperatorCurrent

	if _, err := n.chat.Exec(ctx, "AT+COPS=3,0", chat.NoPrefix); err != nil {
		return op, fmt.Errorf("select long operator format: %w", err)
	}
	r, err = n.chat.Exec(ctx, "AT+COPS?", []string{"+COPS:"})
	if err != nil {
		return op, err
	}

	iter = at.NewResultIter(r)
	if !iter.Next("+COPS:") || !iter.SkipNext() {
		return op, fmt.Errorf("operator name: %w", ErrUnexpectedResponse)
	}
	format, ok = iter.NextNumber()
	if !ok || format != 0 {
		return op, fmt.Errorf("operator name: %w", ErrUnexpectedResponse)
	}
	if op.Name, ok = iter.NextString(); !ok {
		return op, fmt.Errorf("operator name: %w", ErrUnexpectedResponse)
	}
	op.Name = n.decodeName(op.Name)
	if op.Tech, ok = iter.NextNumber(); !ok {
		op.Tech = 0
	}

	return op, nil
}

// ListOperators scans for operators. A scan can take minutes.
func (n *NetReg) ListOperators(ctx context.Context) ([]Operator, error) {
	r, err := n.chat.Exec(ctx, "AT+COPS=?", []string{"+COPS:"})
	if err != nil {
		return nil, err
	}
	ops := ParseOperatorList(r)
	for i := range ops {
		ops[i].Name = n.decodeName(ops[i].Name)
		ops[i].ShortName = n.decodeName(ops[i].ShortName)
	}
	return ops, nil
}

// ParseOperatorList parses the answer to AT+COPS=?. The trailing lists of
// supported modes and formats are ignored.
func ParseOperatorList(r *at.Result) []Operator {
	iter := at.NewResultIter(r)
	if !iter.Next("+COPS:") {
		return nil
	}

	var ops []Operator
	for iter.OpenList() {
		var op Operator

		status, ok := iter.NextNumber()
		if !ok {
			break
		}
		op.Status = OperatorStatus(status)

		op.Name, _ = iter.NextString()
		op.ShortName, _ = iter.NextString()
		if op.Name == "" {
			op.Name = op.ShortName
		}

		numeric, ok := iter.NextString()
		if !ok || len(numeric) < 5 {
			break
		}
		op.MCC, op.MNC = numeric[:3], numeric[3:]

		if op.Tech, ok = iter.NextNumber(); !ok {
			op.Tech = 0
		}

		iter.CloseList()
		ops = append(ops, op)
	}
	return ops
}

// RegisterAuto hands operator selection to the modem.
func (n *NetReg) RegisterAuto(ctx context.Context) error {
	_, err := n.chat.Exec(ctx, "AT+COPS=0", chat.NoPrefix)
	return err
}

// RegisterManual registers with the operator mccmnc.
func (n *NetReg) RegisterManual(ctx context.Context, mccmnc string) error {
	_, err := n.chat.Exec(ctx, fmt.Sprintf(`AT+COPS=1,2,"%s"`, mccmnc), chat.NoPrefix)
	return err
}

// Deregister detaches from the network.
func (n *NetReg) Deregister(ctx context.Context) error {
	_, err := n.chat.Exec(ctx, "AT+COPS=2", chat.NoPrefix)
	return err
}

// SignalStrength returns the signal strength in percent, or -1 when
// unknown.
func (n *NetReg) SignalStrength(ctx context.Context) (int, error) {
	r, err := n.chat.Exec(ctx, "AT+CSQ", []string{"+CSQ:"})
	if err != nil {
		return 0, err
	}

	iter := at.NewResultIter(r)
	if !iter.Next("+CSQ:") {
		return 0, fmt.Errorf("signal strength: %w", ErrUnexpectedResponse)
	}
	rssi, ok := iter.NextNumber()
	if !ok {
		return 0, fmt.Errorf("signal strength: %w", ErrUnexpectedResponse)
	}
	return ScaleSignal(rssi), nil
}

// ScaleSignal converts a +CSQ <rssi> of 0 to 31 into percent. 99 means not
// known and maps to -1.
func ScaleSignal(rssi int) int {
	if rssi == 99 {
		return -1
	}
	return rssi * 100 / 31
}

// Close stops listening and withdraws queued commands.
func (n *NetReg) Close() {
	n.chat.UnregisterAll()
	n.chat.CancelAll()
}
