package atmodem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/pdumode"
	"github.com/warthog618/sms/encoding/tpdu"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/chat"
	"i4.energy/across/modemd/internal/retry"
)

// ackPDU is an empty SMS-DELIVER-REPORT for RP-ACK, 27.005 section 4.6.
const ackPDU = "0000"

const fetchTimeout = 30 * time.Second

// Message is a received short message.
type Message struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
	PDU  string    `json:"pdu"`
}

// StatusReport tells whether a submitted message reached its recipient.
type StatusReport struct {
	Reference int    `json:"reference"`
	Recipient string `json:"recipient"`
	Status    int    `json:"status"`
}

// SMS is the 27.005 PDU mode message driver.
type SMS struct {
	chat    *chat.Chat
	profile Profile
	logger  *slog.Logger
	retry   retry.Policy

	// mu serializes storage selection and the commands that depend on it.
	mu       sync.Mutex
	cnma     bool
	store    SMSStore
	incoming SMSStore

	sink Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSMS returns an SMS driver on its own handle of c that reports received
// messages and status reports to sink. Call Probe before use.
func NewSMS(c *chat.Chat, profile Profile, sink Sink, logger *slog.Logger) *SMS {
	ctx, cancel := context.WithCancel(context.Background())
	return &SMS{
		chat:    c.Clone(),
		profile: profile,
		logger:  logger.With("component", "sms"),
		retry:   retry.Policy{Attempts: 10, Backoff: time.Second},
		sink:    orDiscard(sink),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Probe checks that the modem supports PDU mode messaging, selects message
// storage and routing, starts listening for incoming messages and collects
// messages already stored on the modem.
func (s *SMS) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectService(ctx); err != nil {
		return err
	}
	if err := s.checkPDUMode(ctx); err != nil {
		return err
	}
	if err := s.selectStorage(ctx); err != nil {
		return err
	}

	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.chat.Exec(ctx, "AT+CMGF=0", []string{"+CMGF:"})
		return err
	})
	if err != nil {
		return fmt.Errorf("enter PDU mode: %w", err)
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.setStorage(ctx, s.store)
	})
	if err != nil {
		return fmt.Errorf("set preferred storage: %w", err)
	}

	if err := s.setRouting(ctx); err != nil {
		return err
	}

	s.chat.Register(at.UrcNewMsg, false, s.onIndex)
	s.chat.Register(at.UrcDeliver, true, s.onDeliver)
	s.chat.Register(at.UrcStatusReport, true, s.onStatusReport)
	// A stored message read with +CMGR is handled like a delivery.
	s.chat.Register("+CMGR:", true, s.onRead)

	first := s.incoming
	if first == StoreMT {
		first = StoreME
	}
	s.collectStored(ctx, first)
	if s.incoming == StoreMT && s.store == StoreME {
		s.collectStored(ctx, StoreSM)
	}

	s.logger.Info("SMS ready", "store", s.store, "incoming", s.incoming, "cnma", s.cnma)
	return nil
}

func (s *SMS) selectService(ctx context.Context) error {
	cnmaSupported := false
	r, err := s.chat.Exec(ctx, "AT+CSMS=?", []string{"+CSMS:"})
	if err != nil {
		return fmt.Errorf("query message service: %w", err)
	}
	iter := at.NewResultIter(r)
	if iter.Next("+CSMS:") && iter.OpenList() {
		for {
			service, ok := iter.NextNumber()
			if !ok {
				break
			}
			cnmaSupported = cnmaSupported || service == 1
		}
	}

	service := 0
	if cnmaSupported {
		service = 1
	}
	if _, err := s.chat.Exec(ctx, fmt.Sprintf("AT+CSMS=%d", service), []string{"+CSMS:"}); err != nil {
		s.logger.Debug("select message service", "service", service, "error", err)
	}

	r, err = s.chat.Exec(ctx, "AT+CSMS?", []string{"+CSMS:"})
	if err != nil {
		return fmt.Errorf("read message service: %w", err)
	}
	iter = at.NewResultIter(r)
	if !iter.Next("+CSMS:") {
		return fmt.Errorf("read message service: %w", ErrUnexpectedResponse)
	}
	var fields [3]int
	for i := range fields {
		v, ok := iter.NextNumber()
		if !ok {
			return fmt.Errorf("read message service: %w", ErrUnexpectedResponse)
		}
		fields[i] = v
	}

	s.cnma = fields[0] == 1
	if fields[1] != 1 || fields[2] != 1 {
		return fmt.Errorf("mobile terminated and originated SMS: %w", ErrNotSupported)
	}
	return nil
}

func (s *SMS) checkPDUMode(ctx context.Context) error {
	r, err := s.chat.Exec(ctx, "AT+CMGF=?", []string{"+CMGF:"})
	if err != nil {
		return fmt.Errorf("query message formats: %w", err)
	}

	iter := at.NewResultIter(r)
	if iter.Next("+CMGF:") && iter.OpenList() {
		for {
			mode, ok := iter.NextNumber()
			if !ok {
				break
			}
			if mode == 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("PDU mode: %w", ErrNotSupported)
}

func (s *SMS) selectStorage(ctx context.Context) error {
	r, err := s.chat.Exec(ctx, "AT+CPMS=?", []string{"+CPMS:"})
	if err != nil {
		return fmt.Errorf("query message storage: %w", err)
	}

	var me, sm, mt [3]bool
	iter := at.NewResultIter(r)
	if !iter.Next("+CPMS:") {
		return fmt.Errorf("query message storage: %w", ErrUnexpectedResponse)
	}
	for mem := range 3 {
		if !iter.OpenList() {
			return fmt.Errorf("query message storage: %w", ErrUnexpectedResponse)
		}
		for {
			store, ok := iter.NextString()
			if !ok {
				break
			}
			switch SMSStore(store) {
			case StoreME:
				me[mem] = true
			case StoreSM:
				sm[mem] = true
			case StoreMT:
				mt[mem] = true
			}
		}
		if !iter.CloseList() {
			return fmt.Errorf("query message storage: %w", ErrUnexpectedResponse)
		}
	}

	if !sm[2] && !me[2] && !mt[2] {
		return fmt.Errorf("incoming message storage: %w", ErrNotSupported)
	}

	switch {
	case sm[0] && sm[1]:
		s.store = StoreSM
	case me[0] && me[1]:
		s.store = StoreME
	default:
		return fmt.Errorf("read/write message storage: %w", ErrNotSupported)
	}

	// With MT the modem picks whichever of SM and ME has room.
	switch {
	case mt[2] && (sm[0] || me[0]):
		s.incoming = StoreMT
	case sm[2]:
		s.incoming = StoreSM
	case me[2]:
		s.incoming = StoreME
	default:
		return fmt.Errorf("incoming message storage: %w", ErrNotSupported)
	}

	return nil
}

// setStorage selects store for reading and deleting. Callers hold mu.
func (s *SMS) setStorage(ctx context.Context, store SMSStore) error {
	cmd := fmt.Sprintf(`AT+CPMS="%s","%s","%s"`, store, store, s.incoming)
	if _, err := s.chat.Exec(ctx, cmd, []string{"+CPMS:"}); err != nil {
		return err
	}
	s.store = store
	return nil
}

func (s *SMS) setRouting(ctx context.Context) error {
	r, err := s.chat.Exec(ctx, "AT+CNMI=?", []string{"+CNMI:"})
	if err != nil {
		return fmt.Errorf("query indication routing: %w", err)
	}

	var opts [5]uint
	iter := at.NewResultIter(r)
	if !iter.Next("+CNMI:") {
		return fmt.Errorf("query indication routing: %w", ErrUnexpectedResponse)
	}
	for i := range opts {
		if !iter.OpenList() {
			return fmt.Errorf("query indication routing: %w", ErrUnexpectedResponse)
		}
		for {
			lo, hi, ok := iter.NextRange()
			if !ok {
				break
			}
			for v := lo; v <= hi && v < 32; v++ {
				opts[i] |= 1 << v
			}
		}
		if !iter.CloseList() {
			return fmt.Errorf("query indication routing: %w", ErrUnexpectedResponse)
		}
	}

	cmd, ok := buildCNMI(opts, s.profile.CNMIModes, s.cnma)
	if !ok {
		return fmt.Errorf("indication routing: %w", ErrNotSupported)
	}
	if _, err := s.chat.Exec(ctx, cmd, []string{"+CNMI:"}); err != nil {
		return fmt.Errorf("set indication routing: %w", err)
	}
	return nil
}

// buildCNMI picks the most preferred supported value for each +CNMI
// parameter.
func buildCNMI(supported [5]uint, modes string, cnma bool) (string, bool) {
	mt := "1"
	if cnma {
		// Deliver via +CMT when it can be acknowledged.
		mt = "21"
	}
	prefs := [5]string{modes, mt, "20", "10", "01"}

	values := make([]string, 0, len(prefs))
	for i, pref := range prefs {
		v, ok := wantedCNMI(supported[i], pref)
		if !ok {
			return "", false
		}
		values = append(values, string(v))
	}
	return "AT+CNMI=" + strings.Join(values, ","), true
}

func wantedCNMI(supported uint, pref string) (byte, bool) {
	for i := range len(pref) {
		if supported&(1<<(pref[i]-'0')) != 0 {
			return pref[i], true
		}
	}
	return 0, false
}

// collectStored delivers and deletes the messages left in store. Callers
// hold mu.
func (s *SMS) collectStored(ctx context.Context, store SMSStore) {
	if store != s.store {
		if err := s.setStorage(ctx, store); err != nil {
			s.logger.Warn("select storage for listing", "store", store, "error", err)
			return
		}
	}

	var indexes []int
	_, err := s.chat.ExecListing(ctx, "AT+CMGL=4", []string{"+CMGL:"}, true, func(r *at.Result) {
		iter := at.NewResultIter(r)
		if !iter.Next("+CMGL:") {
			return
		}
		index, ok1 := iter.NextNumber()
		status, ok2 := iter.NextNumber()
		ok3 := iter.SkipNext()
		length, ok4 := iter.NextNumber()
		if !ok1 || !ok2 || !ok3 || !ok4 {
			s.logger.Warn("unable to parse listing", "line", iter.RawLine())
			return
		}

		// Only received messages.
		if status != 0 && status != 1 {
			return
		}
		s.deliverPDU(r.PDU, length)
		indexes = append(indexes, index)
	})
	if err != nil {
		s.logger.Warn("listing stored messages", "store", store, "error", err)
	}

	for _, index := range indexes {
		s.delete(ctx, index)
	}
}

func (s *SMS) delete(ctx context.Context, index int) {
	if _, err := s.chat.Exec(ctx, fmt.Sprintf("AT+CMGD=%d", index), chat.NoPrefix); err != nil {
		s.logger.Warn("delete received message", "index", index, "error", err)
	}
}

func (s *SMS) onIndex(r *at.Result) {
	store, index, ok := ParseSMSIndex(r, at.UrcNewMsg)
	if !ok || (store != StoreME && store != StoreSM) {
		s.logger.Warn("unable to parse new message indication", "line", r.Lines)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetch(store, index)
	}()
}

// fetch reads a stored message, which then arrives as +CMGR, and deletes it.
func (s *SMS) fetch(store SMSStore, index int) {
	ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if store != s.store {
		if err := s.setStorage(ctx, store); err != nil {
			s.logger.Error("new message indicated but storage selection failed", "store", store, "error", err)
			return
		}
	}
	if _, err := s.chat.Exec(ctx, fmt.Sprintf("AT+CMGR=%d", index), chat.NoPrefix); err != nil {
		s.logger.Error("new message indicated but reading it failed", "index", index, "error", err)
	}
	s.delete(ctx, index)
}

func (s *SMS) onRead(r *at.Result) {
	iter := at.NewResultIter(r)
	if !iter.Next("+CMGR:") || !iter.SkipNext() || !iter.SkipNext() {
		s.logger.Warn("unable to parse read message", "line", r.Lines)
		return
	}
	length, ok := iter.NextNumber()
	if !ok {
		s.logger.Warn("unable to parse read message", "line", r.Lines)
		return
	}
	s.deliverPDU(r.PDU, length)
}

func (s *SMS) onDeliver(r *at.Result) {
	length, ok := parsePDULength(r, at.UrcDeliver)
	if !ok {
		s.logger.Warn("unable to parse delivery", "line", r.Lines)
		return
	}
	s.deliverPDU(r.PDU, length)
	s.ack()
}

func (s *SMS) onStatusReport(r *at.Result) {
	length, ok := parsePDULength(r, at.UrcStatusReport)
	if !ok {
		s.logger.Warn("unable to parse status report", "line", r.Lines)
		return
	}

	report, err := DecodeStatusReport(r.PDU, length)
	if err != nil {
		s.logger.Warn("decode status report", "pdu", r.PDU, "error", err)
	} else {
		s.sink.StatusReport(report)
	}
	s.ack()
}

// ack acknowledges a routed delivery or status report. It runs on the chat
// loop, so it queues the command without waiting for it.
func (s *SMS) ack() {
	cmd := "AT+CNMA=0"
	if s.cnma {
		cmd = fmt.Sprintf("AT+CNMA=1,%d\r%s", len(ackPDU)/2, ackPDU)
	}
	s.chat.Send(cmd, chat.NoPrefix, func(_ *at.Result, err error) {
		if err != nil {
			s.logger.Error("acknowledgement failed, further reception is not guaranteed", "error", err)
		}
	})
}

func (s *SMS) deliverPDU(hexPDU string, length int) {
	msg, err := DecodeDeliver(hexPDU, length)
	if err != nil {
		s.logger.Warn("decode delivered message", "pdu", hexPDU, "error", err)
		return
	}

	s.sink.Message(msg)
}

// parsePDULength reads the <length> of a +CMT or +CDS header. +CMT carries
// an alpha field first.
func parsePDULength(r *at.Result, prefix string) (int, bool) {
	iter := at.NewResultIter(r)
	if !iter.Next(prefix) {
		return 0, false
	}
	if prefix == at.UrcDeliver && !iter.SkipNext() {
		return 0, false
	}
	return iter.NextNumber()
}

// Submit sends text to number and returns the message reference of every
// segment.
func (s *SMS) Submit(ctx context.Context, number, text string) ([]int, error) {
	pdus, err := sms.Encode([]byte(text), sms.AsSubmit, sms.To(number))
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	refs := make([]int, 0, len(pdus))
	for i, p := range pdus {
		b, err := p.MarshalBinary()
		if err != nil {
			return refs, fmt.Errorf("marshal segment %d: %w", i+1, err)
		}
		ref, err := s.SubmitPDU(ctx, b, i < len(pdus)-1)
		if err != nil {
			return refs, fmt.Errorf("submit segment %d of %d: %w", i+1, len(pdus), err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// SubmitPDU sends one SMS-SUBMIT TPDU through the default service centre and
// returns its message reference. more keeps the link open for the next
// segment.
func (s *SMS) SubmitPDU(ctx context.Context, tpduBytes []byte, more bool) (int, error) {
	if more {
		if _, err := s.chat.Exec(ctx, "AT+CMMS=1", chat.NoPrefix); err != nil {
			s.logger.Debug("keep link open", "error", err)
		}
	}

	// A zero length SMSC address selects the default service centre.
	cmd := fmt.Sprintf("AT+CMGS=%d\r00%s", len(tpduBytes), at.EncodeHex(tpduBytes))
	r, err := s.chat.Exec(ctx, cmd, []string{"+CMGS:"})
	if err != nil {
		return 0, err
	}

	iter := at.NewResultIter(r)
	if !iter.Next("+CMGS:") {
		return 0, fmt.Errorf("message reference: %w", ErrUnexpectedResponse)
	}
	ref, ok := iter.NextNumber()
	if !ok {
		return 0, fmt.Errorf("message reference: %w", ErrUnexpectedResponse)
	}
	return ref, nil
}

// ServiceCenter returns the service centre address.
func (s *SMS) ServiceCenter(ctx context.Context) (string, error) {
	r, err := s.chat.Exec(ctx, "AT+CSCA?", []string{"+CSCA:"})
	if err != nil {
		return "", err
	}
	iter := at.NewResultIter(r)
	if !iter.Next("+CSCA:") {
		return "", fmt.Errorf("service centre: %w", ErrUnexpectedResponse)
	}
	number, ok := iter.NextString()
	if !ok {
		return "", fmt.Errorf("service centre: %w", ErrUnexpectedResponse)
	}
	return number, nil
}

// SetServiceCenter sets the service centre address. A leading + selects
// international numbering.
func (s *SMS) SetServiceCenter(ctx context.Context, number string) error {
	toa := 129
	if strings.HasPrefix(number, "+") {
		toa = 145
	}
	_, err := s.chat.Exec(ctx, fmt.Sprintf(`AT+CSCA="%s",%d`, number, toa), []string{"+CSCA:"})
	return err
}

// Close stops listening and waits for pending fetches.
func (s *SMS) Close() {
	s.cancel()
	s.chat.UnregisterAll()
	s.chat.CancelAll()
	s.wg.Wait()
}

// DecodeDeliver decodes a hex PDU mode SMS-DELIVER. length is the TPDU
// length announced by the modem; zero skips the check.
func DecodeDeliver(hexPDU string, length int) (Message, error) {
	t, err := unmarshalPDU(hexPDU, length)
	if err != nil {
		return Message{}, err
	}
	if t.SmsType() != tpdu.SmsDeliver {
		return Message{}, fmt.Errorf("not a delivery: %w", ErrUnexpectedResponse)
	}

	text, err := sms.Decode([]*tpdu.TPDU{t})
	if err != nil {
		return Message{}, fmt.Errorf("decode user data: %w", err)
	}

	return Message{
		From: t.OA.Number(),
		Text: string(text),
		Time: t.SCTS.Time,
		PDU:  hexPDU,
	}, nil
}

// DecodeStatusReport decodes a hex PDU mode SMS-STATUS-REPORT.
func DecodeStatusReport(hexPDU string, length int) (StatusReport, error) {
	t, err := unmarshalPDU(hexPDU, length)
	if err != nil {
		return StatusReport{}, err
	}
	if t.SmsType() != tpdu.SmsStatusReport {
		return StatusReport{}, fmt.Errorf("not a status report: %w", ErrUnexpectedResponse)
	}

	return StatusReport{
		Reference: int(t.MR),
		Recipient: t.RA.Number(),
		Status:    int(t.ST),
	}, nil
}

func unmarshalPDU(hexPDU string, length int) (*tpdu.TPDU, error) {
	pdu, err := pdumode.UnmarshalHexString(hexPDU)
	if err != nil {
		return nil, fmt.Errorf("unmarshal PDU: %w", err)
	}
	if length > 0 && len(pdu.TPDU) != length {
		return nil, fmt.Errorf("TPDU is %d octets, expected %d: %w", len(pdu.TPDU), length, ErrUnexpectedResponse)
	}

	t, err := sms.Unmarshal(pdu.TPDU, sms.AsMT)
	if err != nil {
		return nil, fmt.Errorf("unmarshal TPDU: %w", err)
	}
	return t, nil
}
