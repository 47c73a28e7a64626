package modem_test

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/modemd/modem"
)

type reply struct {
	data string
	err  error
}

// MockSequenceBuilder scripts a MockTransport. Every expected Write queues
// its reply, which the next Read returns, so replies never arrive ahead of
// the command they answer.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	replies   chan reply
	closeOnce sync.Once
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		transport: transport,
		replies:   make(chan reply, 64),
		calls:     []any{},
	}
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(b.read).AnyTimes()
	return b
}

func (b *MockSequenceBuilder) read(p []byte) (int, error) {
	r, ok := <-b.replies
	if !ok {
		return 0, io.EOF
	}
	if r.err != nil {
		return 0, r.err
	}
	return copy(p, r.data), nil
}

// Expect answers the command line cmd with resp.
func (b *MockSequenceBuilder) Expect(cmd, resp string) *MockSequenceBuilder {
	return b.expectWire(gomock.Eq([]byte(cmd+"\r")), resp)
}

// ExpectPrefix answers any write starting with prefix.
func (b *MockSequenceBuilder) ExpectPrefix(prefix, resp string) *MockSequenceBuilder {
	return b.expectWire(hasPrefix(prefix), resp)
}

func (b *MockSequenceBuilder) expectWire(m gomock.Matcher, resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(m).DoAndReturn(func(p []byte) (int, error) {
			b.replies <- reply{data: resp}
			return len(p), nil
		}),
	)
	return b
}

// Push makes the modem send data on its own.
func (b *MockSequenceBuilder) Push(data string) {
	b.replies <- reply{data: data}
}

// Fail makes the next Read return err.
func (b *MockSequenceBuilder) Fail(err error) {
	b.replies <- reply{err: err}
}

// Close expects the transport to be closed once, returning err.
func (b *MockSequenceBuilder) Close(err error) *gomock.Call {
	return b.transport.EXPECT().Close().DoAndReturn(func() error {
		b.closeOnce.Do(func() { close(b.replies) })
		return err
	})
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Expect("AT", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Expect("ATE0", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) ReportErrors() *MockSequenceBuilder {
	return b.Expect("AT+CMEE=1", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Expect("AT+CPIN?", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPukRequired() *MockSequenceBuilder {
	return b.Expect("AT+CPIN?", "\r\n+CPIN: SIM PUK\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Expect("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EnterPIN(pin string) *MockSequenceBuilder {
	return b.Expect(fmt.Sprintf(`AT+CPIN="%s"`, pin), "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Charset() *MockSequenceBuilder {
	return b.Expect("AT+CSCS?", "\r\n+CSCS: \"IRA\"\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) NetReg() *MockSequenceBuilder {
	return b.
		Expect("AT+CREG=?", "\r\n+CREG: (0-2)\r\n\r\nOK\r\n").
		Expect("AT+CREG=2", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SMS() *MockSequenceBuilder {
	return b.
		Expect("AT+CSMS=?", "\r\n+CSMS: (0,1)\r\n\r\nOK\r\n").
		Expect("AT+CSMS=1", "\r\n+CSMS: 1,1,1\r\n\r\nOK\r\n").
		Expect("AT+CSMS?", "\r\n+CSMS: 1,1,1,1\r\n\r\nOK\r\n").
		Expect("AT+CMGF=?", "\r\n+CMGF: (0,1)\r\n\r\nOK\r\n").
		Expect("AT+CPMS=?", "\r\n+CPMS: (\"ME\",\"SM\"),(\"ME\",\"SM\"),(\"ME\",\"SM\",\"MT\")\r\n\r\nOK\r\n").
		Expect("AT+CMGF=0", "\r\nOK\r\n").
		Expect(`AT+CPMS="SM","SM","MT"`, "\r\n+CPMS: 0,30,0,30,0,30\r\n\r\nOK\r\n").
		Expect("AT+CNMI=?", "\r\n+CNMI: (0-2),(0-3),(0,2),(0-2),(0,1)\r\n\r\nOK\r\n").
		Expect("AT+CNMI=2,2,2,1,0", "\r\nOK\r\n").
		Expect(`AT+CPMS="ME","ME","MT"`, "\r\n+CPMS: 0,99,0,99,0,30\r\n\r\nOK\r\n").
		Expect("AT+CMGL=4", "\r\nOK\r\n").
		Expect(`AT+CPMS="SM","SM","MT"`, "\r\n+CPMS: 0,30,0,30,0,30\r\n\r\nOK\r\n").
		Expect("AT+CMGL=4", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls is the conversation of a successful New with a ready SIM.
func initMockCalls(b *MockSequenceBuilder) []any {
	return b.AT().EchoOff().ReportErrors().SimReady().Charset().NetReg().SMS().Build()
}

type prefixMatcher string

func hasPrefix(prefix string) gomock.Matcher {
	return prefixMatcher(prefix)
}

func (m prefixMatcher) Matches(x any) bool {
	p, ok := x.([]byte)
	return ok && bytes.HasPrefix(p, []byte(m))
}

func (m prefixMatcher) String() string {
	return fmt.Sprintf("has prefix %q", string(m))
}
