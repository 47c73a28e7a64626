package modem

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// TestModem is a test helper that answers the commands written to a
// TestTransport from a script.
//
// Script keys are command lines without the trailing CR. A key ending in *
// matches every command starting with the rest of the key. A reply starting
// with > makes the modem prompt first and send the rest of the reply once
// the Ctrl-Z terminated body arrives. Unknown commands get ERROR.
type TestModem struct {
	*TestTransport

	mu       sync.Mutex
	replies  map[string][]string
	commands []string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTestModem starts a scripted modem.
func NewTestModem(script map[string]string) *TestModem {
	m := &TestModem{
		TestTransport: NewTestTransport(),
		replies:       make(map[string][]string),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for cmd, reply := range script {
		m.replies[cmd] = []string{reply}
	}

	go m.serve()
	return m
}

// Reply sets the answers to cmd. Each answer is used once, except the last
// which repeats.
func (m *TestModem) Reply(cmd string, replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[cmd] = replies
}

// Commands returns the command lines received so far. Bodies sent after a
// prompt are included with their Ctrl-Z.
func (m *TestModem) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commands)
}

// WaitCommand waits up to timeout for cmd to be received.
func (m *TestModem) WaitCommand(cmd string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if slices.Contains(m.Commands(), cmd) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stop ends the script. Commands written afterwards go unanswered.
func (m *TestModem) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *TestModem) serve() {
	defer close(m.done)

	var afterPrompt string
	for {
		select {
		case <-m.stop:
			return
		case p := <-m.writes:
			w := string(p)

			if strings.HasSuffix(w, "\x1a") {
				m.record(w)
				m.SendData(afterPrompt)
				afterPrompt = ""
				continue
			}

			cmd := strings.TrimSuffix(w, "\r")
			m.record(cmd)

			reply := m.reply(cmd)
			if rest, ok := strings.CutPrefix(reply, ">"); ok {
				afterPrompt = rest
				m.SendData("\r\n> ")
				continue
			}
			m.SendData(reply)
		}
	}
}

func (m *TestModem) record(cmd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
}

func (m *TestModem) reply(cmd string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := cmd, false
	if _, ok = m.replies[cmd]; !ok {
		best := -1
		for k := range m.replies {
			prefix, wild := strings.CutSuffix(k, "*")
			if wild && strings.HasPrefix(cmd, prefix) && len(prefix) > best {
				key, best, ok = k, len(prefix), true
			}
		}
	}
	if !ok {
		return "\r\nERROR\r\n"
	}

	queue := m.replies[key]
	if len(queue) == 0 {
		return "\r\nERROR\r\n"
	}
	reply := queue[0]
	if len(queue) > 1 {
		m.replies[key] = queue[1:]
	}
	return reply
}
