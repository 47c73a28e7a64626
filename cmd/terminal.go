package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/modem"
)

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Interactive AT command terminal",
	Long: `Open an interactive AT command terminal on an initialized modem.

Type a command and press Enter to run it. Unsolicited reports such as new
messages and registration changes are shown as they arrive. Up and Down
walk the command history; Esc or Ctrl+C quits.`,
	RunE: runTerminal,
}

func init() {
	rootCmd.AddCommand(terminalCmd)
}

const maxTerminalLines = 500

// execFunc runs one command on the modem.
type execFunc func(ctx context.Context, cmd string) (*at.Result, error)

type terminalModel struct {
	ctx      context.Context
	exec     execFunc
	connInfo string

	input   textinput.Model
	lines   []string
	history []string
	histPos int
	busy    bool

	width    int
	height   int
	lost     bool
	quitting bool
}

type resultMsg struct {
	cmd string
	res *at.Result
	err error
}

type eventMsg struct {
	event modem.Event
}

type modemLostMsg struct{}

var (
	termTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	termCommandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	termOKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	termErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	termEventStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	termHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newTerminalModel(ctx context.Context, exec execFunc, connInfo string) terminalModel {
	ti := textinput.New()
	ti.Placeholder = "AT+CSQ"
	ti.Prompt = "> "
	ti.CharLimit = 512
	ti.Width = 60
	ti.Focus()

	return terminalModel{
		ctx:      ctx,
		exec:     exec,
		connInfo: connInfo,
		input:    ti,
		width:    80,
		height:   24,
	}
}

func (m terminalModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m terminalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)

	case resultMsg:
		m.busy = false
		m.appendResult(msg)

	case eventMsg:
		m.appendLine(termEventStyle.Render(describeEvent(msg.event)))

	case modemLostMsg:
		m.lost = true
		m.appendLine(termErrorStyle.Render("modem connection lost"))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m terminalModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyUp:
		if m.histPos > 0 {
			m.histPos--
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		}
		return m, nil

	case tea.KeyDown:
		if m.histPos < len(m.history)-1 {
			m.histPos++
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		} else {
			m.histPos = len(m.history)
			m.input.SetValue("")
		}
		return m, nil

	case tea.KeyEnter:
		line := strings.TrimSpace(m.input.Value())
		if line == "" || m.busy || m.lost {
			return m, nil
		}
		m.input.SetValue("")
		if len(m.history) == 0 || m.history[len(m.history)-1] != line {
			m.history = append(m.history, line)
		}
		m.histPos = len(m.history)
		m.busy = true
		return m, m.run(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m terminalModel) run(line string) tea.Cmd {
	ctx, exec := m.ctx, m.exec
	return func() tea.Msg {
		res, err := exec(ctx, line)
		return resultMsg{cmd: line, res: res, err: err}
	}
}

func (m *terminalModel) appendResult(msg resultMsg) {
	m.appendLine(termCommandStyle.Render("> " + msg.cmd))

	var atErr *at.Error
	if msg.err != nil && !errors.As(msg.err, &atErr) {
		m.appendLine(termErrorStyle.Render(msg.err.Error()))
		return
	}
	if msg.res == nil {
		return
	}
	for _, l := range msg.res.Lines {
		m.appendLine("  " + l)
	}
	if msg.res.PDU != "" {
		m.appendLine("  " + msg.res.PDU)
	}
	if atErr != nil {
		m.appendLine("  " + termErrorStyle.Render(msg.res.Final))
	} else {
		m.appendLine("  " + termOKStyle.Render(msg.res.Final))
	}
}

func (m *terminalModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	if over := len(m.lines) - maxTerminalLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m terminalModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(termTitleStyle.Render("modemd terminal"))
	s.WriteString(" ")
	s.WriteString(termHeaderStyle.Render(m.connInfo))
	s.WriteString("\n\n")

	// Title, blank line, input and help take four rows.
	rows := max(m.height-5, 1)
	start := max(len(m.lines)-rows, 0)
	for _, l := range m.lines[start:] {
		s.WriteString(l)
		s.WriteString("\n")
	}
	for range rows - (len(m.lines) - start) {
		s.WriteString("\n")
	}

	s.WriteString(m.input.View())
	s.WriteString("\n")
	switch {
	case m.lost:
		s.WriteString(termErrorStyle.Render("disconnected, Esc to quit"))
	case m.busy:
		s.WriteString(termHeaderStyle.Render("waiting for modem..."))
	default:
		s.WriteString(termHeaderStyle.Render("Enter: run  Up/Down: history  Esc: quit"))
	}
	return s.String()
}

// describeEvent renders an event on one line.
func describeEvent(ev modem.Event) string {
	stamp := ev.Time.Format(time.TimeOnly)
	switch ev.Kind {
	case modem.EventMessage:
		if ev.Message != nil {
			return fmt.Sprintf("%s message from %s: %s", stamp, ev.Message.From, ev.Message.Text)
		}
	case modem.EventStatusReport:
		if ev.StatusReport != nil {
			return fmt.Sprintf("%s status report %d for %s: %d", stamp, ev.StatusReport.Reference, ev.StatusReport.Recipient, ev.StatusReport.Status)
		}
	case modem.EventRegistration:
		if ev.Registration != nil {
			return fmt.Sprintf("%s registration %s", stamp, ev.Registration.Status)
		}
	case modem.EventSignal:
		return fmt.Sprintf("%s signal %d%%", stamp, ev.Signal)
	case modem.EventUSSD:
		if ev.USSD != nil {
			return fmt.Sprintf("%s USSD: %s", stamp, ev.USSD.Text)
		}
	}
	data, _ := json.Marshal(ev)
	return stamp + " " + string(data)
}

func runTerminal(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Log to the file only; stderr belongs to the terminal UI.
	if config.Log.File == "" {
		config.Log.Level = "error"
	}

	log := newLogger(config)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connInfo := connectionInfo(config.Modem)
	fmt.Printf("Connecting to %s...\n", connInfo)
	m, capture, err := openModem(ctx, config.Modem, log.Logger)
	if err != nil {
		return err
	}
	defer capture.Close()
	defer m.Close()

	go m.Loop(ctx)

	p := tea.NewProgram(newTerminalModel(ctx, m.Exec, connInfo), tea.WithAltScreen())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-m.Events():
				p.Send(eventMsg{event: ev})
			case <-m.Lost():
				p.Send(modemLostMsg{})
				return
			}
		}
	}()

	_, err = p.Run()
	return err
}
