// ABOUTME: Interactive chat interface using the bubbletea framework
// ABOUTME: Sends each rep message through the update pipeline and keeps the conversation history
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/dealflow/handlers"
)

// RunFunc processes one message given the earlier turns.
type RunFunc func(ctx context.Context, text string, history []handlers.TurnInput) (handlers.ProcessUpdateOutput, error)

// maxTurns bounds the history sent with each message.
const maxTurns = 20

type entry struct {
	role string
	text string
}

// resultMsg carries a finished pipeline run back into Update.
type resultMsg struct {
	out handlers.ProcessUpdateOutput
	err error
}

// Model is the chat bubbletea model
type Model struct {
	ctx     context.Context
	run     RunFunc
	input   textinput.Model
	history []handlers.TurnInput
	log     []entry
	busy    bool

	width  int
	height int
}

// NewModel creates a chat model bound to run.
func NewModel(ctx context.Context, run RunFunc) Model {
	ti := textinput.New()
	ti.Placeholder = "What happened on the deal?"
	ti.CharLimit = 2000
	ti.Width = 76
	ti.Focus()

	return Model{
		ctx:    ctx,
		run:    run,
		input:  ti,
		width:  80,
		height: 24,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil
	case resultMsg:
		return m.receive(msg), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	if text == "/quit" {
		return m, tea.Quit
	}

	history := append([]handlers.TurnInput(nil), m.history...)
	m.log = append(m.log, entry{role: "user", text: text})
	m.history = trimTurns(append(m.history, handlers.TurnInput{Role: "user", Content: text}))
	m.input.SetValue("")
	m.busy = true

	ctx, run := m.ctx, m.run
	return m, func() tea.Msg {
		out, err := run(ctx, text, history)
		return resultMsg{out: out, err: err}
	}
}

func (m Model) receive(msg resultMsg) Model {
	m.busy = false
	reply := summarize(msg.out, msg.err)
	m.log = append(m.log, entry{role: "assistant", text: reply})
	m.history = trimTurns(append(m.history, handlers.TurnInput{Role: "assistant", Content: reply}))
	return m
}

func trimTurns(turns []handlers.TurnInput) []handlers.TurnInput {
	if len(turns) > maxTurns {
		return turns[len(turns)-maxTurns:]
	}
	return turns
}

// summarize renders an outcome as the assistant's reply. The same text goes
// into the history so follow-up answers resolve against it.
func summarize(out handlers.ProcessUpdateOutput, err error) string {
	if err != nil {
		return "Error: " + err.Error()
	}

	var lines []string
	lines = append(lines, out.Messages...)
	for _, q := range out.Questions {
		lines = append(lines, "? "+q)
	}
	for _, s := range out.Suggestions {
		lines = append(lines, "Tip: "+s)
	}
	for _, match := range out.Matches {
		lines = append(lines, "  - "+match)
	}
	if out.Error != "" {
		lines = append(lines, "Error: "+out.Error)
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("Done (%s).", out.Status))
	}
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("DEALFLOW"))
	s.WriteString("\n\n")

	for _, e := range m.visible() {
		if e.role == "user" {
			s.WriteString(userStyle.Render("you: "))
			s.WriteString(e.text)
		} else {
			s.WriteString(assistantStyle.Render(e.text))
		}
		s.WriteString("\n\n")
	}

	if m.busy {
		s.WriteString(busyStyle.Render("working..."))
		s.WriteString("\n\n")
	}

	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: send • esc: quit"))
	return s.String()
}

// visible keeps the newest entries that fit the window.
func (m Model) visible() []entry {
	budget := m.height - 6
	if budget < 1 {
		budget = 1
	}
	used := 0
	start := len(m.log)
	for start > 0 {
		lines := strings.Count(m.log[start-1].text, "\n") + 2
		if used+lines > budget && start < len(m.log) {
			break
		}
		used += lines
		start--
	}
	return m.log[start:]
}

// Run starts the full-screen chat.
func Run(ctx context.Context, run RunFunc) error {
	_, err := tea.NewProgram(NewModel(ctx, run), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingLeft(2)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
