// ABOUTME: Tests for the chat model
// ABOUTME: Drives Update with key and result messages and checks history and rendering
package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/dealflow/handlers"
)

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func TestSubmitRunsPipelineWithHistory(t *testing.T) {
	var seen [][]handlers.TurnInput
	run := func(_ context.Context, text string, history []handlers.TurnInput) (handlers.ProcessUpdateOutput, error) {
		seen = append(seen, history)
		return handlers.ProcessUpdateOutput{
			Status:    "needs_clarification",
			Questions: []string{"Which opportunity?"},
		}, nil
	}

	m := typeText(NewModel(context.Background(), run), "budget is confirmed")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	require.Len(t, m.history, 2)
	assert.Equal(t, "user", m.history[0].Role)
	assert.Equal(t, "assistant", m.history[1].Role)
	assert.Contains(t, m.history[1].Content, "Which opportunity?")

	m = typeText(m, "Acme Renewal")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	cmd()

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0])
	assert.Len(t, seen[1], 2, "second message carries the first exchange")
}

func TestEmptyInputAndQuit(t *testing.T) {
	m := NewModel(context.Background(), nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Error: boom", summarize(handlers.ProcessUpdateOutput{}, errors.New("boom")))
	assert.Equal(t, "Done (no_changes).", summarize(handlers.ProcessUpdateOutput{Status: "no_changes"}, nil))

	text := summarize(handlers.ProcessUpdateOutput{
		Messages:    []string{"Updated 1 field(s) on Acme."},
		Suggestions: []string{"Confirm budget before Proposal."},
	}, nil)
	assert.True(t, strings.HasPrefix(text, "Updated 1 field(s)"))
	assert.Contains(t, text, "Tip: Confirm budget")
}

func TestHistoryIsBounded(t *testing.T) {
	var turns []handlers.TurnInput
	for i := 0; i < maxTurns+5; i++ {
		turns = append(turns, handlers.TurnInput{Role: "user", Content: "x"})
	}
	assert.Len(t, trimTurns(turns), maxTurns)
}

func TestViewShowsTranscript(t *testing.T) {
	m := NewModel(context.Background(), nil)
	m.log = []entry{{role: "user", text: "hello"}, {role: "assistant", text: "Which opportunity?"}}

	view := m.View()
	assert.Contains(t, view, "DEALFLOW")
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "Which opportunity?")
}
