package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragreader/internal/domain"
	"ragreader/internal/service"
)

type fakePort struct {
	passages []domain.ScoredPassage
	answer   string
	err      error
	asked    string
}

func (p *fakePort) AnswerContext(_ context.Context, _, query string, _ int) ([]domain.ScoredPassage, error) {
	p.asked = query
	return p.passages, p.err
}

func (p *fakePort) Answer(_ context.Context, _, question string, _ int) (service.Answer, error) {
	p.asked = question
	if p.err != nil {
		return service.Answer{}, p.err
	}
	return service.Answer{Text: p.answer, Passages: p.passages}, nil
}

func submit(t *testing.T, m Model, query string) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = next.(Model)
	m.input.SetValue(query)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestModel_AnswerFlow(t *testing.T) {
	port := &fakePort{
		answer: "Alpha comes first.",
		passages: []domain.ScoredPassage{
			{Index: 0, Score: 1, Text: "Alpha text."},
			{Index: 1, Score: 0.5, Text: "Beta text."},
		},
	}
	m := submit(t, New(port, Options{DocID: "doc", Chat: true, TopK: 2}), "alpha")

	assert.Equal(t, "alpha", port.asked)
	assert.False(t, m.busy)
	assert.Contains(t, m.render(), "Alpha comes first.")
	assert.Contains(t, m.render(), "Passage 1/2")
	assert.Contains(t, m.View(), "Reading Assistant")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Contains(t, m.render(), "Beta text.")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	assert.Contains(t, m.render(), "Alpha text.")
}

func TestModel_PassagesOnly(t *testing.T) {
	port := &fakePort{passages: []domain.ScoredPassage{{Index: 3, Score: 0.8, Text: "Gamma."}}}
	m := submit(t, New(port, Options{DocID: "doc"}), "gamma")
	assert.NotContains(t, m.render(), "Answer")
	assert.Contains(t, m.render(), "#3")
}

func TestModel_ErrorShowsUserMessage(t *testing.T) {
	port := &fakePort{err: &domain.EmbeddingServiceError{Index: domain.QueryIndex, Err: assert.AnError}}
	m := submit(t, New(port, Options{DocID: "doc", Chat: true}), "anything")
	assert.Equal(t, "Error: could not prepare the document for search", m.status)
	assert.Contains(t, m.render(), "No passages found.")
}

func TestModel_EmptyEnterIgnored(t *testing.T) {
	m := New(&fakePort{}, Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Cats sleep a lot. Whales sing underwater. Dogs bark."
	out := highlightBestSentence(text, "why do whales sing")
	assert.Contains(t, out, "Whales sing underwater.")
	assert.Contains(t, out, "Cats sleep a lot.")

	assert.Equal(t, "Only one", highlightBestSentence("Only one", ""))
	assert.Equal(t, "  ", highlightBestSentence("  ", "q"))
}
