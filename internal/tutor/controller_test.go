package tutor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend is a scripted chat backend.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	lastMsg string
	history []Message
	reply   *Reply
	err     error

	// block, when set, holds Send until released; started signals entry.
	// Used to probe the one-in-flight guarantee.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeBackend) Send(_ context.Context, history []Message, newMessage string, _ KnowledgeLevel) (*Reply, error) {
	f.mu.Lock()
	f.calls++
	f.lastMsg = newMessage
	f.history = append([]Message(nil), history...)
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &Reply{Text: "ok"}, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(backend ChatBackend) (*Controller, *History, *Feed, *State) {
	history := NewHistory()
	feed := NewFeed()
	state := NewState()
	builder := NewBuilder(&fakeImageGen{}, nil, feed, state)
	ctrl := NewController(backend, history, builder, state, LevelBeginner)
	return ctrl, history, feed, state
}

func TestSubmit_GateRejectsAnswerSeeking(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, history, _, _ := newTestController(backend)

	err := ctrl.Submit(context.Background(), "give me the full code", false)

	var rejection *PolicyRejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, RejectionNotice(), rejection.Notice)
	assert.Zero(t, history.Len(), "no message may be appended on rejection")
	assert.Zero(t, backend.callCount(), "no backend call may be made on rejection")
	assert.Equal(t, PhaseIdle, ctrl.Phase())
}

func TestSubmit_GateMitigatedByReasoningKeywords(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, history, _, _ := newTestController(backend)

	err := ctrl.Submit(context.Background(), "give me the full code, explain the logic", false)

	require.NoError(t, err)
	assert.Equal(t, 1, backend.callCount())
	assert.Equal(t, 2, history.Len())
}

func TestSubmit_GateBypassedForSystemPrompts(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, history, _, _ := newTestController(backend)

	err := ctrl.Submit(context.Background(), "show me the full solution", true)

	require.NoError(t, err)
	assert.Equal(t, 1, backend.callCount())
	require.Equal(t, 2, history.Len())
	assert.Equal(t, RoleSystem, history.Messages()[0].Role)
}

func TestSubmit_GateCases(t *testing.T) {
	tests := []struct {
		text     string
		rejected bool
	}{
		{"give me the full code", true},
		{"write the answer for me", true},
		{"show me the solution", true},
		{"give me the full code, explain the logic", false},
		{"show me a diagram of the full solution", false},
		{"explain how to give a presentation about code", false},
		{"how does recursion work?", false},
		{"what is a pointer?", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.rejected, isAnswerSeeking(tt.text))
		})
	}
}

func TestSubmit_EndToEndTurn(t *testing.T) {
	backend := &fakeBackend{reply: &Reply{
		Text:   "Recursion breaks a problem down.\n```mermaid\nflowchart TD; A-->B\n```\nSee the diagram.",
		Mentor: MentorSatisfied,
	}}
	ctrl, history, feed, state := newTestController(backend)

	require.NoError(t, ctrl.Submit(context.Background(), "Explain recursion", false))

	msgs := history.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Explain recursion", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	assert.Equal(t, MentorSatisfied, state.Mentor())

	items := feed.Items()
	require.Len(t, items, 1)
	assert.Equal(t, VisualDiagram, items[0].Kind)
	assert.Equal(t, "flowchart TD; A-->B", items[0].Content)

	// The backend saw the empty prior history, not the appended user turn.
	assert.Empty(t, backend.history)
	assert.Equal(t, "Explain recursion", backend.lastMsg)
	assert.Equal(t, PhaseIdle, ctrl.Phase())
}

func TestSubmit_BackendFailureAppendsErrorTurn(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection reset")}
	ctrl, history, feed, state := newTestController(backend)

	require.NoError(t, ctrl.Submit(context.Background(), "Explain recursion", false))

	msgs := history.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, backendErrorFallback, msgs[1].Content)
	assert.Zero(t, feed.Len())
	assert.Equal(t, MentorSearching, state.Mentor(), "mentor status unchanged on failure")
	assert.Equal(t, PhaseIdle, ctrl.Phase())
}

func TestSubmit_EmptyReplyFallsBackToPlaceholder(t *testing.T) {
	backend := &fakeBackend{reply: &Reply{}}
	ctrl, history, _, _ := newTestController(backend)

	require.NoError(t, ctrl.Submit(context.Background(), "Explain recursion", false))

	msgs := history.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, emptyReplyFallback, msgs[1].Content)
}

func TestSubmit_MentorStatusAbsentLeavesStateUnchanged(t *testing.T) {
	backend := &fakeBackend{reply: &Reply{Text: "keep going"}}
	ctrl, _, _, state := newTestController(backend)
	state.setMentor(MentorSatisfied)

	require.NoError(t, ctrl.Submit(context.Background(), "more", false))

	assert.Equal(t, MentorSatisfied, state.Mentor())
}

func TestSubmit_SecondSubmissionWhileInFlight(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), started: make(chan struct{}, 1)}
	ctrl, history, _, _ := newTestController(backend)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Submit(context.Background(), "first question", false)
	}()

	// Wait until the first turn reaches the backend.
	<-backend.started

	err := ctrl.Submit(context.Background(), "second question", false)
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(backend.block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, backend.callCount(), "second submission must not reach the backend")
	assert.Equal(t, 2, history.Len())
	assert.Equal(t, PhaseIdle, ctrl.Phase())
}

func TestSubmit_LevelChangeAppliesToNextTurn(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, _, _, _ := newTestController(backend)

	ctrl.SetLevel(LevelAdvanced)
	assert.Equal(t, LevelAdvanced, ctrl.Level())
}
