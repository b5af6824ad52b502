package tutor

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"studynerd/internal/logging"
)

// Reply is the chat backend's answer to one turn. MentorStatus is empty when
// the backend declared no judgment; InlineImage is an optional image
// reference delivered directly alongside the text.
type Reply struct {
	Text        string
	Mentor      MentorStatus
	InlineImage string
}

// ChatBackend is the generative-language collaborator. Send carries the full
// prior history plus the new message and the current knowledge level.
type ChatBackend interface {
	Send(ctx context.Context, history []Message, newMessage string, level KnowledgeLevel) (*Reply, error)
}

// Fixed fallback texts. These are appended as assistant turns, never raised
// as errors to the caller.
const (
	// emptyReplyFallback covers a backend success with no usable text.
	emptyReplyFallback = "I don't have a good answer for that yet. Could you rephrase the question?"

	// backendErrorFallback covers any transport or service failure.
	backendErrorFallback = "I ran into a problem reaching the tutoring service. Please try again in a moment."

	// rejectionNotice is surfaced (not appended) when the anti-cheating gate
	// refuses a submission.
	rejectionNotice = "I can't hand over finished code or answers. Ask me about the logic instead, and we'll work through it together."
)

// ErrTurnInFlight is returned when a submission arrives while a previous turn
// is still awaiting the backend.
var ErrTurnInFlight = errors.New("a turn is already awaiting the backend")

// PolicyRejection is returned when the anti-cheating gate refuses a
// submission. No message is appended and no backend call is made.
type PolicyRejection struct {
	Notice string
}

func (e *PolicyRejection) Error() string {
	return "submission rejected: " + e.Notice
}

// Phase is the controller's turn-taking state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingBackend
)

// Anti-cheating gate: a request for finished work is a "give/write/show"
// verb combined with a deliverable noun, unless the learner also asks about
// the reasoning.
var (
	answerSeekingRe = regexp.MustCompile(`(?i)\b(give|write|show)\b`)
	deliverableRe   = regexp.MustCompile(`(?i)\b(code|answer|solution|full)\b`)
	mitigatingRe    = regexp.MustCompile(`(?i)\b(logic|explain|diagram)\b`)
)

// Controller orchestrates one chat turn: gate, append user turn, backend
// call, append assistant turn, post-process visualizations, update mentor
// status. At most one turn is in flight at any time.
type Controller struct {
	mu    sync.Mutex
	phase Phase

	backend ChatBackend
	history *History
	builder *Builder
	state   *State
	level   KnowledgeLevel
}

// NewController wires a controller to its collaborators.
func NewController(backend ChatBackend, history *History, builder *Builder, state *State, level KnowledgeLevel) *Controller {
	if level == "" {
		level = LevelBeginner
	}
	return &Controller{
		backend: backend,
		history: history,
		builder: builder,
		state:   state,
		level:   level,
	}
}

// Phase returns the controller's current turn-taking state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Level returns the current knowledge level.
func (c *Controller) Level() KnowledgeLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SetLevel changes the knowledge level for subsequent turns.
func (c *Controller) SetLevel(level KnowledgeLevel) {
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()
}

// isAnswerSeeking reports whether text matches the "requesting finished
// code/answer" heuristic without a mitigating keyword.
func isAnswerSeeking(text string) bool {
	return answerSeekingRe.MatchString(text) &&
		deliverableRe.MatchString(text) &&
		!mitigatingRe.MatchString(text)
}

// Submit runs one conversation turn. isSystem marks system-generated prompts
// (quick actions), which bypass the anti-cheating gate. A *PolicyRejection is
// returned when the gate refuses; ErrTurnInFlight when a turn is already
// pending. Backend failures are absorbed into a fixed assistant error turn
// and do not surface as errors.
func (c *Controller) Submit(ctx context.Context, text string, isSystem bool) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	if !isSystem && isAnswerSeeking(text) {
		c.mu.Unlock()
		logging.Turn("gate refused submission (%d bytes)", len(text))
		return &PolicyRejection{Notice: rejectionNotice}
	}
	c.phase = PhaseAwaitingBackend
	level := c.level
	c.mu.Unlock()

	c.state.setInFlight(true)
	defer func() {
		c.state.setInFlight(false)
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
	}()

	prior := c.history.Messages()
	role := RoleUser
	if isSystem {
		role = RoleSystem
	}
	c.history.Append(NewMessage(role, text))

	timer := logging.StartTimer(logging.CategoryTurn, "backend call")
	reply, err := c.backend.Send(ctx, prior, text, level)
	timer.Stop()

	if err != nil {
		logging.TurnError("backend call failed: %v", err)
		c.history.Append(NewMessage(RoleAssistant, backendErrorFallback))
		return nil
	}

	answer := reply.Text
	if answer == "" && reply.InlineImage == "" && reply.Mentor == "" {
		answer = emptyReplyFallback
	}
	if answer != "" {
		c.history.Append(NewMessage(RoleAssistant, answer))
	}

	c.builder.BuildFromResponse(ctx, reply.Text, reply.InlineImage)

	switch reply.Mentor {
	case MentorSatisfied:
		c.state.setMentor(MentorSatisfied)
	case MentorSearching:
		c.state.setMentor(MentorSearching)
	}

	return nil
}

// RejectionNotice returns the fixed notice shown for gated submissions.
func RejectionNotice() string {
	return rejectionNotice
}
