// Package main provides the studyNERD CLI entry point.
// This file implements the slash commands and quick actions of the chat.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"studynerd/internal/logging"
	"studynerd/internal/tutor"
)

// Quick actions are system-generated prompts: they bypass the anti-cheating
// gate and are labeled as actions in the transcript.
var quickActions = map[string]string{
	"/hint":    "Give the learner a small hint for the problem being discussed, without revealing the solution.",
	"/quiz":    "Ask the learner one short quiz question about the topic being discussed.",
	"/summary": "Summarize what the learner has understood so far and suggest what to study next.",
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	logging.UI("command: %s", cmd)

	if prompt, ok := quickActions[cmd]; ok {
		return m.submitTurn(prompt, true)
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		m.store.Close()
		logging.CloseAll()
		return m, tea.Quit

	case "/help":
		m.notice = ""
		m.viewport.SetContent(m.renderHistory() + m.helpText())
		m.viewport.GotoBottom()
		m.textinput.Reset()
		return m, nil

	case "/level":
		if len(parts) < 2 {
			m.notice = fmt.Sprintf("Current level: %s. Usage: /level beginner|intermediate|advanced", m.controller.Level())
			m.textinput.Reset()
			return m, nil
		}
		level, ok := parseLevel(parts[1])
		if !ok {
			m.notice = fmt.Sprintf("Unknown level %q.", parts[1])
			m.textinput.Reset()
			return m, nil
		}
		m.controller.SetLevel(level)
		m.session.setLevel(level)
		m.notice = fmt.Sprintf("Knowledge level set to %s.", level)
		m.textinput.Reset()
		return m, nil

	case "/visuals":
		if len(parts) > 1 && parts[1] == "clear" {
			return m.clearVisualFeed()
		}
		m.showVisuals = !m.showVisuals
		m.textinput.Reset()
		return m, nil

	case "/export":
		path := fmt.Sprintf("studynerd-%s.md", time.Now().Format("20060102-150405"))
		if len(parts) > 1 {
			path = parts[1]
		}
		m.textinput.Reset()
		doc, err := m.store.ExportMarkdown(m.session.id)
		if err != nil {
			m.err = err
			return m, nil
		}
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			m.err = fmt.Errorf("failed to write export: %w", err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Session exported to %s.", path)
		return m, nil

	case "/key":
		// Manual key entry, same pause/resume mode the recovery flow uses.
		m.awaitingKey = true
		m.keyReq = nil
		m.textinput.Reset()
		m.textinput.EchoMode = textinput.EchoPassword
		m.textinput.Placeholder = "Enter a Gemini API key (Enter to confirm, empty to cancel)..."
		return m, nil

	case "/clear":
		return m.startNewConversation()

	default:
		m.notice = fmt.Sprintf("Unknown command %s. Try /help.", cmd)
		m.textinput.Reset()
		return m, nil
	}
}

// clearVisualFeed drops the visualization items of the current session, both
// in memory and in the store.
func (m chatModel) clearVisualFeed() (tea.Model, tea.Cmd) {
	m.textinput.Reset()
	if err := m.session.clearVisuals(); err != nil {
		m.err = err
		return m, nil
	}
	m.feed.Reset()
	m.notice = "Visualization feed cleared."
	return m, nil
}

// startNewConversation begins a fresh session; the previous one stays in the
// store.
func (m chatModel) startNewConversation() (tea.Model, tea.Cmd) {
	history := tutor.NewHistory()
	feed := tutor.NewFeed()
	state := tutor.NewState()

	builder := tutor.NewBuilder(m.backends, m.keychain, feed, state)
	builder.SetTier(tutor.ImageTier(m.cfg.Image.Tier))
	controller := tutor.NewController(m.backends, history, builder, state, m.controller.Level())

	session, err := newSessionManager(m.store, m.controller.Level())
	if err != nil {
		m.err = err
		return m, nil
	}
	session.attach(history, feed)

	m.history = history
	m.feed = feed
	m.state = state
	m.builder = builder
	m.controller = controller
	m.session = session

	m.textinput.Reset()
	m.notice = "Started a new session."
	m.err = nil
	m.viewport.SetContent("")
	return m, nil
}

func (m chatModel) helpText() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(m.styles.Title.Render("Commands") + "\n")
	for _, line := range []string{
		"/hint          ask for a small hint",
		"/quiz          get a quiz question on the current topic",
		"/summary       review your progress",
		"/level <name>  set knowledge level (beginner, intermediate, advanced)",
		"/visuals       toggle the visualization feed (Ctrl+V)",
		"/visuals clear drop the feed items of this session",
		"/export [file] export this session as markdown",
		"/key           set the Gemini API key",
		"/clear         start a new session",
		"/quit          exit",
	} {
		sb.WriteString(m.styles.Muted.Render("  "+line) + "\n")
	}
	return sb.String()
}
