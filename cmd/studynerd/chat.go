// Package main provides the studyNERD CLI entry point.
// This file implements the interactive tutoring interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"studynerd/cmd/studynerd/ui"
	"studynerd/internal/auth"
	"studynerd/internal/config"
	"studynerd/internal/logging"
	"studynerd/internal/store"
	"studynerd/internal/tutor"
)

// keyRequest is pushed by the key-selection flow when the image backend hits
// an authorization denial; the UI answers on reply.
type keyRequest struct {
	reply chan string
}

// Messages for tea updates
type (
	turnDoneMsg  struct{ err error }
	keyPromptMsg struct{ req keyRequest }
)

// chatModel is the main model for the interactive tutoring interface
type chatModel struct {
	// UI Components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	isLoading   bool
	notice      string
	err         error
	width       int
	height      int
	ready       bool
	showVisuals bool
	cfg         *config.Config
	workspace   string

	// Key-selection flow (pause/resume)
	awaitingKey bool
	keyReq      *keyRequest
	keyRequests chan keyRequest

	// Conversation core
	controller *tutor.Controller
	history    *tutor.History
	feed       *tutor.Feed
	state      *tutor.State
	builder    *tutor.Builder

	// Backend and persistence
	backends *backends
	keychain *auth.Keychain
	store    *store.LocalStore
	session  *sessionManager
}

// initChat initializes the interactive tutoring model
func initChat(ws string) (chatModel, error) {
	cfg, err := config.Load(config.ConfigPath(ws))
	if err != nil {
		return chatModel{}, err
	}

	// Initialize styles
	styles := ui.DefaultStyles()
	if cfg.UI.Theme == "dark" {
		styles = ui.NewStyles(ui.DarkTheme())
	} else if cfg.UI.Theme == "light" {
		styles = ui.NewStyles(ui.LightTheme())
	}

	// Initialize textinput for input
	ti := textinput.New()
	ti.Placeholder = "Ask your mentor anything... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	// Initialize spinner
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	// Initialize viewport for the conversation
	vp := viewport.New(80, 20)
	vp.SetContent("")

	// Initialize markdown renderer
	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	// Key-selection flow: requests arrive from the builder's recovery path,
	// the UI pauses into key-entry mode and resumes with the chosen key.
	keyRequests := make(chan keyRequest, 1)
	selector := func(ctx context.Context) (string, error) {
		req := keyRequest{reply: make(chan string, 1)}
		select {
		case keyRequests <- req:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		select {
		case key := <-req.reply:
			if key == "" {
				return "", fmt.Errorf("key entry cancelled")
			}
			return key, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	keychain := auth.NewKeychain(ws, selector)
	if apiKey != "" {
		// --api-key flag wins; persist so subsequent runs keep it.
		if err := keychain.SetKey(apiKey); err != nil {
			return chatModel{}, err
		}
	}

	// Conversation core
	history := tutor.NewHistory()
	feed := tutor.NewFeed()
	state := tutor.NewState()

	be := &backends{}
	if keychain.HasKey() {
		if err := be.configure(context.Background(), cfg, keychain.Key()); err != nil {
			return chatModel{}, err
		}
	}

	builder := tutor.NewBuilder(be, keychain, feed, state)
	builder.SetTier(tutor.ImageTier(cfg.Image.Tier))

	level, ok := parseLevel(cfg.Tutor.KnowledgeLevel)
	if !ok {
		level = tutor.LevelBeginner
	}
	controller := tutor.NewController(be, history, builder, state, level)

	// Session persistence
	st, err := store.NewLocalStore(databasePath(ws, cfg))
	if err != nil {
		return chatModel{}, err
	}

	var session *sessionManager
	if resumeID != "" {
		// Seed the in-memory state before attaching so the replay is not
		// written back to the store.
		resumed, rerr := resumeSessionManager(st, resumeID)
		if rerr != nil {
			st.Close()
			return chatModel{}, rerr
		}
		for _, msg := range resumed.msgs {
			history.Append(msg)
		}
		feed.Load(resumed.visuals)
		if resumed.info.Level != "" {
			controller.SetLevel(resumed.info.Level)
		}
		session = resumed.manager
	} else {
		session, err = newSessionManager(st, level)
		if err != nil {
			st.Close()
			return chatModel{}, err
		}
	}
	session.attach(history, feed)

	m := chatModel{
		textinput:   ti,
		viewport:    vp,
		spinner:     sp,
		styles:      styles,
		renderer:    renderer,
		cfg:         cfg,
		workspace:   ws,
		keyRequests: keyRequests,
		controller:  controller,
		history:     history,
		feed:        feed,
		state:       state,
		builder:     builder,
		backends:    be,
		keychain:    keychain,
		store:       st,
		session:     session,
	}
	if !keychain.HasKey() {
		m.notice = "No API key configured. Use /key to set one."
	}
	return m, nil
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForKeyRequest(),
	)
}

// waitForKeyRequest blocks until the key-selection flow asks for input.
func (m chatModel) waitForKeyRequest() tea.Cmd {
	requests := m.keyRequests
	return func() tea.Msg {
		return keyPromptMsg{req: <-requests}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.store.Close()
			logging.CloseAll()
			return m, tea.Quit

		case tea.KeyCtrlV:
			m.showVisuals = !m.showVisuals
			return m, nil

		case tea.KeyEnter:
			if m.awaitingKey {
				return m.handleKeyEntry()
			}
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

		// Handle regular key input. Key entry stays interactive while a
		// turn is loading.
		if m.awaitingKey || !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 3
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderHistory())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case turnDoneMsg:
		m.isLoading = false
		if msg.err != nil {
			if rej, ok := msg.err.(*tutor.PolicyRejection); ok {
				m.notice = rej.Notice
			} else if msg.err == tutor.ErrTurnInFlight {
				m.notice = "Hold on, your mentor is still thinking."
			} else {
				m.err = msg.err
			}
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case keyPromptMsg:
		// Pause into key-entry mode; the builder goroutine waits on reply.
		m.awaitingKey = true
		req := msg.req
		m.keyReq = &req
		m.textinput.Reset()
		m.textinput.EchoMode = textinput.EchoPassword
		m.textinput.Placeholder = "Enter a Gemini API key (Enter to confirm, empty to cancel)..."
		m.notice = "The service rejected the current API key. Enter a new one."
		return m, m.waitForKeyRequest()

	case refreshMsg:
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		if m.isLoading {
			return m, m.refreshWhileLoading()
		}
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// handleKeyEntry resumes the key-selection flow with the typed key.
func (m chatModel) handleKeyEntry() (tea.Model, tea.Cmd) {
	key := strings.TrimSpace(m.textinput.Value())

	manual := m.keyReq == nil
	if m.keyReq != nil {
		// Resume the recovery flow; it persists the key itself.
		m.keyReq.reply <- key
		m.keyReq = nil
	}
	m.awaitingKey = false
	m.textinput.Reset()
	m.textinput.EchoMode = textinput.EchoNormal
	m.textinput.Placeholder = "Ask your mentor anything... (Enter to send, Ctrl+C to exit)"

	if key == "" {
		m.notice = "Key entry cancelled."
		return m, nil
	}

	if manual {
		if err := m.keychain.SetKey(key); err != nil {
			m.err = err
			return m, nil
		}
	}

	// Rebuild clients with the new key so the next call uses it.
	if err := m.backends.configure(context.Background(), m.cfg, key); err != nil {
		m.err = err
		return m, nil
	}
	m.notice = "API key updated."
	return m, nil
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	// Check for special commands
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	return m.submitTurn(input, false)
}

// submitTurn starts one conversation turn in the background.
func (m chatModel) submitTurn(input string, isSystem bool) (tea.Model, tea.Cmd) {
	m.textinput.Reset()
	m.notice = ""
	m.err = nil
	m.isLoading = true

	controller := m.controller
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			err := controller.Submit(context.Background(), input, isSystem)
			return turnDoneMsg{err: err}
		},
		m.refreshWhileLoading(),
	)
}

// refreshWhileLoading repaints the conversation periodically so the user
// message and busy indicators appear while the backend call is in flight.
func (m chatModel) refreshWhileLoading() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

type refreshMsg struct{}

func (m chatModel) renderHistory() string {
	var sb strings.Builder

	for _, msg := range m.history.Messages() {
		switch msg.Role {
		case tutor.RoleUser:
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.Content))
			sb.WriteString("\n\n")

		case tutor.RoleSystem:
			sb.WriteString(m.styles.Subtitle.Render("· "+msg.Content) + "\n\n")

		case tutor.RoleAssistant:
			mentorStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(mentorStyle.Render("🎓 Mentor") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

// renderVisuals renders the visualization feed sidebar.
func (m chatModel) renderVisuals(width int) string {
	items := m.feed.Items()

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Visualizations") + "\n")

	if len(items) == 0 {
		sb.WriteString(m.styles.Muted.Render("Nothing here yet. Diagrams and\nimages from your mentor appear\nin this feed."))
		return m.styles.Sidebar.Width(width).Render(sb.String())
	}

	for i, item := range items {
		label := fmt.Sprintf("%d. %s", i+1, item.Kind)
		sb.WriteString(m.styles.Bold.Render(label) + "\n")
		switch item.Kind {
		case tutor.VisualDiagram:
			sb.WriteString(m.styles.CodeBlock.Width(width - 4).Render(truncate(item.Content, 400)))
		case tutor.VisualImage:
			sb.WriteString(m.styles.InlineCode.Render(truncate(item.Content, 60)))
		}
		sb.WriteString("\n")
	}

	return m.styles.Sidebar.Width(width).Render(sb.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())

	if m.isLoading {
		busy := " Thinking..."
		if m.state.Generating() {
			busy = " Generating image..."
		}
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + busy
	}

	if m.notice != "" {
		chatView += "\n" + m.styles.Warning.Render(m.notice)
	}
	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	if m.showVisuals {
		sidebarWidth := m.width / 3
		chatView = lipgloss.JoinHorizontal(
			lipgloss.Top,
			lipgloss.NewStyle().Width(m.width-sidebarWidth-2).Render(chatView),
			m.renderVisuals(sidebarWidth),
		)
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" 🎓 studyNERD ")
	level := m.styles.Badge.Render(string(m.controller.Level()))

	var mentor string
	switch m.state.Mentor() {
	case tutor.MentorSatisfied:
		mentor = m.styles.BadgeSatisfied.Render("✓ satisfied")
	default:
		mentor = m.styles.BadgeSearching.Render("? searching")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		level,
		"  ",
		mentor,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.Muted.Render(fmt.Sprintf(" 📁 %s", m.workspace)),
		m.styles.RenderDivider(m.width),
	)
}

func (m chatModel) renderFooter() string {
	help := m.styles.Muted.Render("Enter: send • Ctrl+V: visualizations • /help: commands • Ctrl+C: exit")
	return lipgloss.NewStyle().
		MarginTop(1).
		Render(help)
}

// runInteractiveChat starts the interactive tutoring interface
func runInteractiveChat() error {
	ws := resolveWorkspace()

	if err := logging.Initialize(ws); err != nil {
		return err
	}
	defer logging.CloseAll()

	m, err := initChat(ws)
	if err != nil {
		return err
	}

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return err
}
