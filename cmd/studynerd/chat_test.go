package main

import (
	"strings"
	"testing"

	"studynerd/cmd/studynerd/ui"
	"studynerd/internal/config"
	"studynerd/internal/tutor"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want tutor.KnowledgeLevel
		ok   bool
	}{
		{"beginner", tutor.LevelBeginner, true},
		{"Intermediate", tutor.LevelIntermediate, true},
		{" ADVANCED ", tutor.LevelAdvanced, true},
		{"expert", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseLevel(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := config.DefaultConfig()
	got := databasePath("/home/learner/project", cfg)
	if !strings.HasPrefix(got, "/home/learner/project/") {
		t.Errorf("relative path not resolved against workspace: %s", got)
	}

	cfg.Memory.DatabasePath = "/var/data/sessions.db"
	if got := databasePath("/home/learner/project", cfg); got != "/var/data/sessions.db" {
		t.Errorf("absolute path rewritten: %s", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("short string modified: %q", got)
	}
	got := truncate("a long diagram source", 6)
	if !strings.HasPrefix(got, "a long") || !strings.HasSuffix(got, "…") {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestQuickActionsAreSystemPrompts(t *testing.T) {
	for _, cmd := range []string{"/hint", "/quiz", "/summary"} {
		prompt, ok := quickActions[cmd]
		if !ok || prompt == "" {
			t.Errorf("missing quick action %s", cmd)
		}
	}
}

func TestRenderHistoryRoles(t *testing.T) {
	history := tutor.NewHistory()
	history.Append(tutor.NewMessage(tutor.RoleUser, "what is a goroutine?"))
	history.Append(tutor.NewMessage(tutor.RoleAssistant, "A goroutine is a lightweight thread."))

	m := chatModel{
		styles:  ui.NewStyles(ui.LightTheme()),
		history: history,
	}

	out := m.renderHistory()
	if !strings.Contains(out, "You") {
		t.Errorf("user label missing:\n%s", out)
	}
	if !strings.Contains(out, "Mentor") {
		t.Errorf("mentor label missing:\n%s", out)
	}
	if !strings.Contains(out, "what is a goroutine?") {
		t.Errorf("user content missing:\n%s", out)
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	m := chatModel{styles: ui.NewStyles(ui.LightTheme())}
	help := m.helpText()
	for _, cmd := range []string{"/hint", "/level", "/export", "/key", "/clear"} {
		if !strings.Contains(help, cmd) {
			t.Errorf("help missing %s", cmd)
		}
	}
}

func TestLastN(t *testing.T) {
	if got := lastN("abcdef", 4); got != "cdef" {
		t.Errorf("lastN = %q", got)
	}
	if got := lastN("ab", 4); got != "ab" {
		t.Errorf("lastN short = %q", got)
	}
}
