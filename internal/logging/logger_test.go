package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLoggingState() {
	CloseAll()
	mu.Lock()
	dir = ""
	active = settings{}
	minLevel = levelInfo
	mu.Unlock()
}

// TestCategoriesLogInDebugMode tests that categories create log files when debug_mode is true
func TestCategoriesLogInDebugMode(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".studynerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `
logging:
  debug_mode: true
  level: debug
  categories:
    boot: true
    api: true
    turn: true
    extract: true
    visual: true
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Turn("turn test message")
	Extract("extract test message")
	Visual("visual test message")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".studynerd", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	found := map[string]bool{}
	for _, e := range entries {
		for _, cat := range []string{"turn", "extract", "visual"} {
			if strings.Contains(e.Name(), cat) {
				found[cat] = true
			}
		}
	}
	for _, cat := range []string{"turn", "extract", "visual"} {
		if !found[cat] {
			t.Errorf("expected a log file for category %q, got %v", cat, entries)
		}
	}
}

// TestNoLogsInProductionMode tests that no logs directory is created without debug_mode
func TestNoLogsInProductionMode(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	API("should not be written")

	if _, err := os.Stat(filepath.Join(tempDir, ".studynerd", "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode")
	}
}

func TestCategoryGating(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".studynerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `
logging:
  debug_mode: true
  level: debug
  categories:
    api: false
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryAPI) {
		t.Error("api category should be disabled")
	}
	if !IsCategoryEnabled(CategoryTurn) {
		t.Error("unlisted categories should default to enabled")
	}
}
