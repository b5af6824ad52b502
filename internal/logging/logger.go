// Package logging writes per-category log files for studyNERD.
// Files land in .studynerd/logs/, one file per category per day. Nothing is
// written unless logging.debug_mode is set in .studynerd/config.yaml, so a
// production run leaves no trace on disk.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category names one logging stream.
type Category string

const (
	CategoryBoot    Category = "boot"    // startup and wiring
	CategorySession Category = "session" // session lifecycle and persistence
	CategoryAPI     Category = "api"     // Gemini API calls (chat and image)
	CategoryTurn    Category = "turn"    // turn controller decisions
	CategoryExtract Category = "extract" // directive extraction
	CategoryVisual  Category = "visual"  // visualization feed and image building
	CategoryStore   Category = "store"   // SQLite store operations
	CategoryUI      Category = "ui"      // TUI events
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]level{
	"debug":   levelDebug,
	"info":    levelInfo,
	"warn":    levelWarn,
	"warning": levelWarn,
	"error":   levelError,
}

// settings is decoded straight from the yaml file rather than through
// internal/config, which itself logs through this package.
type settings struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Logger writes one category's entries to its file. A Logger with no open
// file swallows everything.
type Logger struct {
	category Category
	out      *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	open     = map[Category]*Logger{}
	dir      string
	active   settings
	minLevel = levelInfo
)

// Initialize points the package at the workspace and reads the logging
// section of its config. Call once at startup. With debug_mode off the
// whole package is a no-op and the logs directory is never created.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	dir = filepath.Join(ws, ".studynerd", "logs")
	active, minLevel = readSettings(filepath.Join(ws, ".studynerd", "config.yaml"))
	enabled := active.DebugMode
	logsDir := dir
	levelName := active.Level
	mu.Unlock()

	if !enabled {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Boot("logging initialized (dir=%s level=%s)", logsDir, levelName)
	return nil
}

func readSettings(path string) (settings, level) {
	var file struct {
		Logging settings `yaml:"logging"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// Missing config means production mode.
		return settings{}, levelInfo
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] unreadable config %s: %v\n", path, err)
		return settings{}, levelInfo
	}
	lv, ok := levelNames[file.Logging.Level]
	if !ok {
		lv = levelInfo
	}
	return file.Logging, lv
}

// IsDebugMode reports whether anything is being written at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return active.DebugMode
}

// IsCategoryEnabled reports whether a category writes entries. Categories
// absent from the config are enabled whenever debug mode is on.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

// categoryEnabled requires mu to be held.
func categoryEnabled(category Category) bool {
	if !active.DebugMode {
		return false
	}
	on, listed := active.Categories[string(category)]
	return !listed || on
}

// Get returns the logger for a category, opening its file on first use. A
// disabled or uninitialized category yields a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if !categoryEnabled(category) || dir == "" {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := open[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := open[category]; ok {
		return l
	}

	// Date-prefixed filename; rotation is picking a new day.
	name := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category)
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] cannot open %s: %v\n", name, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		out:      log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	open[category] = l
	return l
}

func (l *Logger) write(lv level, tag, format string, args ...interface{}) {
	if l.out == nil || lv < minLevel {
		return
	}
	l.out.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(levelDebug, "DEBUG", format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.write(levelInfo, "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(levelWarn, "WARN", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.write(levelError, "ERROR", format, args...)
}

// CloseAll closes every open log file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range open {
		if l.file != nil {
			l.file.Close()
		}
	}
	open = map[Category]*Logger{}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// One call per category without fetching a logger first; no-ops when the
// category is disabled.
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

func SessionError(format string, args ...interface{}) { Get(CategorySession).Error(format, args...) }

func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Turn(format string, args ...interface{}) { Get(CategoryTurn).Info(format, args...) }

func TurnDebug(format string, args ...interface{}) { Get(CategoryTurn).Debug(format, args...) }

func TurnError(format string, args ...interface{}) { Get(CategoryTurn).Error(format, args...) }

func Extract(format string, args ...interface{}) { Get(CategoryExtract).Info(format, args...) }

func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

func Visual(format string, args ...interface{}) { Get(CategoryVisual).Info(format, args...) }

func VisualWarn(format string, args ...interface{}) { Get(CategoryVisual).Warn(format, args...) }

func VisualError(format string, args ...interface{}) { Get(CategoryVisual).Error(format, args...) }

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func UI(format string, args ...interface{}) { Get(CategoryUI).Info(format, args...) }

// =============================================================================
// TIMING
// =============================================================================

// Timer measures one operation and logs its duration at debug level.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
