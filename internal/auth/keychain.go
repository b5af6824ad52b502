// Package auth manages the Gemini API key used by the chat and image
// backends: resolution from the environment and the workspace config, and
// the interactive key-selection flow triggered after authorization denials.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"studynerd/internal/config"
	"studynerd/internal/logging"
)

// SelectFunc runs the interactive key-selection flow and returns the key the
// user chose. Implementations are supplied by the UI layer.
type SelectFunc func(ctx context.Context) (string, error)

// Keychain resolves and stores the API key. It implements the key-selection
// collaborator the visualization builder recovers through.
type Keychain struct {
	mu        sync.RWMutex
	key       string
	workspace string
	selector  SelectFunc
}

// NewKeychain builds a keychain for a workspace. The key is resolved from
// GEMINI_API_KEY first, then from the workspace config; either may be empty.
// selector may be nil when no interactive flow is available.
func NewKeychain(workspace string, selector SelectFunc) *Keychain {
	k := &Keychain{workspace: workspace, selector: selector}
	k.key = resolveKey(workspace)
	return k
}

func resolveKey(workspace string) string {
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key
	}
	cfg, err := config.Load(config.ConfigPath(workspace))
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("could not load config for key resolution: %v", err)
		return ""
	}
	return strings.TrimSpace(cfg.LLM.APIKey)
}

// Key returns the current API key, empty when none is configured.
func (k *Keychain) Key() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

// HasKey reports whether a usable key is configured.
func (k *Keychain) HasKey() bool {
	return k.Key() != ""
}

// SetKey stores a key in memory and persists it to the workspace config.
func (k *Keychain) SetKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}

	k.mu.Lock()
	k.key = key
	k.mu.Unlock()

	path := config.ConfigPath(k.workspace)
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	cfg.LLM.APIKey = key
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to persist API key: %w", err)
	}
	return nil
}

// PromptForKey runs the key-selection flow and stores the chosen key. Without
// a selector it reports that no flow is available.
func (k *Keychain) PromptForKey(ctx context.Context) error {
	if k.selector == nil {
		return fmt.Errorf("no key-selection flow available")
	}

	key, err := k.selector(ctx)
	if err != nil {
		return fmt.Errorf("key selection failed: %w", err)
	}
	if err := k.SetKey(key); err != nil {
		return err
	}
	logging.Boot("API key updated via key-selection flow")
	return nil
}
