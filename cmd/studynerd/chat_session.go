// Package main provides the studyNERD CLI entry point.
// This file contains session persistence and backend wiring for the chat.
package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"studynerd/internal/config"
	"studynerd/internal/gemini"
	"studynerd/internal/logging"
	"studynerd/internal/store"
	"studynerd/internal/tutor"
)

// =============================================================================
// SESSION PERSISTENCE
// =============================================================================

// sessionManager mirrors the in-memory conversation and visualization feed
// into the SQLite store. Sequence counters preserve append order across the
// two subscriptions.
type sessionManager struct {
	store *store.LocalStore
	id    string

	mu     sync.Mutex
	msgSeq int
	visSeq int
}

// newSessionManager creates a fresh stored session.
func newSessionManager(st *store.LocalStore, level tutor.KnowledgeLevel) (*sessionManager, error) {
	id := uuid.NewString()
	if err := st.CreateSession(id, "", level); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logging.Session("created session %s (level=%s)", id, level)
	return &sessionManager{store: st, id: id}, nil
}

// resumedSession carries everything needed to seed the in-memory state from
// a stored session before attaching the manager.
type resumedSession struct {
	manager *sessionManager
	info    store.SessionInfo
	msgs    []tutor.Message
	visuals []tutor.VisualItem
}

// resumeSessionManager reopens a stored session and returns its transcript
// and feed so the caller can seed the in-memory state before attaching.
func resumeSessionManager(st *store.LocalStore, id string) (*resumedSession, error) {
	info, err := st.GetSession(id)
	if err != nil {
		return nil, err
	}
	msgs, err := st.GetMessages(id)
	if err != nil {
		return nil, err
	}
	visuals, err := st.GetVisuals(id)
	if err != nil {
		return nil, err
	}
	logging.Session("resumed session %s (%d messages, %d visuals)", id, len(msgs), len(visuals))
	return &resumedSession{
		manager: &sessionManager{store: st, id: id, msgSeq: len(msgs), visSeq: len(visuals)},
		info:    info,
		msgs:    msgs,
		visuals: visuals,
	}, nil
}

// attach subscribes the manager to the conversation history and the
// visualization feed. Subscribers run synchronously on append.
func (sm *sessionManager) attach(history *tutor.History, feed *tutor.Feed) {
	history.Subscribe(func(msg tutor.Message) {
		sm.mu.Lock()
		seq := sm.msgSeq
		sm.msgSeq++
		sm.mu.Unlock()
		if err := sm.store.AppendMessage(sm.id, seq, msg); err != nil {
			logging.SessionError("failed to persist message %s: %v", msg.ID, err)
		}
	})
	feed.Subscribe(func(item tutor.VisualItem) {
		sm.mu.Lock()
		seq := sm.visSeq
		sm.visSeq++
		sm.mu.Unlock()
		if err := sm.store.AppendVisual(sm.id, seq, item); err != nil {
			logging.SessionError("failed to persist visual %s: %v", item.ID, err)
		}
	})
}

// clearVisuals drops the stored feed items and restarts the sequence. The
// caller resets the in-memory feed alongside.
func (sm *sessionManager) clearVisuals() error {
	if err := sm.store.ClearVisuals(sm.id); err != nil {
		return err
	}
	sm.mu.Lock()
	sm.visSeq = 0
	sm.mu.Unlock()
	return nil
}

// setLevel records a level change on the stored session.
func (sm *sessionManager) setLevel(level tutor.KnowledgeLevel) {
	if err := sm.store.SetSessionLevel(sm.id, level); err != nil {
		logging.SessionError("failed to persist level change: %v", err)
	}
}

// =============================================================================
// BACKEND WIRING
// =============================================================================

// backends holds the live chat and image clients behind the tutor interfaces
// so they can be rebuilt after a key change without touching the controller.
type backends struct {
	mu     sync.RWMutex
	chat   tutor.ChatBackend
	images tutor.ImageGenerator
}

// configure (re)builds both clients for the given key. An empty key clears
// the clients; calls then fail until a key is configured.
func (b *backends) configure(ctx context.Context, cfg *config.Config, key string) error {
	if key == "" {
		b.mu.Lock()
		b.chat, b.images = nil, nil
		b.mu.Unlock()
		return nil
	}

	chatCfg := gemini.Config{
		APIKey:          key,
		Model:           cfg.LLM.Model,
		MaxOutputTokens: int32(cfg.LLM.MaxOutputTokens),
		Timeout:         cfg.GetLLMTimeout(),
	}
	chat, err := gemini.NewClient(ctx, chatCfg)
	if err != nil {
		return fmt.Errorf("failed to build chat client: %w", err)
	}

	images := gemini.NewImagenClient(gemini.ImagenConfig{
		APIKey:  key,
		BaseURL: cfg.Image.BaseURL,
		Model:   cfg.Image.Model,
		Timeout: cfg.GetImageTimeout(),
	})

	b.mu.Lock()
	b.chat = chat
	b.images = images
	b.mu.Unlock()
	logging.Boot("backends configured (chat=%s image=%s)", chatCfg.Model, cfg.Image.Model)
	return nil
}

func (b *backends) Send(ctx context.Context, history []tutor.Message, newMessage string, level tutor.KnowledgeLevel) (*tutor.Reply, error) {
	b.mu.RLock()
	chat := b.chat
	b.mu.RUnlock()
	if chat == nil {
		return nil, fmt.Errorf("no API key configured; use /key to set one")
	}
	return chat.Send(ctx, history, newMessage, level)
}

func (b *backends) GenerateImage(ctx context.Context, prompt string, tier tutor.ImageTier) (string, error) {
	b.mu.RLock()
	images := b.images
	b.mu.RUnlock()
	if images == nil {
		return "", fmt.Errorf("no API key configured")
	}
	return images.GenerateImage(ctx, prompt, tier)
}
