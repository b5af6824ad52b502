package main

import (
	"testing"

	"studynerd/internal/store"
	"studynerd/internal/tutor"
)

func newTestSessionStore(t *testing.T) *store.LocalStore {
	t.Helper()
	st, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSessionManagerPersistsAppends(t *testing.T) {
	st := newTestSessionStore(t)

	sm, err := newSessionManager(st, tutor.LevelBeginner)
	if err != nil {
		t.Fatalf("newSessionManager: %v", err)
	}

	history := tutor.NewHistory()
	feed := tutor.NewFeed()
	sm.attach(history, feed)

	history.Append(tutor.NewMessage(tutor.RoleUser, "what is a slice?"))
	history.Append(tutor.NewMessage(tutor.RoleAssistant, "a view onto an array"))
	feed.Load([]tutor.VisualItem{
		tutor.VisualItem{ID: "v1", Kind: tutor.VisualDiagram, Content: "graph TD; A-->B"},
	})

	msgs, err := st.GetMessages(sm.id)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	visuals, err := st.GetVisuals(sm.id)
	if err != nil {
		t.Fatalf("GetVisuals: %v", err)
	}
	if len(visuals) != 1 {
		t.Fatalf("persisted %d visuals, want 1", len(visuals))
	}
}

func TestResumeSessionManager(t *testing.T) {
	st := newTestSessionStore(t)

	sm, err := newSessionManager(st, tutor.LevelIntermediate)
	if err != nil {
		t.Fatalf("newSessionManager: %v", err)
	}
	history := tutor.NewHistory()
	feed := tutor.NewFeed()
	sm.attach(history, feed)
	history.Append(tutor.NewMessage(tutor.RoleUser, "hello"))

	resumed, err := resumeSessionManager(st, sm.id)
	if err != nil {
		t.Fatalf("resumeSessionManager: %v", err)
	}
	if len(resumed.msgs) != 1 || len(resumed.visuals) != 0 {
		t.Fatalf("resumed %d messages, %d visuals", len(resumed.msgs), len(resumed.visuals))
	}
	if resumed.info.Level != tutor.LevelIntermediate {
		t.Fatalf("resumed level = %q, want intermediate", resumed.info.Level)
	}

	// New appends continue the stored sequence instead of colliding with it.
	history2 := tutor.NewHistory()
	feed2 := tutor.NewFeed()
	resumed.manager.attach(history2, feed2)
	history2.Append(tutor.NewMessage(tutor.RoleAssistant, "hi again"))

	all, err := st.GetMessages(sm.id)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 messages after resume append, got %d", len(all))
	}
	if all[1].Content != "hi again" {
		t.Fatalf("unexpected second message: %q", all[1].Content)
	}
}

func TestSessionManagerClearVisuals(t *testing.T) {
	st := newTestSessionStore(t)

	sm, err := newSessionManager(st, tutor.LevelBeginner)
	if err != nil {
		t.Fatalf("newSessionManager: %v", err)
	}
	history := tutor.NewHistory()
	feed := tutor.NewFeed()
	sm.attach(history, feed)

	feed.Load([]tutor.VisualItem{
		tutor.VisualItem{ID: "v1", Kind: tutor.VisualDiagram, Content: "graph TD; A-->B"},
		tutor.VisualItem{ID: "v2", Kind: tutor.VisualImage, Content: "data:image/png;base64,x"},
	})
	if err := sm.clearVisuals(); err != nil {
		t.Fatalf("clearVisuals: %v", err)
	}

	visuals, err := st.GetVisuals(sm.id)
	if err != nil {
		t.Fatalf("GetVisuals: %v", err)
	}
	if len(visuals) != 0 {
		t.Fatalf("expected empty feed after clear, got %d items", len(visuals))
	}

	// The sequence restarts, so new items persist from zero.
	feed.Load([]tutor.VisualItem{
		tutor.VisualItem{ID: "v3", Kind: tutor.VisualDiagram, Content: "graph LR; X-->Y"},
	})
	visuals, err = st.GetVisuals(sm.id)
	if err != nil {
		t.Fatalf("GetVisuals: %v", err)
	}
	if len(visuals) != 1 || visuals[0].ID != "v3" {
		t.Fatalf("unexpected feed after clear+append: %+v", visuals)
	}
}

func TestResumeSessionManagerUnknownSession(t *testing.T) {
	st := newTestSessionStore(t)
	if _, err := resumeSessionManager(st, "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
