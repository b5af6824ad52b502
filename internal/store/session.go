package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"studynerd/internal/logging"
	"studynerd/internal/tutor"
)

// =============================================================================
// SESSION MANAGEMENT (Transcripts and Visualization Feed)
// =============================================================================

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	ID        string
	Title     string
	Level     tutor.KnowledgeLevel
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateSession records a new session.
func (s *LocalStore) CreateSession(id, title string, level tutor.KnowledgeLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Creating session: id=%s level=%s", id, level)

	_, err := s.db.Exec(
		"INSERT INTO sessions (id, title, level) VALUES (?, ?, ?)",
		id, title, string(level),
	)
	if err != nil {
		logging.StoreError("Failed to create session %s: %v", id, err)
		return err
	}
	return nil
}

// SetSessionLevel updates the knowledge level of a session.
func (s *LocalStore) SetSessionLevel(id string, level tutor.KnowledgeLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE sessions SET level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(level), id,
	)
	if err != nil {
		logging.StoreError("Failed to update session level %s: %v", id, err)
	}
	return err
}

// GetSession returns one stored session by id.
func (s *LocalStore) GetSession(id string) (SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info SessionInfo
	var level string
	err := s.db.QueryRow(
		"SELECT id, title, level, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&info.ID, &info.Title, &level, &info.CreatedAt, &info.UpdatedAt)
	if err == sql.ErrNoRows {
		return SessionInfo{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return SessionInfo{}, err
	}
	info.Level = tutor.KnowledgeLevel(level)
	return info, nil
}

// ListSessions returns stored sessions, most recently updated first.
func (s *LocalStore) ListSessions(limit int) ([]SessionInfo, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListSessions")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, title, level, created_at, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		logging.StoreError("Failed to list sessions: %v", err)
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var level string
		if err := rows.Scan(&info.ID, &info.Title, &level, &info.CreatedAt, &info.UpdatedAt); err != nil {
			continue
		}
		info.Level = tutor.KnowledgeLevel(level)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// AppendMessage records one conversation turn. seq is the message's position
// in the transcript; duplicate positions are silently skipped so replayed
// appends stay idempotent.
func (s *LocalStore) AppendMessage(sessionID string, seq int, msg tutor.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Storing message: session=%s seq=%d role=%s len=%d",
		sessionID, seq, msg.Role, len(msg.Content))

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (id, session_id, seq, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, seq, string(msg.Role), msg.Content, msg.Time,
	)
	if err != nil {
		logging.StoreError("Failed to store message: session=%s seq=%d: %v", sessionID, seq, err)
		return err
	}

	_, err = s.db.Exec("UPDATE sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", sessionID)
	return err
}

// GetMessages retrieves the transcript of a session in order.
func (s *LocalStore) GetMessages(sessionID string) ([]tutor.Message, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetMessages")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, role, content, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		logging.StoreError("Failed to query messages for %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	var messages []tutor.Message
	for rows.Next() {
		var msg tutor.Message
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Time); err != nil {
			continue
		}
		msg.Role = tutor.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendVisual records one visualization feed item.
func (s *LocalStore) AppendVisual(sessionID string, seq int, item tutor.VisualItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Storing visual: session=%s seq=%d kind=%s", sessionID, seq, item.Kind)

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO visuals (id, session_id, seq, kind, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, sessionID, seq, string(item.Kind), item.Content, item.Time,
	)
	if err != nil {
		logging.StoreError("Failed to store visual: session=%s seq=%d: %v", sessionID, seq, err)
	}
	return err
}

// GetVisuals retrieves the visualization feed of a session in order.
func (s *LocalStore) GetVisuals(sessionID string) ([]tutor.VisualItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, kind, content, created_at
		 FROM visuals
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		logging.StoreError("Failed to query visuals for %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	var items []tutor.VisualItem
	for rows.Next() {
		var item tutor.VisualItem
		var kind string
		if err := rows.Scan(&item.ID, &kind, &item.Content, &item.Time); err != nil {
			continue
		}
		item.Kind = tutor.VisualKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClearVisuals removes the stored feed of a session.
func (s *LocalStore) ClearVisuals(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM visuals WHERE session_id = ?", sessionID)
	if err != nil {
		logging.StoreError("Failed to clear visuals for %s: %v", sessionID, err)
	}
	return err
}

// DeleteSession removes a session with its transcript and feed.
func (s *LocalStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range []string{
		"DELETE FROM visuals WHERE session_id = ?",
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := s.db.Exec(q, sessionID); err != nil {
			logging.StoreError("Failed to delete session %s: %v", sessionID, err)
			return err
		}
	}
	return nil
}

// ExportMarkdown renders a session transcript with its visualization feed as
// a markdown document.
func (s *LocalStore) ExportMarkdown(sessionID string) (string, error) {
	var title, level string
	s.mu.RLock()
	err := s.db.QueryRow("SELECT title, level FROM sessions WHERE id = ?", sessionID).Scan(&title, &level)
	s.mu.RUnlock()
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return "", err
	}

	messages, err := s.GetMessages(sessionID)
	if err != nil {
		return "", err
	}
	visuals, err := s.GetVisuals(sessionID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if title == "" {
		title = sessionID
	}
	fmt.Fprintf(&sb, "# %s\n\nKnowledge level: %s\n\n", title, level)

	for _, msg := range messages {
		switch msg.Role {
		case tutor.RoleUser:
			sb.WriteString("## You\n\n")
		case tutor.RoleAssistant:
			sb.WriteString("## Mentor\n\n")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	if len(visuals) > 0 {
		sb.WriteString("## Visualizations\n\n")
		for _, item := range visuals {
			if item.Kind == tutor.VisualDiagram {
				fmt.Fprintf(&sb, "```mermaid\n%s\n```\n\n", item.Content)
			} else {
				fmt.Fprintf(&sb, "![generated image](%s)\n\n", item.Content)
			}
		}
	}

	return sb.String(), nil
}
