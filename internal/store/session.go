package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finsight/internal/insight"
	"finsight/internal/logging"
)

// ErrSessionNotFound is returned when a session id matches no conversation.
var ErrSessionNotFound = errors.New("session not found")

// GreetingDataKey is the last_findings key holding session-start greeting
// data. It is not a findings domain and stays out of routing summaries.
const GreetingDataKey = "greeting_data"

// Message is one transcript entry stored on a conversation.
type Message struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	Timestamp        string          `json:"timestamp"`
	AgentSources     []string        `json:"agent_sources"`
	FindingsSnapshot json.RawMessage `json:"findings_snapshot,omitempty"`
}

// Conversation is one chat session with its transcript and the findings
// from its most recent analytical turn.
type Conversation struct {
	ID           int64
	UserID       int64
	SessionID    string
	Messages     []Message
	LastFindings map[string]json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DomainFindings decodes last_findings into per-domain finding lists,
// skipping greeting data and anything that does not decode as findings.
func (c *Conversation) DomainFindings() map[string][]insight.Finding {
	out := make(map[string][]insight.Finding)
	for domain, raw := range c.LastFindings {
		if domain == GreetingDataKey {
			continue
		}
		var findings []insight.Finding
		if err := json.Unmarshal(raw, &findings); err != nil {
			continue
		}
		out[domain] = findings
	}
	return out
}

// NewSessionID mints a session id of the form chat-<date>-<uuid8>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("chat-%s-%s", now.Format("2006-01-02"), uuid.NewString()[:8])
}

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(userID int64, sessionID string, messages []Message, lastFindings map[string]json.RawMessage) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgJSON, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	if lastFindings == nil {
		lastFindings = map[string]json.RawMessage{}
	}
	findingsJSON, err := json.Marshal(lastFindings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal last findings: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO conversations (user_id, session_id, messages, last_findings)
		VALUES (?, ?, ?, ?)`, userID, sessionID, string(msgJSON), string(findingsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryStore).Debug("conversation created",
		zap.String("session_id", sessionID))
	return &Conversation{
		ID: id, UserID: userID, SessionID: sessionID,
		Messages: messages, LastFindings: lastFindings,
	}, nil
}

// ConversationBySession loads the conversation for a session id.
func (s *Store) ConversationBySession(sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanConversation(s.db.QueryRow(`
		SELECT id, user_id, session_id, messages, last_findings, created_at, updated_at
		FROM conversations WHERE session_id = ?`, sessionID))
}

// TodayConversation returns the user's conversation created today, if any.
func (s *Store) TodayConversation(userID int64, now time.Time) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.scanConversation(s.db.QueryRow(`
		SELECT id, user_id, session_id, messages, last_findings, created_at, updated_at
		FROM conversations
		WHERE user_id = ? AND session_id LIKE ?
		ORDER BY id LIMIT 1`, userID, "chat-"+now.Format("2006-01-02")+"%"))
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	return conv, err
}

// ClearToday deletes today's conversations for the user.
func (s *Store) ClearToday(userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM conversations WHERE user_id = ? AND session_id LIKE ?`,
		userID, "chat-"+now.Format("2006-01-02")+"%")
	if err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

// AppendExchange persists one user/assistant exchange and replaces the
// conversation's last findings with this turn's findings.
func (s *Store) AppendExchange(sessionID, userMessage, assistantResponse string, agentSources []string, findings map[string][]insight.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.scanConversation(s.db.QueryRow(`
		SELECT id, user_id, session_id, messages, last_findings, created_at, updated_at
		FROM conversations WHERE session_id = ?`, sessionID))
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	snapshot, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings snapshot: %w", err)
	}
	if agentSources == nil {
		agentSources = []string{}
	}

	messages := append(conv.Messages,
		Message{Role: "user", Content: userMessage, Timestamp: now, AgentSources: []string{}},
		Message{Role: "assistant", Content: assistantResponse, Timestamp: now,
			AgentSources: agentSources, FindingsSnapshot: snapshot},
	)
	msgJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE conversations
		SET messages = ?, last_findings = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(msgJSON), string(snapshot), conv.ID)
	if err != nil {
		return fmt.Errorf("failed to persist exchange: %w", err)
	}
	return nil
}

func (s *Store) scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var msgJSON, findingsJSON string
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &msgJSON, &findingsJSON, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(msgJSON), &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(findingsJSON), &c.LastFindings); err != nil {
		return nil, fmt.Errorf("failed to decode last findings: %w", err)
	}
	return &c, nil
}
