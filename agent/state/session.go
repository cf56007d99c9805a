package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentRecord is one routing decision, kept so later turns can bias
// classification toward the running topic.
type IntentRecord struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Turn       int       `json:"turn"`
	DecidedAt  time.Time `json:"decided_at"`
}

// SearchStatus tracks one active capability invocation by fingerprint.
type SearchStatus string

const (
	SearchInFlight SearchStatus = "in_flight"
	SearchDone     SearchStatus = "done"
	SearchFailed   SearchStatus = "failed"
)

// ErrorContext survives a failed turn so Recovering in a later turn can
// reference what went wrong.
type ErrorContext struct {
	Kind    contractx.ErrorKind `json:"kind"`
	Message string              `json:"message"`
	Turn    int                 `json:"turn"`
}

// ConversationState is the per-session state the orchestration graph owns.
// Exactly one running turn mutates it; it is checkpointed after each state
// transition and persists across turns.
type ConversationState struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`

	Messages       []Message                 `json:"messages,omitempty"`
	IntentHistory  []IntentRecord            `json:"intent_history,omitempty"`
	ActiveSearches map[string]SearchStatus   `json:"active_searches,omitempty"`
	PendingMemory  []contractx.RecordPayload `json:"pending_memory,omitempty"`
	LastError      *ErrorContext             `json:"last_error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrStateNotFound  = errors.New("conversation state not found")
	ErrNilState       = errors.New("conversation state is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID:      sessionID,
		ActiveSearches: make(map[string]SearchStatus, 4),
		UpdatedAt:      now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *ConversationState) AppendMessage(role Role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   strings.TrimSpace(content),
		Timestamp: now.UTC(),
	})
	s.Touch(now)
}

// LatestUserMessage returns the most recent user message content.
func (s *ConversationState) LatestUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

func (s *ConversationState) RecordIntent(intent string, confidence float64, now time.Time) {
	s.IntentHistory = append(s.IntentHistory, IntentRecord{
		Intent:     intent,
		Confidence: confidence,
		Turn:       s.Turn,
		DecidedAt:  now.UTC(),
	})
	s.Touch(now)
}

// LastIntent returns the most recent routed intent, if any.
func (s *ConversationState) LastIntent() (IntentRecord, bool) {
	if len(s.IntentHistory) == 0 {
		return IntentRecord{}, false
	}
	return s.IntentHistory[len(s.IntentHistory)-1], true
}

func (s *ConversationState) ensureSearches() {
	if s.ActiveSearches == nil {
		s.ActiveSearches = make(map[string]SearchStatus, 4)
	}
}

func (s *ConversationState) BeginSearch(fingerprint string) {
	s.ensureSearches()
	s.ActiveSearches[fingerprint] = SearchInFlight
}

func (s *ConversationState) FinishSearch(fingerprint string, ok bool) {
	s.ensureSearches()
	if ok {
		s.ActiveSearches[fingerprint] = SearchDone
	} else {
		s.ActiveSearches[fingerprint] = SearchFailed
	}
}

// ClearSearches drops finished search markers at the end of a turn.
func (s *ConversationState) ClearSearches() {
	s.ActiveSearches = make(map[string]SearchStatus, 4)
}

func (s *ConversationState) QueueMemoryUpdate(payload contractx.RecordPayload) {
	s.PendingMemory = append(s.PendingMemory, payload)
}

// DrainMemoryUpdates hands the pending queue to the caller and empties it.
func (s *ConversationState) DrainMemoryUpdates() []contractx.RecordPayload {
	pending := s.PendingMemory
	s.PendingMemory = nil
	return pending
}

func (s *ConversationState) SetError(kind contractx.ErrorKind, message string) {
	s.LastError = &ErrorContext{Kind: kind, Message: message, Turn: s.Turn}
}

func (s *ConversationState) ClearError() {
	s.LastError = nil
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if s.Turn < 0 {
		return fmt.Errorf("turn counter is negative: %d", s.Turn)
	}
	for fp, status := range s.ActiveSearches {
		switch status {
		case SearchInFlight, SearchDone, SearchFailed:
		default:
			return fmt.Errorf("unknown search status %q for fingerprint %s", status, fp)
		}
	}
	return nil
}
