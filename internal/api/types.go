package api

import (
	"encoding/json"

	"github.com/mindtrap/maze-server/internal/questions"
)

// APIError represents a structured error response with context
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidParams = "invalid_params"

	// Game-related errors
	ErrTypeSessionNotFound = "session_not_found"
	ErrTypeNodeNotFound    = "node_not_found"
	ErrTypeGameNotActive   = "game_not_active"
	ErrTypeEmptyPool       = "empty_question_pool"
	ErrTypeNotFound        = "not_found"
	ErrTypeConflict        = "conflict"

	// Access errors
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeForbidden    = "forbidden"
	ErrTypeRateLimit    = "rate_limit_exceeded"

	// System errors
	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryAccess     ErrorCategory = "access"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidParams:
		return CategoryValidation
	case ErrTypeSessionNotFound, ErrTypeNodeNotFound, ErrTypeGameNotActive,
		ErrTypeEmptyPool, ErrTypeNotFound, ErrTypeConflict:
		return CategoryGame
	case ErrTypeUnauthorized, ErrTypeForbidden, ErrTypeRateLimit:
		return CategoryAccess
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains server version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// JoinRequest starts or resumes a player session
type JoinRequest struct {
	Name       string `json:"name"`
	RollNumber string `json:"rollNumber"`
}

// AnswerRequest submits a path choice at a junction
type AnswerRequest struct {
	SessionID  string `json:"sessionId"`
	NodeID     string `json:"nodeId"`
	ChosenPath *int   `json:"chosenPath"`
	TimeTaken  int64  `json:"timeTaken"`
}

// SessionRequest names a session, for tab switches, kicks and winners
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// LoginRequest carries admin credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the admin bearer token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// PauseRequest pauses or resumes the game
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// CountResponse reports how many players an admin action touched
type CountResponse struct {
	Affected int64 `json:"affected"`
}

// QuestionRequest creates or replaces a question. Options may be plain
// strings or {"text","obfuscated"} objects; Active defaults to true.
type QuestionRequest struct {
	Text         string        `json:"text"`
	Options      []optionInput `json:"options"`
	CorrectIndex int           `json:"correctIndex"`
	Difficulty   int           `json:"difficulty"`
	Category     string        `json:"category"`
	Active       *bool         `json:"active"`
}

// Record converts the request to a question record.
func (q QuestionRequest) Record() questions.Record {
	rec := questions.Record{
		Text:         q.Text,
		CorrectIndex: q.CorrectIndex,
		Difficulty:   q.Difficulty,
		Category:     questions.Category(q.Category),
		Active:       q.Active == nil || *q.Active,
	}
	for _, o := range q.Options {
		rec.Options = append(rec.Options, questions.Option(o))
	}
	return rec
}

type optionInput questions.Option

func (o *optionInput) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*o = optionInput{Text: text}
		return nil
	}
	var full questions.Option
	if err := json.Unmarshal(b, &full); err != nil {
		return err
	}
	*o = optionInput(full)
	return nil
}
