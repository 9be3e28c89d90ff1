package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindtrap/maze-server/internal/adminauth"
	"github.com/mindtrap/maze-server/internal/game"
	"github.com/mindtrap/maze-server/internal/questions"
	"github.com/mindtrap/maze-server/internal/session"
	"github.com/mindtrap/maze-server/internal/store"
)

// writeJSONError writes JSON error response
func writeJSONError(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
	cause     error
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	eb.cause = err
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError
func (eb *ErrorBuilder) Build() APIError {
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger         *log.Logger
	securityLogger *SecurityLogger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger, securityLogger *SecurityLogger) *ErrorHandler {
	return &ErrorHandler{
		logger:         logger,
		securityLogger: securityLogger,
	}
}

// HandleError processes an error and writes appropriate HTTP response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, defaultStatus int) {
	requestID := middleware.GetReqID(r.Context())

	var apiErr APIError
	if errors.As(err, &apiErr) {
		eh.logError(r, apiErr, defaultStatus)
		eh.writeErrorResponse(w, defaultStatus, apiErr)
		return
	}

	apiErr = NewError(ErrTypeInternal, err.Error()).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, apiErr, defaultStatus)
	eh.writeErrorResponse(w, defaultStatus, apiErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.securityLogger.LogSecurityEvent(
		requestID,
		"validation_failure",
		message,
		map[string]interface{}{
			"field": field,
			"path":  r.URL.Path,
		},
		r.RemoteAddr,
	)

	eh.logError(r, apiErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, apiErr)
}

// HandleAccessError rejects a request for missing or bad credentials, a
// wrong role or an exhausted rate limit.
func (eh *ErrorHandler) HandleAccessError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := NewError(errType, message).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		Build()

	eh.securityLogger.LogSecurityEvent(
		requestID,
		errType,
		message,
		map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		},
		r.RemoteAddr,
	)

	eh.logError(r, apiErr, status)
	eh.writeErrorResponse(w, status, apiErr)
}

// HandleDomainError maps an error returned by the game service to a status
// and error type.
func (eh *ErrorHandler) HandleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	if status == http.StatusInternalServerError {
		eh.HandleError(w, r, err, status)
		return
	}

	apiErr := NewError(errType, err.Error()).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, apiErr, status)
	eh.writeErrorResponse(w, status, apiErr)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrInvalidInput), errors.Is(err, questions.ErrInvalidQuestion):
		return http.StatusBadRequest, ErrTypeValidation
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound, ErrTypeSessionNotFound
	case errors.Is(err, game.ErrWrongJunction):
		return http.StatusBadRequest, ErrTypeNodeNotFound
	case errors.Is(err, game.ErrNotActive):
		return http.StatusForbidden, ErrTypeGameNotActive
	case errors.Is(err, questions.ErrEmptyPool):
		return http.StatusServiceUnavailable, ErrTypeEmptyPool
	case errors.Is(err, game.ErrNoPlayers), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, session.ErrCleared):
		return http.StatusConflict, ErrTypeConflict
	case errors.Is(err, adminauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrTypeUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, apiErr APIError, status int) {
	category := GetErrorCategory(apiErr.Type)

	logLevel := "ERROR"
	if status < 500 {
		logLevel = "WARN"
	}

	logFields := map[string]interface{}{
		"remote_ip": r.RemoteAddr,
		"method":    r.Method,
	}
	for key, value := range apiErr.Context {
		// Seeds never reach the log, only their fingerprint
		if key == "seed" {
			continue
		}
		logFields[key] = value
	}

	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s path=%s message=%q context=%+v",
		logLevel, apiErr.Type, category, status, apiErr.RequestID, r.URL.Path, apiErr.Message, logFields,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Server-Version", Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(apiErr.Type)))
	w.WriteHeader(status)

	if err := writeJSONError(w, apiErr); err != nil {
		eh.logger.Printf("error_encode_failed type=%s error=%v", apiErr.Type, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				apiErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, apiErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
