package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindtrap/maze-server/internal/adminauth"
)

// handleLogin exchanges admin credentials for a bearer token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req LoginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	token, expires, err := s.auth.Login(req.Username, req.Password)
	if errors.Is(err, adminauth.ErrInvalidCredentials) {
		s.errorHandler.HandleAccessError(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.securityLogger.LogAuditEvent(requestID, "admin_login", "admin", "success", map[string]interface{}{
		"username": req.Username,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "adminToken",
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.game.Players(r.Context())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, players)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.errorHandler.HandleValidationError(w, r, "sessionId", "sessionId is required")
		return
	}

	if err := s.game.Kick(r.Context(), req.SessionID); err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "kick", "player", map[string]interface{}{"session_id": req.SessionID})
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	n, err := s.game.Pause(r.Context(), req.Paused)
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "pause", "game", map[string]interface{}{"paused": req.Paused, "affected": n})
	s.writeJSON(w, http.StatusOK, CountResponse{Affected: n})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.game.Reset(r.Context())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "reset", "game", map[string]interface{}{"affected": n})
	s.writeJSON(w, http.StatusOK, CountResponse{Affected: n})
}

// handleDeclareWinner announces the named player, or the leader when the
// body is empty
func (s *Server) handleDeclareWinner(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}

	winner, err := s.game.DeclareWinner(r.Context(), req.SessionID)
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "declare_winner", "game", map[string]interface{}{"session_id": winner.SessionID})
	s.writeJSON(w, http.StatusOK, winner)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.game.Stats(r.Context())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleMazePreview returns the full graph of a seed, answer key included
func (s *Server) handleMazePreview(w http.ResponseWriter, r *http.Request) {
	seed, err := strconv.ParseInt(chi.URLParam(r, "seed"), 10, 32)
	if err != nil || seed < 0 {
		s.errorHandler.HandleValidationError(w, r, "seed", "seed must be a non-negative 32-bit integer")
		return
	}
	s.writeJSON(w, http.StatusOK, s.game.MazePreview(int32(seed)))
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.game.Questions(r.Context())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, qs)
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	q, err := s.game.CreateQuestion(r.Context(), req.Record())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "create_question", "question", map[string]interface{}{"question_id": q.ID})
	s.writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")

	q, err := s.game.UpdateQuestion(r.Context(), id, req.Record())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "update_question", "question", map[string]interface{}{"question_id": id})
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.game.DeleteQuestion(r.Context(), id); err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "delete_question", "question", map[string]interface{}{"question_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadQuestions imports a multipart CSV sent in the "file" field
func (s *Server) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "file", "a CSV file is required")
		return
	}
	defer file.Close()

	res, err := s.game.ImportCSV(r.Context(), file)
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.audit(r, "import_questions", "question", map[string]interface{}{
		"imported": res.Imported,
		"skipped":  res.Skipped,
	})
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) audit(r *http.Request, action, resource string, details map[string]interface{}) {
	details["admin"] = adminName(r)
	s.securityLogger.LogAuditEvent(middleware.GetReqID(r.Context()), action, resource, "success", details)
}
