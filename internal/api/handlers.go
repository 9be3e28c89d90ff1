package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleJoin starts a new session or resumes the player's unfinished one
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.game.Join(r.Context(), req.Name, req.RollNumber)
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleAnswer validates a path choice at the player's next junction
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.errorHandler.HandleValidationError(w, r, "sessionId", "sessionId is required")
		return
	}
	if req.NodeID == "" {
		s.errorHandler.HandleValidationError(w, r, "nodeId", "nodeId is required")
		return
	}
	if req.ChosenPath == nil {
		s.errorHandler.HandleValidationError(w, r, "chosenPath", "chosenPath is required")
		return
	}
	if req.TimeTaken < 0 {
		s.errorHandler.HandleValidationError(w, r, "timeTaken", "timeTaken must not be negative")
		return
	}

	res, err := s.game.Answer(r.Context(), req.SessionID, req.NodeID, *req.ChosenPath, req.TimeTaken)
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTabSwitch(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.errorHandler.HandleValidationError(w, r, "sessionId", "sessionId is required")
		return
	}

	if err := s.game.TabSwitch(r.Context(), req.SessionID); err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.game.Leaderboard(r.Context())
	if err != nil {
		s.errorHandler.HandleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, board)
}
