package server

import (
	"net/http"
)

// loginRequest is the login form payload
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin verifies credentials against the upstream backend and, on
// success, persists the session through the guard
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	identity, err := s.client.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.log.Warn().Err(err).Str("username", req.Username).Msg("Login failed")
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.guard.Login(*identity); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist session")
		respondError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"username":      identity.Username,
	})
}

// handleLogout clears the session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Logout(); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear session")
		respondError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": false,
	})
}

// handleSession reports the current session state. Never a 401: the login
// view itself polls this.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user := s.guard.CurrentUser()
	if user == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"authenticated": false,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"username":      user.Username,
		"user_id":       user.UserID,
		"issued_at":     user.IssuedAt,
	})
}
