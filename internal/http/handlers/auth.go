package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/skillforge/server/internal/auth"
	"github.com/skillforge/server/internal/middleware"
	"github.com/skillforge/server/internal/model"
	"github.com/skillforge/server/internal/repo"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is the JSON response carrying a token pair
type tokenResponse struct {
	SessionID        string `json:"session_id"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{
		SessionID:        pair.SessionID.String(),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
	}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidPassword):
			respondWithError(w, http.StatusBadRequest, "invalid password")
		case errors.Is(err, repo.ErrDuplicate):
			respondWithError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, repo.ErrUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			log.Printf("register failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, userResponse{ID: user.ID.String(), Email: user.Email})
}

// HandleLogin handles POST /auth/login. Unknown email and wrong password get
// the same response.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	meta := model.SessionMetadata{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}

	pair, err := h.authService.Login(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, repo.ErrUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			log.Printf("login failed for %s: %v", maskEmail(req.Email), err)
			respondWithError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, newTokenResponse(pair))
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			// Expired, bad signature, wrong class, revoked session: the
			// client re-authenticates either way.
			respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, newTokenResponse(pair))
}

// logoutRequest is the request body for POST /auth/logout
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout handles POST /auth/logout. Logging out twice succeeds.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, repo.ErrUnavailable) {
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		log.Printf("logout failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// changePasswordRequest is the request body for POST /auth/password
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword handles POST /auth/password (protected). All sessions
// of the user are revoked on success; clients must log in again.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.authService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, auth.ErrInvalidPassword):
			respondWithError(w, http.StatusBadRequest, "invalid password")
		case errors.Is(err, repo.ErrUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			log.Printf("password change failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "password change failed")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// sessionResponse is one session in GET /auth/sessions
type sessionResponse struct {
	ID         string `json:"id"`
	UserAgent  string `json:"user_agent,omitempty"`
	IP         string `json:"ip,omitempty"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	LastUsedAt string `json:"last_used_at"`
	Current    bool   `json:"current"`
}

// HandleSessions handles GET /auth/sessions (protected). Lists the caller's
// live sessions.
func (h *AuthHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currentID, _ := middleware.GetSessionID(r.Context())

	sessions, err := h.authService.ListSessions(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrUnavailable) {
			respondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		log.Printf("list sessions failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, sessionResponse{
			ID:         s.ID.String(),
			UserAgent:  s.UserAgent,
			IP:         s.IP,
			CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
			ExpiresAt:  s.ExpiresAt.UTC().Format(time.RFC3339),
			LastUsedAt: s.LastUsedAt.UTC().Format(time.RFC3339),
			Current:    s.ID == currentID,
		})
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"sessions": result})
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"id": userID.String()})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	return r.RemoteAddr
}

// maskEmail masks an email for logging (e.g. al***@example.com)
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 2 {
		return "***"
	}
	return email[:2] + "***" + email[at:]
}
