package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ombra/auth"
	"ombra/models"

	"go.uber.org/zap"
)

// AccountStore is the persistence surface the auth handler needs.
type AccountStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

type AuthHandler struct {
	accounts   AccountStore
	jwtManager *auth.JWTManager
	logger     *zap.SugaredLogger
}

func NewAuthHandler(accounts AccountStore, jwtManager *auth.JWTManager, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// Login handles user authentication
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.accounts.GetUserByUsername(ctx, req.Username)
	if err != nil {
		h.logger.Infow("login failed: user not found", "username", req.Username)
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	passwordHash, err := h.accounts.GetPasswordHash(ctx, user.UserID)
	if err != nil {
		h.logger.Infow("login failed: password hash not found", "username", req.Username)
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := auth.CheckPassword(req.Password, passwordHash); err != nil {
		h.logger.Infow("login failed: invalid password", "username", req.Username)
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	user.LastLogin = time.Now()
	if err := h.accounts.UpdateUser(ctx, user); err != nil {
		h.logger.Warnw("failed to update last login", "username", req.Username, "error", err)
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Errorw("failed to generate token", "username", req.Username, "error", err)
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.jwtManager.GenerateRefreshToken(user)
	if err != nil {
		h.logger.Errorw("failed to generate refresh token", "username", req.Username, "error", err)
		writeError(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	h.logger.Infow("user logged in", "username", user.Username, "role", user.Role)

	writeJSON(w, http.StatusOK, models.AuthResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         user,
	})
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken handles token refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil {
		writeError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	user, err := h.accounts.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, "User not found", http.StatusUnauthorized)
		return
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Errorw("failed to generate token", "username", user.Username, "error", err)
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
