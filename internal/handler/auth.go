package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/middleware"
	"github.com/marketchat/internal/repository"
	"github.com/marketchat/internal/storage"
)

type AuthHandler struct {
	userRepo *repository.UserRepository
	store    storage.SessionStore
}

func NewAuthHandler(userRepo *repository.UserRepository, store storage.SessionStore) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, store: store}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login проверяет пароль и выдаёт bearer-токен. Ответ для несуществующего
// пользователя и для неверного пароля одинаковый.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	allowed, err := h.store.CheckLoginRateLimit(r.Context(), req.Username)
	if err != nil {
		logger.Errorf("login rate limit check %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	user, err := h.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("login get user %s: %v", req.Username, err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.DisabledAt != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := uuid.NewString()
	if err := h.store.SetSession(r.Context(), token, user.ID); err != nil {
		logger.Errorf("login save session user=%s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user.ToPublic(),
		"role":  user.Role,
	})
}

// Logout отзывает токен текущей сессии.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetToken(r.Context())
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.store.DeleteSession(r.Context(), token); err != nil {
		logger.Errorf("logout delete session: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
