package handler

import (
	"net/http"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/middleware"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/repository"
)

const contactsLimit = 200

type UserHandler struct {
	userRepo *repository.UserRepository
}

func NewUserHandler(userRepo *repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// Contacts возвращает пользователей, с которыми можно начать чат:
// заказчику — исполнителей, исполнителю — заказчиков.
func (h *UserHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	role := middleware.GetUserRole(r.Context())

	users, err := h.userRepo.ListContacts(r.Context(), role, contactsLimit)
	if err != nil {
		logger.Errorf("contacts user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}

	pub := make([]model.UserPublic, 0, len(users))
	for i := range users {
		if users[i].ID == userID {
			continue
		}
		pub = append(pub, users[i].ToPublic())
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": pub})
}

// Me возвращает профиль текущего пользователя.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user.ToPublic(), "role": user.Role})
}
