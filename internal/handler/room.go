package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/middleware"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/repository"
)

// roomStore — подмножество RoomRepository, нужное хэндлеру.
type roomStore interface {
	ListSummaries(ctx context.Context, userID string) ([]model.RoomSummary, error)
	GetOrCreate(ctx context.Context, customer, worker *model.User) (*model.Room, error)
	Summary(ctx context.Context, roomID, userID string) (*model.RoomSummary, error)
	MarkRead(ctx context.Context, roomID, userID string) error
}

type userGetter interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// messageReads помечает прочитанными сами сообщения; счётчик непрочитанных
// при этом ведётся по last_read_at участника.
type messageReads interface {
	MarkReadBefore(ctx context.Context, roomID, readerID string, before time.Time) error
}

type RoomHandler struct {
	roomRepo roomStore
	userRepo userGetter
	msgRepo  messageReads
}

func NewRoomHandler(roomRepo roomStore, userRepo userGetter, msgRepo messageReads) *RoomHandler {
	return &RoomHandler{roomRepo: roomRepo, userRepo: userRepo, msgRepo: msgRepo}
}

// List возвращает комнаты пользователя с превью и счётчиками непрочитанных.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rooms, err := h.roomRepo.ListSummaries(r.Context(), userID)
	if err != nil {
		logger.Errorf("rooms list user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"rooms": rooms})
}

type createRoomRequest struct {
	UserID string `json:"user_id"`
}

// CreateOrGet находит или создаёт комнату с указанным пользователем.
// Заказчик пишет исполнителю и наоборот; на пару — одна комната.
func (h *RoomHandler) CreateOrGet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.UserID == userID {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	me, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	other, err := h.userRepo.GetByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if other.DisabledAt != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	customer, worker := me, other
	if me.Role == model.RoleWorker {
		customer, worker = other, me
	}
	room, err := h.roomRepo.GetOrCreate(r.Context(), customer, worker)
	if err != nil {
		logger.Errorf("room create-or-get %s<->%s: %v", userID, req.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	summary, err := h.roomRepo.Summary(r.Context(), room.ID, userID)
	if err != nil {
		logger.Errorf("room summary room=%s: %v", room.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"room": summary})
}

// MarkRead сбрасывает непрочитанные в комнате для текущего пользователя:
// двигает last_read_at участника и помечает прочитанными сами сообщения.
func (h *RoomHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := middleware.GetUserID(r.Context())

	if err := h.roomRepo.MarkRead(r.Context(), roomID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusForbidden, "not a member")
			return
		}
		logger.Errorf("room mark read room=%s user=%s: %v", roomID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	if err := h.msgRepo.MarkReadBefore(r.Context(), roomID, userID, time.Now().UTC()); err != nil {
		logger.Errorf("room mark messages read room=%s user=%s: %v", roomID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
