package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/middleware"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/repository"
	"github.com/marketchat/internal/ws"
)

// PushNotifier отправляет пуш-уведомления. Если nil — пуши не отправляются.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type MessageHandler struct {
	msgRepo     *repository.MessageRepository
	roomRepo    *repository.RoomRepository
	userRepo    *repository.UserRepository
	hub         *ws.Hub
	push        PushNotifier
	pageSize    int
	maxPageSize int
}

func NewMessageHandler(
	msgRepo *repository.MessageRepository,
	roomRepo *repository.RoomRepository,
	userRepo *repository.UserRepository,
	hub *ws.Hub,
	push PushNotifier,
	pageSize, maxPageSize int,
) *MessageHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &MessageHandler{
		msgRepo:     msgRepo,
		roomRepo:    roomRepo,
		userRepo:    userRepo,
		hub:         hub,
		push:        push,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
	}
}

// List возвращает страницу истории комнаты, новые первыми.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := middleware.GetUserID(r.Context())

	isMember, err := h.roomRepo.IsMember(r.Context(), roomID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	limit := queryInt(r, "limit", h.pageSize)
	offset := queryInt(r, "offset", 0)
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	if limit <= 0 || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid paging")
		return
	}

	messages, err := h.msgRepo.GetRoomMessages(r.Context(), roomID, limit, offset)
	if err != nil {
		logger.Errorf("messages list room=%s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Send сохраняет сообщение, рассылает его в топик комнаты и шлёт пуш
// собеседнику, если тот не подключён. Сохранённое сообщение возвращается
// в ответе — клиент сверяет его со своей оптимистичной копией.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := middleware.GetUserID(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	room, err := h.roomRepo.GetByID(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if !room.Has(userID) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	sender, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	m := &model.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   userID,
		SenderRole: sender.Role,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.msgRepo.Create(r.Context(), m); err != nil {
		logger.Errorf("message save room=%s user=%s: %v", roomID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}
	pub := sender.ToPublic()
	m.Sender = &pub

	h.hub.PublishRoom(r.Context(), roomID, m)

	if h.push != nil {
		peerID := room.Other(userID)
		if !h.hub.IsOnline(peerID) {
			go h.push.Notify(context.Background(), peerID, sender.Username, truncateBody(content, pushBodyLimit),
				map[string]string{"room_id": roomID, "message_id": m.ID})
		}
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": m})
}

const pushBodyLimit = 120

// truncateBody укорачивает текст пуша по границе руны, чтобы не резать
// многобайтовые символы посередине.
func truncateBody(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
