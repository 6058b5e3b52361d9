package realtime

import (
	"context"

	"github.com/marketchat/internal/model"
)

type DeliveryState string

const (
	// DeliveryPending — оптимистичная запись: показана в UI, сервером ещё
	// не подтверждена. Идентификатор — временный, локальный.
	DeliveryPending DeliveryState = "pending"
	// DeliveryConfirmed — авторитетная серверная копия.
	DeliveryConfirmed DeliveryState = "confirmed"
)

// Message is a timeline entry: the server message plus its local delivery
// state. While pending, ID holds a locally generated temporary id.
type Message struct {
	model.Message
	DeliveryState DeliveryState `json:"delivery_state"`
}

// MessageHandler получает входящее сообщение комнаты. Вызывается из цикла
// доставки транспорта — не блокировать надолго.
type MessageHandler func(msg Message, roomID string)

// Directory is the request/response side of the backend the client consumes:
// room listing, history, sends and read marks all go over REST, the pub/sub
// transport is receive-only.
type Directory interface {
	ListRooms(ctx context.Context) ([]model.RoomSummary, error)
	Messages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error)
	SendMessage(ctx context.Context, roomID, content string) (*model.Message, error)
	MarkRead(ctx context.Context, roomID string) error
}
