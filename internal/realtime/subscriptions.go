package realtime

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/transport"
)

// SubscribeAll establishes one subscription per room that is not already
// subscribed and records onMessage as the single global handler invoked for
// every room's inbound message. Idempotent per room: calling again with an
// already-subscribed room updates only its specific handler and never creates
// a second subscription (a duplicate would double-deliver every message).
// Per-room failures are logged and degrade that room only.
func (c *Client) SubscribeAll(roomIDs []string, onMessage MessageHandler) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	c.mu.Lock()
	c.global = onMessage
	c.mu.Unlock()

	for _, roomID := range roomIDs {
		if err := c.subscribeRoom(roomID, nil); err != nil {
			var subErr *SubscriptionError
			if errors.As(err, &subErr) {
				logSubErr(subErr)
				continue
			}
			return err
		}
	}
	return nil
}

// SubscribeRoom subscribes a single room (used when a brand-new room appears
// after the initial bulk subscribe). Already-subscribed rooms only get their
// handler replaced.
func (c *Client) SubscribeRoom(roomID string, handler MessageHandler) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	return c.subscribeRoom(roomID, handler)
}

// UpdateRoomHandler replaces the room-specific callback without touching the
// subscription itself. No-op if the room has no active subscription.
func (c *Client) UpdateRoomHandler(roomID string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[roomID]; !ok {
		return
	}
	c.subs[roomID] = handler
}

func (c *Client) subscribeRoom(roomID string, handler MessageHandler) error {
	c.mu.Lock()
	if _, ok := c.subs[roomID]; ok {
		// Уже подписаны — заменяем только хэндлер, вторая подписка дала бы
		// двойную доставку каждого сообщения.
		if handler != nil {
			c.subs[roomID] = handler
		}
		c.mu.Unlock()
		return nil
	}
	c.subs[roomID] = handler
	c.roomLocked(roomID)
	c.mu.Unlock()

	id := roomID
	err := c.tr.Subscribe(transport.RoomTopic(roomID), func(payload []byte) {
		c.handleInbound(id, payload)
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, roomID)
		c.mu.Unlock()
		return &SubscriptionError{RoomID: roomID, Err: err}
	}
	return nil
}

// handleInbound applies one delivered frame to the room it is tagged with.
// A malformed payload is dropped and logged; it must never break delivery
// for other rooms.
func (c *Client) handleInbound(roomID string, payload []byte) {
	var m model.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		logger.Errorf("realtime: malformed message for room %s dropped: %v", roomID, err)
		return
	}
	// Кадр применяется только к своей комнате: topic — источник истины.
	m.RoomID = roomID

	c.mu.Lock()
	rs := c.roomLocked(roomID)

	// Exists-by-id: эхо уже применено (reconcile после REST-ответа или
	// повторная доставка) — не дублируем запись.
	if m.ID != "" && hasMessageID(rs.timeline, m.ID) {
		c.mu.Unlock()
		return
	}

	var entry Message
	if m.SenderID == c.identity.UserID {
		// Своё эхо: заменяем оптимистичную запись на серверную копию.
		if i := matchPending(rs.timeline, m.SenderID, m.Content); i >= 0 {
			rs.timeline[i] = Message{Message: m, DeliveryState: DeliveryConfirmed}
			entry = rs.timeline[i]
		} else {
			entry = Message{Message: m, DeliveryState: DeliveryConfirmed}
			rs.timeline = append(rs.timeline, entry)
		}
	} else {
		entry = Message{Message: m, DeliveryState: DeliveryConfirmed}
		rs.timeline = append(rs.timeline, entry)
	}

	touchSummary(rs, m.Content, m.CreatedAt)
	switch {
	case roomID == c.activeRoom:
		// Открытая комната: пользователь видит сообщение.
		rs.summary.UnreadCount = 0
	case m.SenderID != c.identity.UserID:
		rs.summary.UnreadCount++
	}

	global := c.global
	specific := c.subs[roomID]
	c.mu.Unlock()

	// Fan-out вне блокировки: глобальный хэндлер, затем комнатный.
	if global != nil {
		global(entry, roomID)
	}
	if specific != nil {
		specific(entry, roomID)
	}
}

func hasMessageID(timeline []Message, id string) bool {
	for i := range timeline {
		if timeline[i].ID == id && timeline[i].DeliveryState == DeliveryConfirmed {
			return true
		}
	}
	return false
}

// matchPending находит первую оптимистичную запись с тем же отправителем и
// точным (после TrimSpace) текстом. Correlation id через транспорт не
// проходит, поэтому два одинаковых неподтверждённых текста могут совпасть
// «не с той» записью — известное ограничение эвристики.
func matchPending(timeline []Message, senderID, content string) int {
	want := strings.TrimSpace(content)
	for i := range timeline {
		if timeline[i].DeliveryState == DeliveryPending &&
			timeline[i].SenderID == senderID &&
			strings.TrimSpace(timeline[i].Content) == want {
			return i
		}
	}
	return -1
}
