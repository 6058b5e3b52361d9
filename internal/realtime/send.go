package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketchat/internal/model"
)

var errEmptyContent = errors.New("empty content")

// Send appends a Pending entry to the room's timeline synchronously (before
// any network I/O) so the UI can render it immediately, then issues the send
// through the request/response channel. On success the pending entry is
// replaced in place by the server-confirmed message; on failure it is removed
// and a *SendError is returned — retry is manual, there is no backoff.
//
// Matching is by sender + exact trimmed content: two in-flight sends with
// identical text to the same room may reconcile against the wrong entry.
func (c *Client) Send(ctx context.Context, roomID, content string) (Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Message{}, &SendError{RoomID: roomID, Err: errEmptyContent}
	}

	pending := Message{
		Message: model.Message{
			ID:         uuid.New().String(), // временный локальный id
			RoomID:     roomID,
			SenderID:   c.identity.UserID,
			SenderRole: c.identity.Role,
			Content:    trimmed,
			CreatedAt:  time.Now().UTC(),
		},
		DeliveryState: DeliveryPending,
	}

	c.mu.Lock()
	rs := c.roomLocked(roomID)
	prevLast, prevAt := rs.summary.LastMessage, rs.summary.LastActivityAt
	rs.timeline = append(rs.timeline, pending)
	touchSummary(rs, trimmed, pending.CreatedAt)
	c.mu.Unlock()

	confirmed, err := c.dir.SendMessage(ctx, roomID, trimmed)
	if err != nil {
		c.rollbackPending(roomID, pending.ID, prevLast, prevAt)
		return Message{}, &SendError{RoomID: roomID, Err: err}
	}
	return c.confirmPending(roomID, pending.ID, *confirmed), nil
}

// rollbackPending откатывает оптимистичную запись и превью комнаты после
// неудачной отправки. Превью восстанавливается, только если его не успело
// перезаписать другое сообщение.
func (c *Client) rollbackPending(roomID, tempID, prevLast string, prevAt *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[roomID]
	if !ok {
		return
	}
	for i := range rs.timeline {
		if rs.timeline[i].ID == tempID && rs.timeline[i].DeliveryState == DeliveryPending {
			if rs.summary.LastMessage == rs.timeline[i].Content &&
				rs.summary.LastActivityAt != nil &&
				rs.summary.LastActivityAt.Equal(rs.timeline[i].CreatedAt) {
				rs.summary.LastMessage = prevLast
				rs.summary.LastActivityAt = prevAt
			}
			rs.timeline = append(rs.timeline[:i], rs.timeline[i+1:]...)
			return
		}
	}
}

// confirmPending replaces the optimistic entry with the authoritative server
// copy. If the subscription echo already reconciled it (or removed it), the
// confirmed message is deduplicated by id instead of appended twice.
func (c *Client) confirmPending(roomID, tempID string, m model.Message) Message {
	entry := Message{Message: m, DeliveryState: DeliveryConfirmed}

	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.roomLocked(roomID)

	if m.ID != "" && hasMessageID(rs.timeline, m.ID) {
		return entry
	}
	for i := range rs.timeline {
		if rs.timeline[i].ID == tempID && rs.timeline[i].DeliveryState == DeliveryPending {
			rs.timeline[i] = entry
			touchSummary(rs, m.Content, m.CreatedAt)
			return entry
		}
	}
	// Ни эхо, ни pending: запись успела исчезнуть (например, Disconnect
	// между отправкой и ответом) — добавляем серверную копию как есть.
	rs.timeline = append(rs.timeline, entry)
	touchSummary(rs, m.Content, m.CreatedAt)
	return entry
}
