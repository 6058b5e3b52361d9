// Package realtime owns the live side of the chat: one transport connection,
// multiplexed per-room subscriptions, reconciliation of optimistic sends
// against server-confirmed messages, and per-room unread/last-activity
// summaries for the room list and the open conversation.
package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/session"
	"github.com/marketchat/internal/transport"
)

// Client is the realtime messaging client. One explicitly-owned instance per
// tab/process; construct with New, release with Disconnect. All methods are
// safe for concurrent use.
type Client struct {
	identity session.Identity
	tr       transport.Transport
	dir      Directory

	mu         sync.Mutex
	connected  bool
	subs       map[string]MessageHandler // roomID -> room-specific handler (may be nil)
	global     MessageHandler
	rooms      map[string]*roomState
	activeRoom string
}

// roomState — всё локальное состояние одной комнаты. Владелец — один Client,
// доступ только под c.mu.
type roomState struct {
	summary  model.RoomSummary
	timeline []Message
}

// New создаёт клиент для сессии identity. Транспорт и каталог внедряются
// явно — никакого глобального синглтона, тесты строят независимые инстансы.
func New(identity session.Identity, tr transport.Transport, dir Directory) *Client {
	return &Client{
		identity: identity,
		tr:       tr,
		dir:      dir,
		subs:     make(map[string]MessageHandler),
		rooms:    make(map[string]*roomState),
	}
}

// Identity returns the account this client was constructed for.
func (c *Client) Identity() session.Identity { return c.identity }

// Connect opens the transport and announces the session identity so the
// server can bind the connection. On error nothing is left half-connected
// and Connect may simply be called again.
func (c *Client) Connect(ctx context.Context) error {
	if !c.identity.Valid() {
		return &ConnectionError{Err: session.ErrIdentityMismatch}
	}
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.tr.Connect(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	announce := transport.Announce{
		UserID:   c.identity.UserID,
		UserRole: string(c.identity.Role),
	}
	if err := c.tr.Publish(transport.AnnounceTopic, announce); err != nil {
		c.tr.Disconnect()
		return &ConnectionError{Err: err}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Connected reports the last known connection state. Transport-level drops
// are reflected here but never trigger an automatic reconnect.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.tr.Connected()
}

// Disconnect unsubscribes every room, clears all internal maps and closes
// the transport. Safe to call at any time, including when never connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.subs = make(map[string]MessageHandler)
	c.global = nil
	c.rooms = make(map[string]*roomState)
	c.activeRoom = ""
	c.mu.Unlock()

	c.tr.Disconnect()
}

// LoadRooms rehydrates room summaries from the directory. Existing local
// unread counters survive only for rooms the server still reports.
func (c *Client) LoadRooms(ctx context.Context) ([]model.RoomSummary, error) {
	summaries, err := c.dir.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, s := range summaries {
		rs := c.rooms[s.Room.ID]
		if rs == nil {
			rs = &roomState{}
			c.rooms[s.Room.ID] = rs
		}
		rs.summary = s
	}
	c.mu.Unlock()
	return summaries, nil
}

// LoadHistory replaces the room's confirmed timeline with a server history
// page (chronological order), keeping any still-pending local entries at the
// tail.
func (c *Client) LoadHistory(ctx context.Context, roomID string, limit, offset int) error {
	msgs, err := c.dir.Messages(ctx, roomID, limit, offset)
	if err != nil {
		return err
	}
	// Сервер отдаёт новые первыми; таймлайн храним в хронологическом порядке.
	timeline := make([]Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		timeline = append(timeline, Message{Message: msgs[i], DeliveryState: DeliveryConfirmed})
	}

	c.mu.Lock()
	rs := c.roomLocked(roomID)
	for _, m := range rs.timeline {
		if m.DeliveryState == DeliveryPending {
			timeline = append(timeline, m)
		}
	}
	rs.timeline = timeline
	c.mu.Unlock()
	return nil
}

// Rooms returns room summaries sorted by last activity, newest first.
func (c *Client) Rooms() []model.RoomSummary {
	c.mu.Lock()
	out := make([]model.RoomSummary, 0, len(c.rooms))
	for _, rs := range c.rooms {
		out = append(out, rs.summary)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastActivityAt, out[j].LastActivityAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out
}

// Room returns the summary for one room.
func (c *Client) Room(roomID string) (model.RoomSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[roomID]
	if !ok {
		return model.RoomSummary{}, false
	}
	return rs.summary, true
}

// Timeline returns a copy of the room's message sequence in the order the
// entries were applied (delivery order; no reorder buffer).
func (c *Client) Timeline(roomID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Message, len(rs.timeline))
	copy(out, rs.timeline)
	return out
}

// ActiveRoom returns the currently open conversation, "" for none.
func (c *Client) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoom
}

// SetActiveRoom marks roomID as the open conversation and optimistically
// zeroes its unread counter, independent of server confirmation. Pass "" when
// the user returns to the room list.
func (c *Client) SetActiveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeRoom = roomID
	if roomID == "" {
		return
	}
	c.roomLocked(roomID).summary.UnreadCount = 0
}

// MarkRoomRead zeroes the local unread counter immediately and tells the
// server to clear the room's unread state.
func (c *Client) MarkRoomRead(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.roomLocked(roomID).summary.UnreadCount = 0
	c.mu.Unlock()

	if err := c.dir.MarkRead(ctx, roomID); err != nil {
		return err
	}
	return nil
}

// roomLocked returns the room state, creating it on first touch. Caller
// holds c.mu.
func (c *Client) roomLocked(roomID string) *roomState {
	rs := c.rooms[roomID]
	if rs == nil {
		rs = &roomState{summary: model.RoomSummary{Room: model.Room{ID: roomID}}}
		c.rooms[roomID] = rs
	}
	return rs
}

func touchSummary(rs *roomState, content string, at time.Time) {
	rs.summary.LastMessage = content
	t := at
	rs.summary.LastActivityAt = &t
}

var errNotConnected = errors.New("realtime: not connected")

func (c *Client) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errNotConnected
	}
	return nil
}

func logSubErr(err *SubscriptionError) {
	// Тихая деградация: комната без realtime-обновлений до следующего
	// полного SubscribeAll.
	logger.Errorf("%v", err)
}
