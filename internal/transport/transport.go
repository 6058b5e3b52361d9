// Package transport provides the publish/subscribe connection used for
// realtime push delivery. One connection multiplexes any number of topics;
// inbound message frames are dispatched to the handler registered for their
// topic. Reconnection policy (if any) belongs to the caller: the transport
// only reports the last known connection state.
package transport

import (
	"context"
	"encoding/json"
)

// Хэндлер вызывается из read loop соединения — не блокировать надолго.
type HandlerFunc func(payload []byte)

type Transport interface {
	// Connect establishes the connection. It may be called again after a
	// failed attempt or after Disconnect.
	Connect(ctx context.Context) error
	// Subscribe registers fn for topic and announces the subscription to the
	// server. Subscribing to an already-subscribed topic replaces the handler
	// in place without a second wire subscription.
	Subscribe(topic string, fn HandlerFunc) error
	// Unsubscribe drops the topic handler and tells the server.
	Unsubscribe(topic string) error
	// Publish sends payload to topic.
	Publish(topic string, payload any) error
	// Connected reports the last known connection state.
	Connected() bool
	// Disconnect closes the connection and drops every handler. Safe to call
	// at any time, including before Connect.
	Disconnect()
}

type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePublish     FrameType = "publish"
	FrameMessage     FrameType = "message"
	FrameError       FrameType = "error"
)

// Frame is the wire envelope: every frame carries a type, a topic and an
// opaque payload.
type Frame struct {
	Type    FrameType       `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnnounceTopic — контрольный топик: после подключения клиент публикует
// {user_id, user_role}, чтобы сервер привязал соединение к сессии.
const AnnounceTopic = "app/announce"

const roomTopicPrefix = "topic/chat/"

// RoomTopic returns the inbound delivery topic for a room.
func RoomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}

// RoomFromTopic extracts the room id from a room topic, "" if not one.
func RoomFromTopic(topic string) string {
	if len(topic) > len(roomTopicPrefix) && topic[:len(roomTopicPrefix)] == roomTopicPrefix {
		return topic[len(roomTopicPrefix):]
	}
	return ""
}

// Announce is the payload published on AnnounceTopic right after connecting.
type Announce struct {
	UserID   string `json:"user_id"`
	UserRole string `json:"user_role"`
}
