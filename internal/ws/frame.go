package ws

import "encoding/json"

type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePublish     FrameType = "publish"
	FrameMessage     FrameType = "message"
	FrameError       FrameType = "error"
)

// Frame — кадр мультиплексированного канала. Topic маршрутизирует кадр,
// payload — произвольный JSON (модель сообщения для topic/chat/*,
// Announce для app/announce).
type Frame struct {
	Type    FrameType       `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnnounceTopic — служебный топик: первым кадром клиент объявляет себя.
const AnnounceTopic = "app/announce"

const roomTopicPrefix = "topic/chat/"

// RoomTopic строит имя топика комнаты.
func RoomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}

// RoomFromTopic возвращает roomID, если topic — топик комнаты.
func RoomFromTopic(topic string) (string, bool) {
	if len(topic) > len(roomTopicPrefix) && topic[:len(roomTopicPrefix)] == roomTopicPrefix {
		return topic[len(roomTopicPrefix):], true
	}
	return "", false
}

// Announce — payload первого кадра клиента в app/announce.
type Announce struct {
	UserID   string `json:"user_id"`
	UserRole string `json:"user_role"`
}

func errorFrame(msg string) Frame {
	raw, _ := json.Marshal(msg)
	return Frame{Type: FrameError, Payload: raw}
}
