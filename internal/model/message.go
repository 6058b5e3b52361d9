package model

import "time"

type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"room_id"`
	SenderID   string      `json:"sender_id"`
	SenderRole UserRole    `json:"sender_role"`
	Content    string      `json:"content"`
	IsRead     bool        `json:"is_read"`
	CreatedAt  time.Time   `json:"created_at"`
	Sender     *UserPublic `json:"sender,omitempty"`
}
