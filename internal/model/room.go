package model

import "time"

// Room — персональный канал заказчик↔исполнитель. На пару участников
// существует не более одной комнаты (create-or-get на сервере).
type Room struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	WorkerID   string    `json:"worker_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type RoomMember struct {
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Role       UserRole  `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
	LastReadAt time.Time `json:"last_read_at"`
}

// RoomSummary is what the room list renders: the room, the other
// participant, a cached preview of the newest message and the unread count.
type RoomSummary struct {
	Room           Room        `json:"room"`
	Peer           UserPublic  `json:"peer"`
	LastMessage    string      `json:"last_message,omitempty"`
	LastActivityAt *time.Time  `json:"last_activity_at,omitempty"`
	UnreadCount    int         `json:"unread_count"`
}

// Other returns the participant id opposite to userID.
func (r *Room) Other(userID string) string {
	if r.CustomerID == userID {
		return r.WorkerID
	}
	return r.CustomerID
}

// Has reports whether userID is one of the two participants.
func (r *Room) Has(userID string) bool {
	return r.CustomerID == userID || r.WorkerID == userID
}
