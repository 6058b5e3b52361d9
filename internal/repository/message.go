package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_role, content, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.RoomID, m.SenderID, m.SenderRole, m.Content, m.IsRead, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

// GetRoomMessages возвращает страницу истории комнаты, новые первыми
// (клиент сам разворачивает в хронологический порядок).
func (r *MessageRepository) GetRoomMessages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetRoomMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.room_id, m.sender_id, m.sender_role, m.content, m.is_read, m.created_at,
		        u.id, u.username, u.role, u.avatar_url, COALESCE(u.city,''), u.is_online, u.last_seen_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.room_id = $1
		 ORDER BY m.created_at DESC
		 LIMIT $2 OFFSET $3`, roomID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetRoomMessages query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		sender := &model.UserPublic{}
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderRole, &m.Content, &m.IsRead, &m.CreatedAt,
			&sender.ID, &sender.Username, &sender.Role, &sender.AvatarURL, &sender.City, &sender.IsOnline, &sender.LastSeenAt); err != nil {
			return nil, fmt.Errorf("msgRepo.GetRoomMessages scan: %w", err)
		}
		m.Sender = sender
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.GetRoomMessages rows: %w", err)
	}
	return messages, nil
}

// MarkReadBefore помечает чужие сообщения комнаты прочитанными (флаг в
// самих сообщениях; счётчик непрочитанных считается по last_read_at участника).
func (r *MessageRepository) MarkReadBefore(ctx context.Context, roomID, readerID string, before time.Time) error {
	defer logger.DeferLogDuration("msg.MarkReadBefore", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_read = true
		 WHERE room_id = $1 AND sender_id <> $2 AND created_at <= $3 AND is_read = false`,
		roomID, readerID, before,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkReadBefore: %w", err)
	}
	return nil
}
