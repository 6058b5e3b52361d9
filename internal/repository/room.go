package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	room := &model.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, worker_id, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.CustomerID, &room.WorkerID, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return room, nil
}

// FindByPair ищет комнату пары участников независимо от того, кто её создал.
func (r *RoomRepository) FindByPair(ctx context.Context, userID1, userID2 string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.FindByPair", time.Now())()
	room := &model.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, worker_id, created_at
		 FROM rooms
		 WHERE (customer_id = $1 AND worker_id = $2) OR (customer_id = $2 AND worker_id = $1)`,
		userID1, userID2,
	).Scan(&room.ID, &room.CustomerID, &room.WorkerID, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.FindByPair: %w", err)
	}
	return room, nil
}

// GetOrCreate возвращает комнату пары заказчик↔исполнитель, создавая её при
// первом обращении вместе с записями в room_members. На пару — не более
// одной комнаты.
func (r *RoomRepository) GetOrCreate(ctx context.Context, customer, worker *model.User) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetOrCreate", time.Now())()
	room, err := r.FindByPair(ctx, customer.ID, worker.ID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetOrCreate begin: %w", err)
	}
	defer tx.Rollback(ctx)

	room = &model.Room{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		WorkerID:   worker.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO rooms (id, customer_id, worker_id, created_at) VALUES ($1, $2, $3, $4)`,
		room.ID, room.CustomerID, room.WorkerID, room.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("roomRepo.GetOrCreate insert room: %w", err)
	}
	for _, u := range []*model.User{customer, worker} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_members (room_id, user_id, role, joined_at, last_read_at)
			 VALUES ($1, $2, $3, $4, $4) ON CONFLICT DO NOTHING`,
			room.ID, u.ID, u.Role, room.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("roomRepo.GetOrCreate insert member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("roomRepo.GetOrCreate commit: %w", err)
	}
	return room, nil
}

func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	defer logger.DeferLogDuration("room.IsMember", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("roomRepo.IsMember: %w", err)
	}
	return exists, nil
}

// MarkRead сдвигает last_read_at участника на текущий момент — все сообщения
// комнаты до него считаются прочитанными.
func (r *RoomRepository) MarkRead(ctx context.Context, roomID, userID string) error {
	defer logger.DeferLogDuration("room.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE room_members SET last_read_at = now() WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.MarkRead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSummaries возвращает комнаты пользователя с собеседником, превью
// последнего сообщения и счётчиком непрочитанных (чужие сообщения новее
// last_read_at). Сортировка — по последней активности.
func (r *RoomRepository) ListSummaries(ctx context.Context, userID string) ([]model.RoomSummary, error) {
	defer logger.DeferLogDuration("room.ListSummaries", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.customer_id, r.worker_id, r.created_at,
		        u.id, u.username, u.role, u.avatar_url, COALESCE(u.city,''), u.is_online, u.last_seen_at,
		        COALESCE(lm.content, ''), lm.created_at,
		        (SELECT COUNT(*) FROM messages m
		          WHERE m.room_id = r.id AND m.sender_id <> $1 AND m.created_at > rm.last_read_at)
		 FROM rooms r
		 JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = $1
		 JOIN users u ON u.id = CASE WHEN r.customer_id = $1 THEN r.worker_id ELSE r.customer_id END
		 LEFT JOIN LATERAL (
		   SELECT content, created_at FROM messages
		   WHERE room_id = r.id ORDER BY created_at DESC LIMIT 1
		 ) lm ON true
		 ORDER BY COALESCE(lm.created_at, r.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListSummaries query: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.RoomSummary, 0, 16)
	for rows.Next() {
		var s model.RoomSummary
		var lastAt *time.Time
		if err := rows.Scan(
			&s.Room.ID, &s.Room.CustomerID, &s.Room.WorkerID, &s.Room.CreatedAt,
			&s.Peer.ID, &s.Peer.Username, &s.Peer.Role, &s.Peer.AvatarURL, &s.Peer.City, &s.Peer.IsOnline, &s.Peer.LastSeenAt,
			&s.LastMessage, &lastAt,
			&s.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("roomRepo.ListSummaries scan: %w", err)
		}
		s.LastActivityAt = lastAt
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListSummaries rows: %w", err)
	}
	return summaries, nil
}

// Summary — то же, что ListSummaries, но для одной комнаты (ответ create-or-get).
func (r *RoomRepository) Summary(ctx context.Context, roomID, userID string) (*model.RoomSummary, error) {
	defer logger.DeferLogDuration("room.Summary", time.Now())()
	s := &model.RoomSummary{}
	var lastAt *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT r.id, r.customer_id, r.worker_id, r.created_at,
		        u.id, u.username, u.role, u.avatar_url, COALESCE(u.city,''), u.is_online, u.last_seen_at,
		        COALESCE(lm.content, ''), lm.created_at,
		        (SELECT COUNT(*) FROM messages m
		          WHERE m.room_id = r.id AND m.sender_id <> $2 AND m.created_at > rm.last_read_at)
		 FROM rooms r
		 JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = $2
		 JOIN users u ON u.id = CASE WHEN r.customer_id = $2 THEN r.worker_id ELSE r.customer_id END
		 LEFT JOIN LATERAL (
		   SELECT content, created_at FROM messages
		   WHERE room_id = r.id ORDER BY created_at DESC LIMIT 1
		 ) lm ON true
		 WHERE r.id = $1`,
		roomID, userID,
	).Scan(
		&s.Room.ID, &s.Room.CustomerID, &s.Room.WorkerID, &s.Room.CreatedAt,
		&s.Peer.ID, &s.Peer.Username, &s.Peer.Role, &s.Peer.AvatarURL, &s.Peer.City, &s.Peer.IsOnline, &s.Peer.LastSeenAt,
		&s.LastMessage, &lastAt,
		&s.UnreadCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Summary: %w", err)
	}
	s.LastActivityAt = lastAt
	return s, nil
}
