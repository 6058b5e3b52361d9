package storage

import (
	"context"
)

// SessionStore — хранилище bearer-токенов и rate limit на вход.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type SessionStore interface {
	SetSession(ctx context.Context, token, userID string) error
	GetSession(ctx context.Context, token string) (userID string, err error)
	DeleteSession(ctx context.Context, token string) error
	CheckLoginRateLimit(ctx context.Context, login string) (allowed bool, err error)
	Close() error
}
