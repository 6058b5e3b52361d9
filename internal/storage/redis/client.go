package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Токен живёт 30 дней; rate limit 10 попыток входа / 10 минут на логин.
const (
	SessionTTL           = 30 * 24 * 3600
	LoginRateLimitWindow = 600 // 10 минут
	LoginRateLimitMax    = 10  // попыток входа за окно
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Raw отдаёт низкоуровневый клиент для pub/sub моста между инстансами.
func (c *Client) Raw() *redis.Client {
	return c.cli
}

// SetSession сохраняет токен по ключу sess:{token}, TTL 30 дней.
func (c *Client) SetSession(ctx context.Context, token, userID string) error {
	return c.cli.Set(ctx, "sess:"+token, userID, SessionTTL*time.Second).Err()
}

// GetSession возвращает userID по токену. Если токена нет, возвращает "".
func (c *Client) GetSession(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, "sess:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// DeleteSession отзывает токен (logout либо смена вкладки с другим пользователем).
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "sess:"+token).Err()
}

// CheckLoginRateLimit проверяет login_limit:{login}: макс. LoginRateLimitMax попыток за окно. При превышении — HTTP 429.
func (c *Client) CheckLoginRateLimit(ctx context.Context, login string) (allowed bool, err error) {
	key := "login_limit:" + login
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, LoginRateLimitWindow*time.Second)
	}
	return n <= int64(LoginRateLimitMax), nil
}

