// Package directory — REST-клиент каталога комнат: список комнат, история,
// отправка сообщений, отметка о прочтении, контакты. Ответы сервера — JSON
// конверты вида {"success": bool, ...}; success:false и транспортная ошибка
// для вызывающего кода неразличимы (обе восстановимы повтором запроса).
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/session"
)

type Client struct {
	baseURL    string
	identity   session.Identity
	httpClient *http.Client
}

// NewClient создаёт клиент каталога для конкретной сессии.
func NewClient(baseURL string, identity session.Identity) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		identity: identity,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type envelope struct {
	Success  bool                `json:"success"`
	Error    string              `json:"error,omitempty"`
	Rooms    []model.RoomSummary `json:"rooms,omitempty"`
	Room     *model.RoomSummary  `json:"room,omitempty"`
	Messages []model.Message     `json:"messages,omitempty"`
	Message  *model.Message      `json:"message,omitempty"`
	Users    []model.UserPublic  `json:"users,omitempty"`
}

// ListRooms возвращает комнаты пользователя с превью и счётчиком непрочитанных.
func (c *Client) ListRooms(ctx context.Context) ([]model.RoomSummary, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &env); err != nil {
		return nil, fmt.Errorf("directory.ListRooms: %w", err)
	}
	return env.Rooms, nil
}

// CreateOrGetRoom находит или создаёт комнату с другим участником.
func (c *Client) CreateOrGetRoom(ctx context.Context, otherUserID string) (*model.RoomSummary, error) {
	body := map[string]string{"user_id": otherUserID}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/rooms", body, &env); err != nil {
		return nil, fmt.Errorf("directory.CreateOrGetRoom: %w", err)
	}
	if env.Room == nil {
		return nil, fmt.Errorf("directory.CreateOrGetRoom: empty room in response")
	}
	return env.Room, nil
}

// Messages возвращает страницу истории комнаты (новые первыми).
func (c *Client) Messages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	path := "/api/rooms/" + roomID + "/messages?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var env envelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("directory.Messages: %w", err)
	}
	return env.Messages, nil
}

// SendMessage отправляет сообщение через request/response канал (realtime
// канал для клиента — только приём).
func (c *Client) SendMessage(ctx context.Context, roomID, content string) (*model.Message, error) {
	body := map[string]string{"content": content}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+roomID+"/messages", body, &env); err != nil {
		return nil, fmt.Errorf("directory.SendMessage: %w", err)
	}
	if env.Message == nil {
		return nil, fmt.Errorf("directory.SendMessage: empty message in response")
	}
	return env.Message, nil
}

// MarkRead сбрасывает непрочитанные в комнате на сервере.
func (c *Client) MarkRead(ctx context.Context, roomID string) error {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+roomID+"/read", nil, &env); err != nil {
		return fmt.Errorf("directory.MarkRead: %w", err)
	}
	return nil
}

// Contacts возвращает пользователей, с которыми можно начать чат.
func (c *Client) Contacts(ctx context.Context) ([]model.UserPublic, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/users/contacts", nil, &env); err != nil {
		return nil, fmt.Errorf("directory.Contacts: %w", err)
	}
	return env.Users, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, env *envelope) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.identity.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("server: %s", env.Error)
		}
		return fmt.Errorf("server: %s", resp.Status)
	}
	return nil
}
