package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/repository"
)

// Sender отправляет Web Push по подпискам из Postgres. Если VAPID-ключи не
// заданы — методы no-op (подписки сохраняются, отправка не выполняется).
type Sender struct {
	repo  *repository.PushRepository
	vapid *webpush.Options
}

// NewSender создаёт отправитель. keys nil — пуши отключены.
func NewSender(repo *repository.PushRepository, keys *VAPIDKeys, subscriber string) *Sender {
	s := &Sender{repo: repo}
	if subscriber == "" {
		subscriber = "mailto:admin@marketchat.local"
	}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return s
}

// Enabled reports whether sending is configured.
func (s *Sender) Enabled() bool {
	return s.vapid != nil
}

// Notify отправляет уведомление на все подписки пользователя. Протухшие
// подписки (404/410 от push-сервиса) удаляются.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s.vapid == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	subs, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push notify user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, target, s.vapid)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := s.repo.DeleteEndpoint(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push delete stale endpoint: %v", err)
			}
		}
		resp.Body.Close()
	}
}
