package realtime

import "fmt"

// ConnectionError — транспорт не установился. Повторный Connect безопасен:
// клиент не остаётся в полусоединённом состоянии.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("realtime: connect: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError — отправка сообщения не удалась; оптимистичная запись откачена.
// Пользователь повторяет отправку вручную, автоматических ретраев нет.
type SendError struct {
	RoomID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("realtime: send to room %s: %v", e.RoomID, e.Err)
}
func (e *SendError) Unwrap() error { return e.Err }

// SubscriptionError — подписка на комнату не удалась. Комната остаётся без
// realtime-доставки до следующего полного SubscribeAll; это деградация, не
// фатальная ошибка.
type SubscriptionError struct {
	RoomID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("realtime: subscribe room %s: %v", e.RoomID, e.Err)
}
func (e *SubscriptionError) Unwrap() error { return e.Err }
