package ws

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/marketchat/internal/logger"
)

const bridgeChannelPrefix = "chat:"

// RedisBridge разносит кадры топиков между инстансами API через Redis
// pub/sub. Каждый инстанс публикует в канал chat:{topic} и слушает
// chat:* — доставка локальным подписчикам происходит из Run.
type RedisBridge struct {
	cli *redis.Client
	hub *Hub
}

func NewRedisBridge(cli *redis.Client, hub *Hub) *RedisBridge {
	b := &RedisBridge{cli: cli, hub: hub}
	hub.SetBroker(b)
	return b
}

func (b *RedisBridge) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.cli.Publish(ctx, bridgeChannelPrefix+topic, payload).Err()
}

// Run блокируется на подписке chat:* до отмены ctx.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.cli.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	logger.Info("ws bridge: subscribed to " + bridgeChannelPrefix + "*")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, bridgeChannelPrefix)
			b.hub.DeliverLocal(topic, []byte(msg.Payload))
		}
	}
}
