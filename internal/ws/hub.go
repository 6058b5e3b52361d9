package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/repository"
)

// Broker разносит кадры между инстансами API (Redis pub/sub). Если nil —
// кадры доставляются только локальным подключениям.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Hub — маршрутизатор топиков поверх WebSocket-подключений. Клиент
// подписывается кадром subscribe (членство в комнате проверяется), кадры
// message для топика доставляются всем его подписчикам. Отправка сообщений
// идёт через REST, publish от клиента принимается только в app/announce.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	topics   map[string]map[*Client]struct{}
	total    int
	maxConns int

	roomRepo *repository.RoomRepository
	userRepo *repository.UserRepository
	broker   Broker

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(roomRepo *repository.RoomRepository, userRepo *repository.UserRepository, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		roomRepo:   roomRepo,
		userRepo:   userRepo,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// SetBroker подключает межинстансовый транспорт. Вызывать до Run.
func (h *Hub) SetBroker(b Broker) {
	h.broker = b
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.topics = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.userRepo.SetOnline(ctx, c.userID, true); err != nil {
		logger.Errorf("ws set online user=%s: %v", c.userID, err)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	for topic := range c.topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.userRepo.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
	}
}

// HandleFrame dispatches incoming WebSocket frames.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, frame Frame) {
	switch frame.Type {
	case FrameSubscribe:
		h.handleSubscribe(ctx, c, frame.Topic)
	case FrameUnsubscribe:
		h.handleUnsubscribe(c, frame.Topic)
	case FramePublish:
		h.handlePublish(ctx, c, frame)
	default:
		h.sendToClient(c, errorFrame("unknown frame type"))
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, topic string) {
	if topic == "" {
		h.sendToClient(c, errorFrame("topic required"))
		return
	}
	if roomID, ok := RoomFromTopic(topic); ok {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		isMember, err := h.roomRepo.IsMember(ctx, roomID, c.userID)
		if err != nil {
			logger.Errorf("ws check membership room=%s user=%s: %v", roomID, c.userID, err)
			h.sendToClient(c, errorFrame("internal error"))
			return
		}
		if !isMember {
			h.sendToClient(c, errorFrame("not a member"))
			return
		}
	} else if topic != AnnounceTopic {
		h.sendToClient(c, errorFrame("unknown topic"))
		return
	}

	h.mu.Lock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) handleUnsubscribe(c *Client, topic string) {
	h.mu.Lock()
	delete(c.topics, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

// handlePublish принимает только announce: клиент объявляет свою личность
// первым кадром. Публикация в топики комнат с клиента запрещена — сообщения
// идут через REST и рассылаются сервером.
func (h *Hub) handlePublish(ctx context.Context, c *Client, frame Frame) {
	if frame.Topic != AnnounceTopic {
		h.sendToClient(c, errorFrame("publish is server-side only"))
		return
	}
	var a Announce
	if err := json.Unmarshal(frame.Payload, &a); err != nil {
		h.sendToClient(c, errorFrame("bad announce payload"))
		return
	}
	// Личность подключения задаётся токеном; расхождение в announce —
	// признак вкладки с чужой сессией.
	if a.UserID != "" && a.UserID != c.userID {
		logger.Errorf("ws announce mismatch conn=%s announce=%s", c.userID, a.UserID)
		h.sendToClient(c, errorFrame("announce user mismatch"))
		c.Close()
	}
}

// PublishRoom рассылает сохранённое сообщение всем подписчикам топика
// комнаты. При наличии брокера кадр уходит в Redis и доставляется локально
// уже из моста (один путь доставки для всех инстансов).
func (h *Hub) PublishRoom(ctx context.Context, roomID string, m *model.Message) {
	defer logger.DeferLogDuration("ws.PublishRoom", time.Now())()
	payload, err := json.Marshal(m)
	if err != nil {
		logger.Errorf("ws marshal message room=%s: %v", roomID, err)
		return
	}
	topic := RoomTopic(roomID)
	if h.broker != nil {
		if err := h.broker.Publish(ctx, topic, payload); err == nil {
			return
		} else {
			logger.Errorf("ws broker publish room=%s: %v (delivering locally)", roomID, err)
		}
	}
	h.DeliverLocal(topic, payload)
}

// DeliverLocal доставляет кадр message локальным подписчикам топика.
func (h *Hub) DeliverLocal(topic string, payload []byte) {
	h.mu.RLock()
	subs, ok := h.topics[topic]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	frame := Frame{Type: FrameMessage, Topic: topic, Payload: payload}
	for _, c := range targets {
		h.sendToClient(c, frame)
	}
}

// IsOnline reports whether the user has at least one local connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) sendToClient(c *Client, frame Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
