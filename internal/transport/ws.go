package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marketchat/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

var errNotConnected = errors.New("transport: not connected")

// WSTransport is the gorilla/websocket implementation of Transport.
// Lifecycle: NewWSTransport -> Connect -> [Subscribe/Publish] -> Disconnect.
// The same instance may be reconnected after a failed Connect, a transport
// drop or an explicit Disconnect.
type WSTransport struct {
	url    string
	bearer string

	mu       sync.Mutex
	sess     *wsSession
	handlers map[string]HandlerFunc
}

// wsSession owns one physical connection and its two pumps. A new session is
// created per Connect so a pump from a dead connection can never touch the
// state of a newer one.
type wsSession struct {
	owner *WSTransport
	conn  *websocket.Conn
	send  chan Frame
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewWSTransport создаёт транспорт. url — ws:// или wss:// endpoint,
// bearer — токен активной сессии (передаётся в Authorization при upgrade).
func NewWSTransport(url, bearer string) *WSTransport {
	return &WSTransport{
		url:      url,
		bearer:   bearer,
		handlers: make(map[string]HandlerFunc),
	}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sess != nil {
		return nil
	}

	header := http.Header{}
	if t.bearer != "" {
		header.Set("Authorization", "Bearer "+t.bearer)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.url, err)
	}

	s := &wsSession{
		owner: t,
		conn:  conn,
		send:  make(chan Frame, sendBufSize),
		done:  make(chan struct{}),
	}
	t.sess = s
	s.wg.Add(2)
	go s.readPump()
	go s.writePump()
	return nil
}

func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil
}

func (t *WSTransport) Subscribe(topic string, fn HandlerFunc) error {
	t.mu.Lock()
	s := t.sess
	if s == nil {
		t.mu.Unlock()
		return errNotConnected
	}
	_, already := t.handlers[topic]
	t.handlers[topic] = fn
	t.mu.Unlock()

	// Уже подписаны на сервере — заменили только хэндлер.
	if already {
		return nil
	}
	return s.enqueue(Frame{Type: FrameSubscribe, Topic: topic})
}

func (t *WSTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	s := t.sess
	if s == nil {
		t.mu.Unlock()
		return errNotConnected
	}
	_, ok := t.handlers[topic]
	delete(t.handlers, topic)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return s.enqueue(Frame{Type: FrameUnsubscribe, Topic: topic})
}

func (t *WSTransport) Publish(topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal payload for %s: %w", topic, err)
	}
	t.mu.Lock()
	s := t.sess
	t.mu.Unlock()
	if s == nil {
		return errNotConnected
	}
	return s.enqueue(Frame{Type: FramePublish, Topic: topic, Payload: raw})
}

// Disconnect closes the connection and clears all handlers. Always safe,
// including when never connected.
func (t *WSTransport) Disconnect() {
	t.mu.Lock()
	t.handlers = make(map[string]HandlerFunc)
	s := t.sess
	t.sess = nil
	t.mu.Unlock()

	if s == nil {
		return
	}
	s.close()
	s.wg.Wait()
}

func (t *WSTransport) handlerFor(topic string) HandlerFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[topic]
}

// drop is called by a pump that observed a transport-level failure: the last
// known state flips to disconnected, nothing reconnects here.
func (t *WSTransport) drop(s *wsSession) {
	t.mu.Lock()
	if t.sess == s {
		t.sess = nil
	}
	t.mu.Unlock()
	s.close()
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *wsSession) enqueue(f Frame) error {
	select {
	case s.send <- f:
		return nil
	case <-s.done:
		return errNotConnected
	default:
		return fmt.Errorf("transport: send buffer full (topic %s)", f.Topic)
	}
}

func (s *wsSession) readPump() {
	defer s.wg.Done()
	defer s.owner.drop(s)

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("transport: set read deadline: %v", err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Errorf("transport: read: %v", err)
				}
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			// Битый кадр не должен ломать доставку остальных комнат.
			logger.Errorf("transport: malformed frame dropped: %v", err)
			continue
		}
		s.dispatch(f)
	}
}

func (s *wsSession) dispatch(f Frame) {
	switch f.Type {
	case FrameMessage:
		fn := s.owner.handlerFor(f.Topic)
		if fn == nil {
			logger.Debugf("transport: no handler for topic %s", f.Topic)
			return
		}
		fn(f.Payload)
	case FrameError:
		logger.Errorf("transport: server error frame: %s", string(f.Payload))
	default:
		logger.Debugf("transport: ignoring frame type %q", f.Type)
	}
}

func (s *wsSession) writePump() {
	defer s.wg.Done()
	defer s.owner.drop(s)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			deadline := time.Now().Add(writeWait)
			if err := s.conn.WriteControl(websocket.CloseMessage, nil, deadline); err != nil && err != websocket.ErrCloseSent {
				logger.Debugf("transport: close message: %v", err)
			}
			return
		case f := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("transport: set write deadline: %v", err)
				return
			}
			if err := s.conn.WriteJSON(f); err != nil {
				logger.Errorf("transport: write: %v", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
