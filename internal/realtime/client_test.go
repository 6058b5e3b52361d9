package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/session"
	"github.com/marketchat/internal/transport"
)

// fakeTransport implements transport.Transport in-memory and lets tests
// inject inbound frames and observe wire-level subscribe calls.
type fakeTransport struct {
	mu            sync.Mutex
	connected     bool
	connectErr    error
	subscribeErrs map[string]error
	handlers      map[string]transport.HandlerFunc
	subscribeHits map[string]int
	published     map[string][]json.RawMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribeErrs: make(map[string]error),
		handlers:      make(map[string]transport.HandlerFunc),
		subscribeHits: make(map[string]int),
		published:     make(map[string][]json.RawMessage),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(topic string, fn transport.HandlerFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErrs[topic]; err != nil {
		return err
	}
	if _, ok := f.handlers[topic]; !ok {
		f.subscribeHits[topic]++
	}
	f.handlers[topic] = fn
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.published[topic] = append(f.published[topic], raw)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.handlers = make(map[string]transport.HandlerFunc)
}

// deliver simulates an inbound message frame for a room topic.
func (f *fakeTransport) deliver(t *testing.T, roomID string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	fn := f.handlers[transport.RoomTopic(roomID)]
	f.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

type fakeDirectory struct {
	mu        sync.Mutex
	rooms     []model.RoomSummary
	history   map[string][]model.Message
	sendFn    func(roomID, content string) (*model.Message, error)
	markRead  []string
	markErr   error
}

func (f *fakeDirectory) ListRooms(ctx context.Context) ([]model.RoomSummary, error) {
	return f.rooms, nil
}

func (f *fakeDirectory) Messages(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	return f.history[roomID], nil
}

func (f *fakeDirectory) SendMessage(ctx context.Context, roomID, content string) (*model.Message, error) {
	return f.sendFn(roomID, content)
}

func (f *fakeDirectory) MarkRead(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markRead = append(f.markRead, roomID)
	return nil
}

const (
	selfID = "user-a"
	peerID = "user-b"
)

func newTestClient(t *testing.T) (*Client, *fakeTransport, *fakeDirectory) {
	t.Helper()
	tr := newFakeTransport()
	dir := &fakeDirectory{history: make(map[string][]model.Message)}
	id := session.Identity{UserID: selfID, Role: model.RoleCustomer, Token: "tok"}
	c := New(id, tr, dir)
	return c, tr, dir
}

func mustConnect(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func serverMsg(id, roomID, senderID, content string) []byte {
	m := model.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	raw, _ := json.Marshal(m)
	return raw
}

func TestConnectAnnouncesIdentity(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	frames := tr.published[transport.AnnounceTopic]
	if len(frames) != 1 {
		t.Fatalf("announce frames = %d, want 1", len(frames))
	}
	var a transport.Announce
	if err := json.Unmarshal(frames[0], &a); err != nil {
		t.Fatalf("unmarshal announce: %v", err)
	}
	if a.UserID != selfID || a.UserRole != string(model.RoleCustomer) {
		t.Errorf("announce = %+v", a)
	}
}

func TestConnectErrorIsRetryable(t *testing.T) {
	c, tr, _ := newTestClient(t)
	tr.connectErr = errors.New("refused")

	err := c.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
	if c.Connected() {
		t.Fatal("client half-connected after failed connect")
	}

	tr.connectErr = nil
	mustConnect(t, c)
	if !c.Connected() {
		t.Fatal("retry after failed connect did not connect")
	}
}

func TestConnectRejectsInvalidIdentity(t *testing.T) {
	tr := newFakeTransport()
	c := New(session.Identity{}, tr, &fakeDirectory{})
	err := c.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
}

func TestSubscribeAllRequiresConnection(t *testing.T) {
	c, _, _ := newTestClient(t)
	if err := c.SubscribeAll([]string{"r1"}, nil); err == nil {
		t.Fatal("SubscribeAll before Connect must fail")
	}
}

func TestDisconnectCleanup(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	var calls int
	if err := c.SubscribeAll([]string{"r1", "r2"}, func(Message, string) { calls++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c.Disconnect()

	if c.Connected() {
		t.Error("connected after Disconnect")
	}
	if got := len(c.Rooms()); got != 0 {
		t.Errorf("rooms after Disconnect = %d, want 0", got)
	}
	tr.deliver(t, "r1", serverMsg("9", "r1", peerID, "late"))
	if calls != 0 {
		t.Errorf("handler invoked %d times after Disconnect", calls)
	}

	// Повторный Disconnect безопасен, в том числе без Connect.
	c.Disconnect()
	New(session.Identity{UserID: "x", Token: "t"}, newFakeTransport(), &fakeDirectory{}).Disconnect()
}

func TestEndToEndScenario(t *testing.T) {
	c, tr, dir := newTestClient(t)
	dir.sendFn = func(roomID, content string) (*model.Message, error) {
		return &model.Message{ID: "8", RoomID: roomID, SenderID: selfID, Content: content, CreatedAt: time.Now().UTC()}, nil
	}
	mustConnect(t, c)
	if err := c.SubscribeAll([]string{"r1"}, func(Message, string) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// A на списке комнат: входящее от B.
	tr.deliver(t, "r1", serverMsg("7", "r1", peerID, "hello"))
	sum, ok := c.Room("r1")
	if !ok {
		t.Fatal("room r1 missing")
	}
	if sum.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", sum.UnreadCount)
	}
	if sum.LastMessage != "hello" {
		t.Errorf("lastMessage = %q, want %q", sum.LastMessage, "hello")
	}

	// A открывает комнату.
	c.SetActiveRoom("r1")
	if err := c.MarkRoomRead(context.Background(), "r1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if sum, _ := c.Room("r1"); sum.UnreadCount != 0 {
		t.Errorf("unread after open = %d, want 0", sum.UnreadCount)
	}
	if len(dir.markRead) != 1 || dir.markRead[0] != "r1" {
		t.Errorf("markRead calls = %v", dir.markRead)
	}

	// A отвечает: мгновенный Pending, затем подтверждение и эхо.
	sent, err := c.Send(context.Background(), "r1", "hi back")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.ID != "8" || sent.DeliveryState != DeliveryConfirmed {
		t.Errorf("sent = %+v", sent)
	}
	tr.deliver(t, "r1", serverMsg("8", "r1", selfID, "hi back"))

	timeline := c.Timeline("r1")
	var hits int
	for _, m := range timeline {
		if m.Content == "hi back" {
			hits++
			if m.ID != "8" || m.DeliveryState != DeliveryConfirmed {
				t.Errorf("entry = %+v", m)
			}
		}
	}
	if hits != 1 {
		t.Errorf("entries for %q = %d, want exactly 1", "hi back", hits)
	}
}

func TestLoadRoomsAndHistory(t *testing.T) {
	c, _, dir := newTestClient(t)
	at := time.Now().UTC()
	dir.rooms = []model.RoomSummary{
		{Room: model.Room{ID: "r1", CustomerID: selfID, WorkerID: peerID}, LastMessage: "ping", LastActivityAt: &at, UnreadCount: 2},
	}
	// Сервер отдаёт новые первыми.
	dir.history["r1"] = []model.Message{
		{ID: "2", RoomID: "r1", SenderID: peerID, Content: "second"},
		{ID: "1", RoomID: "r1", SenderID: selfID, Content: "first"},
	}

	if _, err := c.LoadRooms(context.Background()); err != nil {
		t.Fatalf("load rooms: %v", err)
	}
	sum, ok := c.Room("r1")
	if !ok || sum.UnreadCount != 2 || sum.LastMessage != "ping" {
		t.Fatalf("summary = %+v ok=%v", sum, ok)
	}

	if err := c.LoadHistory(context.Background(), "r1", 50, 0); err != nil {
		t.Fatalf("load history: %v", err)
	}
	timeline := c.Timeline("r1")
	if len(timeline) != 2 {
		t.Fatalf("timeline len = %d, want 2", len(timeline))
	}
	if timeline[0].ID != "1" || timeline[1].ID != "2" {
		t.Errorf("history not chronological: %q, %q", timeline[0].ID, timeline[1].ID)
	}
	for _, m := range timeline {
		if m.DeliveryState != DeliveryConfirmed {
			t.Errorf("history entry %s state = %s", m.ID, m.DeliveryState)
		}
	}
}
