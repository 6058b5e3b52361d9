package realtime

import (
	"errors"
	"testing"

	"github.com/marketchat/internal/transport"
)

func TestSubscribeAllIdempotent(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	var calls int
	handler := func(Message, string) { calls++ }
	if err := c.SubscribeAll([]string{"r1", "r2"}, handler); err != nil {
		t.Fatalf("first SubscribeAll: %v", err)
	}
	if err := c.SubscribeAll([]string{"r1", "r2"}, handler); err != nil {
		t.Fatalf("second SubscribeAll: %v", err)
	}

	for _, room := range []string{"r1", "r2"} {
		if hits := tr.subscribeHits[transport.RoomTopic(room)]; hits != 1 {
			t.Errorf("wire subscriptions for %s = %d, want 1", room, hits)
		}
	}

	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "once"))
	if calls != 1 {
		t.Errorf("handler invocations = %d, want exactly 1", calls)
	}
}

func TestSubscribeRoomReplacesHandlerInPlace(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	var first, second int
	if err := c.SubscribeRoom("r1", func(Message, string) { first++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.SubscribeRoom("r1", func(Message, string) { second++ }); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}

	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "hi"))
	if first != 0 {
		t.Errorf("replaced handler invoked %d times", first)
	}
	if second != 1 {
		t.Errorf("current handler invocations = %d, want 1", second)
	}
}

func TestUpdateRoomHandler(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	// No-op без активной подписки.
	c.UpdateRoomHandler("r1", func(Message, string) { t.Error("handler installed without subscription") })
	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "x"))

	var calls int
	if err := c.SubscribeRoom("r2", nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c.UpdateRoomHandler("r2", func(Message, string) { calls++ })
	tr.deliver(t, "r2", serverMsg("2", "r2", peerID, "y"))
	if calls != 1 {
		t.Errorf("updated handler invocations = %d, want 1", calls)
	}
	// Замена хэндлера не создаёт вторую подписку.
	if hits := tr.subscribeHits[transport.RoomTopic("r2")]; hits != 1 {
		t.Errorf("wire subscriptions = %d, want 1", hits)
	}
}

func TestSubscribeFailureDegradesSingleRoom(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)
	tr.subscribeErrs[transport.RoomTopic("bad")] = errors.New("broker refused")

	var got []string
	err := c.SubscribeAll([]string{"bad", "good"}, func(_ Message, roomID string) {
		got = append(got, roomID)
	})
	if err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}

	tr.deliver(t, "good", serverMsg("1", "good", peerID, "still works"))
	if len(got) != 1 || got[0] != "good" {
		t.Errorf("deliveries = %v, want [good]", got)
	}

	// Комната с ошибкой подписки доступна для следующего полного прохода.
	tr.subscribeErrs = map[string]error{}
	if err := c.SubscribeAll([]string{"bad"}, nil); err != nil {
		t.Fatalf("retry SubscribeAll: %v", err)
	}
	tr.deliver(t, "bad", serverMsg("2", "bad", peerID, "recovered"))
	if sum, _ := c.Room("bad"); sum.UnreadCount != 1 {
		t.Errorf("unread after recovery = %d, want 1", sum.UnreadCount)
	}
}

func TestUnreadAccounting(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)
	if err := c.SubscribeAll([]string{"r1"}, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Не активная комната, сообщение от собеседника: +1.
	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "a"))
	if sum, _ := c.Room("r1"); sum.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", sum.UnreadCount)
	}

	// Сообщение от себя никогда не увеличивает счётчик.
	tr.deliver(t, "r1", serverMsg("2", "r1", selfID, "b"))
	if sum, _ := c.Room("r1"); sum.UnreadCount != 1 {
		t.Errorf("unread after self message = %d, want 1", sum.UnreadCount)
	}

	// Открытие комнаты сбрасывает счётчик немедленно.
	c.SetActiveRoom("r1")
	if sum, _ := c.Room("r1"); sum.UnreadCount != 0 {
		t.Errorf("unread after activate = %d, want 0", sum.UnreadCount)
	}

	// Входящее в активную комнату не копит непрочитанные.
	tr.deliver(t, "r1", serverMsg("3", "r1", peerID, "c"))
	if sum, _ := c.Room("r1"); sum.UnreadCount != 0 {
		t.Errorf("unread in active room = %d, want 0", sum.UnreadCount)
	}

	// Комната снята с активной — счётчик снова растёт.
	c.SetActiveRoom("")
	tr.deliver(t, "r1", serverMsg("4", "r1", peerID, "d"))
	if sum, _ := c.Room("r1"); sum.UnreadCount != 1 {
		t.Errorf("unread after deactivate = %d, want 1", sum.UnreadCount)
	}
}

func TestNoCrossRoomLeakage(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)
	if err := c.SubscribeAll([]string{"r1", "r2"}, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "for r1"))
	tr.deliver(t, "r2", serverMsg("2", "r2", peerID, "for r2"))

	s1, _ := c.Room("r1")
	if s1.LastMessage != "for r1" || s1.UnreadCount != 1 {
		t.Errorf("r1 summary = %+v", s1)
	}
	if got := len(c.Timeline("r1")); got != 1 {
		t.Errorf("r1 timeline len = %d, want 1", got)
	}
	s2, _ := c.Room("r2")
	if s2.LastMessage != "for r2" || s2.UnreadCount != 1 {
		t.Errorf("r2 summary = %+v", s2)
	}
}

func TestMalformedInboundFrameDropped(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)
	var calls int
	if err := c.SubscribeAll([]string{"r1"}, func(Message, string) { calls++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tr.deliver(t, "r1", []byte("{not json"))
	if calls != 0 {
		t.Errorf("handler invoked for malformed frame")
	}
	if got := len(c.Timeline("r1")); got != 0 {
		t.Errorf("timeline len = %d, want 0", got)
	}

	// Последующая доставка в ту же и другие комнаты не сломана.
	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "ok"))
	if calls != 1 {
		t.Errorf("handler invocations after recovery = %d, want 1", calls)
	}
}

func TestGlobalAndRoomHandlerFanOut(t *testing.T) {
	c, tr, _ := newTestClient(t)
	mustConnect(t, c)

	var order []string
	if err := c.SubscribeAll([]string{"r1"}, func(_ Message, roomID string) {
		order = append(order, "global:"+roomID)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c.UpdateRoomHandler("r1", func(_ Message, roomID string) {
		order = append(order, "room:"+roomID)
	})

	tr.deliver(t, "r1", serverMsg("1", "r1", peerID, "hi"))
	if len(order) != 2 || order[0] != "global:r1" || order[1] != "room:r1" {
		t.Errorf("fan-out order = %v", order)
	}
}
