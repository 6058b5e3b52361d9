package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/session"
)

func testIdentity() session.Identity {
	return session.Identity{UserID: "u1", Role: model.RoleCustomer, Token: "secret-token"}
}

func TestListRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"rooms": []model.RoomSummary{
				{Room: model.Room{ID: "r1", CustomerID: "u1", WorkerID: "u2"}, UnreadCount: 3},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	rooms, err := c.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Room.ID != "r1" || rooms[0].UnreadCount != 3 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms/r1/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["content"] != "hi" {
			t.Errorf("content = %q", body["content"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": model.Message{ID: "42", RoomID: "r1", SenderID: "u1", Content: "hi"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	msg, err := c.SendMessage(context.Background(), "r1", "hi")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "42" {
		t.Errorf("message id = %q", msg.ID)
	}
}

// success:false и HTTP-ошибка — одинаково восстановимые отказы.
func TestServerFailureEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not a member"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	if err := c.MarkRead(context.Background(), "r1"); err == nil {
		t.Fatal("MarkRead succeeded on success:false envelope")
	}
	if _, err := c.Messages(context.Background(), "r1", 50, 0); err == nil {
		t.Fatal("Messages succeeded on success:false envelope")
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // соединение будет отклонено

	c := NewClient(srv.URL, testIdentity())
	if _, err := c.ListRooms(context.Background()); err == nil {
		t.Fatal("ListRooms succeeded against closed server")
	}
}

func TestCreateOrGetRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["user_id"] != "u2" {
			t.Errorf("user_id = %q", body["user_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"room":    model.RoomSummary{Room: model.Room{ID: "r9", CustomerID: "u1", WorkerID: "u2"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	room, err := c.CreateOrGetRoom(context.Background(), "u2")
	if err != nil {
		t.Fatalf("CreateOrGetRoom: %v", err)
	}
	if room.Room.ID != "r9" {
		t.Errorf("room id = %q", room.Room.ID)
	}
}
