package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketchat/internal/middleware"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/repository"
)

type fakeRoomStore struct {
	markReadErr   error
	markReadCalls []string
}

func (f *fakeRoomStore) ListSummaries(ctx context.Context, userID string) ([]model.RoomSummary, error) {
	return nil, nil
}

func (f *fakeRoomStore) GetOrCreate(ctx context.Context, customer, worker *model.User) (*model.Room, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeRoomStore) Summary(ctx context.Context, roomID, userID string) (*model.RoomSummary, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeRoomStore) MarkRead(ctx context.Context, roomID, userID string) error {
	f.markReadCalls = append(f.markReadCalls, roomID+"/"+userID)
	return f.markReadErr
}

type fakeUserGetter struct{}

func (fakeUserGetter) GetByID(ctx context.Context, id string) (*model.User, error) {
	return nil, repository.ErrNotFound
}

type fakeMessageReads struct {
	calls  []string
	cutoff time.Time
}

func (f *fakeMessageReads) MarkReadBefore(ctx context.Context, roomID, readerID string, before time.Time) error {
	f.calls = append(f.calls, roomID+"/"+readerID)
	f.cutoff = before
	return nil
}

func markReadRequest(roomID, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+roomID+"/read", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("roomId", roomID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

// MarkRead двигает last_read_at участника и помечает прочитанными сами
// сообщения — оба хранилища должны быть затронуты одним запросом.
func TestMarkReadFlagsMessages(t *testing.T) {
	rooms := &fakeRoomStore{}
	msgs := &fakeMessageReads{}
	h := NewRoomHandler(rooms, fakeUserGetter{}, msgs)

	rec := httptest.NewRecorder()
	h.MarkRead(rec, markReadRequest("r1", "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil || !env.Success {
		t.Fatalf("envelope = %s (err=%v)", rec.Body.String(), err)
	}
	if len(rooms.markReadCalls) != 1 || rooms.markReadCalls[0] != "r1/u1" {
		t.Errorf("room MarkRead calls = %v", rooms.markReadCalls)
	}
	if len(msgs.calls) != 1 || msgs.calls[0] != "r1/u1" {
		t.Fatalf("MarkReadBefore calls = %v", msgs.calls)
	}
	if msgs.cutoff.IsZero() || time.Since(msgs.cutoff) > time.Minute {
		t.Errorf("MarkReadBefore cutoff = %v", msgs.cutoff)
	}
}

func TestMarkReadNonMember(t *testing.T) {
	rooms := &fakeRoomStore{markReadErr: repository.ErrNotFound}
	msgs := &fakeMessageReads{}
	h := NewRoomHandler(rooms, fakeUserGetter{}, msgs)

	rec := httptest.NewRecorder()
	h.MarkRead(rec, markReadRequest("r1", "intruder"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(msgs.calls) != 0 {
		t.Errorf("messages flagged for non-member: %v", msgs.calls)
	}
}
