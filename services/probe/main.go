// Смоук-проба realtime-канала: логинится, подписывается на все комнаты,
// шлёт сообщение и ждёт эхо. Используется для проверки живого стенда.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/marketchat/internal/directory"
	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/model"
	"github.com/marketchat/internal/realtime"
	"github.com/marketchat/internal/session"
	"github.com/marketchat/internal/transport"
)

func main() {
	logger.SetPrefix("probe")
	apiURL := flag.String("api", "http://localhost:8080", "base URL of the API service")
	username := flag.String("user", "", "username to log in as")
	password := flag.String("pass", "", "password")
	roomID := flag.String("room", "", "room to message (default: first room)")
	text := flag.String("text", "probe ping", "message content")
	timeout := flag.Duration("timeout", 15*time.Second, "overall deadline")
	flag.Parse()

	if *username == "" || *password == "" {
		logger.Error("usage: probe -user <name> -pass <password> [-api url] [-room id]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	identity, err := login(ctx, *apiURL, *username, *password)
	if err != nil {
		logger.Errorf("login: %v", err)
		os.Exit(1)
	}
	// Guard отлавливает вкладку с чужой сессией; здесь он просто
	// демонстрирует контракт.
	if err := identity.Guard(identity.UserID); err != nil {
		logger.Errorf("identity guard: %v", err)
		os.Exit(1)
	}
	logger.Infof("logged in as %s (%s)", identity.UserID, identity.Role)

	wsURL := strings.Replace(*apiURL, "http", "ws", 1) + "/ws"
	tr := transport.NewWSTransport(wsURL, identity.Token)
	dir := directory.NewClient(*apiURL, identity)
	client := realtime.New(identity, tr, dir)

	if err := client.Connect(ctx); err != nil {
		logger.Errorf("connect: %v", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	rooms, err := client.LoadRooms(ctx)
	if err != nil {
		logger.Errorf("load rooms: %v", err)
		os.Exit(1)
	}
	logger.Infof("rooms: %d", len(rooms))
	if len(rooms) == 0 {
		logger.Error("no rooms to probe; create one via POST /api/rooms first")
		os.Exit(1)
	}

	target := *roomID
	if target == "" {
		target = rooms[0].Room.ID
	}

	echo := make(chan realtime.Message, 8)
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.Room.ID)
	}
	if err := client.SubscribeAll(ids, func(m realtime.Message, room string) {
		if room == target {
			echo <- m
		}
	}); err != nil {
		logger.Errorf("subscribe: %v", err)
		os.Exit(1)
	}

	sent, err := client.Send(ctx, target, *text)
	if err != nil {
		logger.Errorf("send: %v", err)
		os.Exit(1)
	}
	logger.Infof("sent message %s (state=%s)", sent.ID, sent.DeliveryState)

	for {
		select {
		case <-ctx.Done():
			logger.Error("timed out waiting for echo")
			os.Exit(1)
		case m := <-echo:
			if m.SenderID == identity.UserID && strings.TrimSpace(m.Content) == strings.TrimSpace(*text) {
				logger.Infof("echo received: id=%s state=%s", m.ID, m.DeliveryState)
				logger.Info("probe OK")
				return
			}
		}
	}
}

// login выполняет POST /api/auth/login и собирает Identity сессии.
func login(ctx context.Context, apiURL, username, password string) (session.Identity, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return session.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return session.Identity{}, err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Token   string            `json:"token"`
		Role    model.UserRole    `json:"role"`
		User    *model.UserPublic `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return session.Identity{}, err
	}
	if !env.Success || env.Token == "" || env.User == nil {
		if env.Error != "" {
			return session.Identity{}, fmt.Errorf("server: %s", env.Error)
		}
		return session.Identity{}, fmt.Errorf("server: %s", resp.Status)
	}
	return session.Identity{UserID: env.User.ID, Role: env.Role, Token: env.Token}, nil
}
