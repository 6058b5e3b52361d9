package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/marketchat/internal/logger"
	"github.com/marketchat/internal/repository"
	"github.com/marketchat/internal/storage"
)

// SessionAuth проверяет bearer-токен (заголовок Authorization либо query
// token для WebSocket) по хранилищу сессий и кладёт user_id и роль в
// контекст. Отключённый пользователь получает 401, как и невалидный токен.
func SessionAuth(users *repository.UserRepository, store storage.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"success":false,"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := store.GetSession(r.Context(), token)
			if err != nil {
				logger.Errorf("session middleware GetSession: %v", err)
				http.Error(w, `{"success":false,"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			if userID == "" {
				http.Error(w, `{"success":false,"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			user, err := users.GetByID(r.Context(), userID)
			if err != nil || user.DisabledAt != nil {
				http.Error(w, `{"success":false,"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			ctx = context.WithValue(ctx, UserRoleKey, user.Role)
			ctx = context.WithValue(ctx, TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken достаёт токен из Authorization: Bearer ... либо ?token=
// (браузерный WebSocket не умеет ставить заголовки).
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
