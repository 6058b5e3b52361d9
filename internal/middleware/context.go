package middleware

import (
	"context"

	"github.com/marketchat/internal/model"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
	TokenKey    contextKey = "token"
)

// GetUserID возвращает user_id из контекста (устанавливается SessionAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetUserRole возвращает роль текущего пользователя.
func GetUserRole(ctx context.Context) model.UserRole {
	v, _ := ctx.Value(UserRoleKey).(model.UserRole)
	return v
}

// GetToken возвращает bearer-токен запроса (нужен для logout).
func GetToken(ctx context.Context) string {
	v, _ := ctx.Value(TokenKey).(string)
	return v
}
