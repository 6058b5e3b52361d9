package model

import "time"

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleWorker   UserRole = "worker"
	RoleAdmin    UserRole = "admin"
)

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Role         UserRole   `json:"role"`
	PasswordHash string     `json:"-"`
	AvatarURL    string     `json:"avatar_url"`
	City         string     `json:"city"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	IsOnline     bool       `json:"is_online"`
	CreatedAt    time.Time  `json:"created_at"`
	DisabledAt   *time.Time `json:"-"` // не null = пользователь отключён, не может войти
}

type UserPublic struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Role       UserRole  `json:"role"`
	AvatarURL  string    `json:"avatar_url"`
	City       string    `json:"city"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Username:   u.Username,
		Role:       u.Role,
		AvatarURL:  u.AvatarURL,
		City:       u.City,
		IsOnline:   u.IsOnline,
		LastSeenAt: u.LastSeenAt,
	}
}
