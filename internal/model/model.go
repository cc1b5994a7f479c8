// Package model содержит доменные сущности туристического агентства.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role описывает роль пользователя в административной панели.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTourManager Role = "tour_manager"
	RoleAccountant  Role = "accountant"
	RoleClient      Role = "client"
)

// DefaultRole назначается пользователю без явной записи о роли.
const DefaultRole = RoleClient

// Valid сообщает, входит ли роль в закрытый список.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTourManager, RoleAccountant, RoleClient:
		return true
	}
	return false
}

// ParseRole разбирает строковое значение роли.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AuthenticatedUser описывает пользователя, связанного с действующей сессией.
type AuthenticatedUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// FullName возвращает имя пользователя из метаданных.
func (u AuthenticatedUser) FullName() string {
	if u.Metadata == nil {
		return ""
	}
	name, _ := u.Metadata["full_name"].(string)
	return name
}

// Session описывает набор токенов, выданный бэкендом.
type Session struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	ExpiresAt    int64             `json:"expires_at"`
	User         AuthenticatedUser `json:"user"`
}

// Expired сообщает, истечёт ли сессия в пределах указанного запаса.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Add(leeway).Unix() >= s.ExpiresAt
}

// Profile хранит данные профиля пользователя.
type Profile struct {
	ID        string     `json:"id" validate:"required"`
	Email     string     `json:"email" validate:"omitempty,email"`
	FullName  string     `json:"full_name" validate:"max=200"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// UserRole связывает пользователя с ролью.
type UserRole struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id" validate:"required"`
	Role      Role       `json:"role" validate:"required,role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}
