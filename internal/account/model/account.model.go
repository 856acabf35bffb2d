package model

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthToken is the stored half of a bearer credential. Only the first
// characters of the raw token (TokenKey) and its digest are persisted.
type AuthToken struct {
	Digest    string
	TokenKey  string
	UserID    string
	CreatedAt time.Time
	Expiry    *time.Time
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token  string       `json:"token"`
	Expiry time.Time    `json:"expiry"`
	User   UserResponse `json:"user"`
}

func (u User) Response() UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}
