package model

import (
	"encoding/json"
	"time"
)

type Permission string

const (
	PermissionView  Permission = "VIEW"
	PermissionEdit  Permission = "EDIT"
	PermissionAdmin Permission = "ADMIN"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionEdit, PermissionAdmin:
		return true
	}
	return false
}

// DefaultContent is stored for documents created without a body.
var DefaultContent = json.RawMessage(`{"text":""}`)

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Document struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Content       json.RawMessage `json:"content"`
	Owner         UserRef         `json:"owner"`
	Collaborators []Collaborator  `json:"collaborators"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Collaborator struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"-"`
	User       UserRef    `json:"user"`
	Permission Permission `json:"permission"`
	AddedAt    time.Time  `json:"added_at"`
}

type CreateDocRequest struct {
	Title   string          `json:"title" validate:"max=255"`
	Content json.RawMessage `json:"content"`
}

type UpdateDocRequest struct {
	Title   *string         `json:"title" validate:"omitempty,min=1,max=255"`
	Content json.RawMessage `json:"content"`
}

type CollaboratorRequest struct {
	Username   string     `json:"username" validate:"required"`
	Permission Permission `json:"permission" validate:"omitempty,oneof=VIEW EDIT ADMIN"`
}
