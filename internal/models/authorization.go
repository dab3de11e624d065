package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the stored authorization level of a user in a repository.
type Role int

const (
	RoleNotSet Role = iota
	RoleUser
	RoleContributor
	RoleAdmin
	RoleTranslator
)

func ParseRole(v int) (Role, error) {
	if v < int(RoleNotSet) || v > int(RoleTranslator) {
		return RoleNotSet, fmt.Errorf("unknown role %d", v)
	}
	return Role(v), nil
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleContributor:
		return "contributor"
	case RoleAdmin:
		return "admin"
	case RoleTranslator:
		return "translator"
	default:
		return "not set"
	}
}

// Authorization is the stored role of a user in a repository.
type Authorization struct {
	UUID           uuid.UUID `db:"uuid" json:"uuid"`
	UserID         int64     `db:"user_id" json:"user"`
	UserNickname   string    `db:"user_nickname" json:"user__nickname"`
	RepositoryUUID uuid.UUID `db:"repository_uuid" json:"repository"`
	Role           Role      `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AuthorizationRequest represents a request from a user to join a private repository.
type AuthorizationRequest struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user"`
	UserNickname   string    `db:"user_nickname" json:"user__nickname"`
	RepositoryUUID uuid.UUID `db:"repository_uuid" json:"repository"`
	Text           string    `db:"text" json:"text"`
	ApprovedBy     *int64    `db:"approved_by" json:"approved_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CreateAuthorizationRequestInput represents input for requesting access to a repository
type CreateAuthorizationRequestInput struct {
	Repository uuid.UUID `json:"repository" binding:"required"`
	Text       string    `json:"text" binding:"required"`
}

// UpdateRoleInput represents input for changing a user's role in a repository
type UpdateRoleInput struct {
	Role *int `json:"role" binding:"required"`
}
