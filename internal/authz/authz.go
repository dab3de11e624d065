// Package authz resolves what a user may do inside a repository.
package authz

import "nluhub/internal/models"

// Level is the effective access level after owner and visibility rules apply.
type Level int

const (
	LevelNothing Level = iota
	LevelReader
	LevelContributor
	LevelAdmin
	LevelTranslator
)

// Capabilities is the resolved permission set of one user in one repository.
type Capabilities struct {
	Role          models.Role `json:"role"`
	Level         Level       `json:"level"`
	IsOwner       bool        `json:"is_owner"`
	CanRead       bool        `json:"can_read"`
	CanContribute bool        `json:"can_contribute"`
	CanWrite      bool        `json:"can_write"`
	CanTranslate  bool        `json:"can_translate"`
	IsAdmin       bool        `json:"is_admin"`
}

// Resolve computes capabilities from the repository, the caller and the
// stored authorization (nil when the caller has none). userID is 0 for
// anonymous callers.
func Resolve(repo *models.Repository, userID int64, stored *models.Authorization) Capabilities {
	role := models.RoleNotSet
	if stored != nil {
		role = stored.Role
	}

	isOwner := userID != 0 && repo.OwnerID == userID
	level := levelFor(role, repo.IsPrivate)
	if isOwner {
		level = LevelAdmin
	}

	return Capabilities{
		Role:          role,
		Level:         level,
		IsOwner:       isOwner,
		CanRead:       level > LevelNothing,
		CanContribute: level == LevelContributor || level == LevelAdmin,
		CanWrite:      level == LevelContributor || level == LevelAdmin,
		CanTranslate:  level == LevelContributor || level == LevelAdmin || level == LevelTranslator,
		IsAdmin:       level == LevelAdmin,
	}
}

func levelFor(role models.Role, private bool) Level {
	switch role {
	case models.RoleUser:
		return LevelReader
	case models.RoleContributor:
		return LevelContributor
	case models.RoleAdmin:
		return LevelAdmin
	case models.RoleTranslator:
		return LevelTranslator
	}
	if private {
		return LevelNothing
	}
	return LevelReader
}
