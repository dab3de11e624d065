package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nluhub/internal/models"
)

func TestResolve(t *testing.T) {
	const owner, other int64 = 1, 2

	tests := []struct {
		name    string
		private bool
		userID  int64
		role    *models.Role
		want    Capabilities
	}{
		{
			name:   "owner of public repository",
			userID: owner,
			want:   Capabilities{Level: LevelAdmin, IsOwner: true, CanRead: true, CanContribute: true, CanWrite: true, CanTranslate: true, IsAdmin: true},
		},
		{
			name:    "owner of private repository ignores stored role",
			private: true,
			userID:  owner,
			role:    rolePtr(models.RoleUser),
			want:    Capabilities{Role: models.RoleUser, Level: LevelAdmin, IsOwner: true, CanRead: true, CanContribute: true, CanWrite: true, CanTranslate: true, IsAdmin: true},
		},
		{
			name:   "anonymous on public repository",
			userID: 0,
			want:   Capabilities{Level: LevelReader, CanRead: true},
		},
		{
			name:    "anonymous on private repository",
			private: true,
			userID:  0,
			want:    Capabilities{Level: LevelNothing},
		},
		{
			name:    "stranger on private repository",
			private: true,
			userID:  other,
			want:    Capabilities{Level: LevelNothing},
		},
		{
			name:    "user role on private repository",
			private: true,
			userID:  other,
			role:    rolePtr(models.RoleUser),
			want:    Capabilities{Role: models.RoleUser, Level: LevelReader, CanRead: true},
		},
		{
			name:   "contributor",
			userID: other,
			role:   rolePtr(models.RoleContributor),
			want:   Capabilities{Role: models.RoleContributor, Level: LevelContributor, CanRead: true, CanContribute: true, CanWrite: true, CanTranslate: true},
		},
		{
			name:    "admin",
			private: true,
			userID:  other,
			role:    rolePtr(models.RoleAdmin),
			want:    Capabilities{Role: models.RoleAdmin, Level: LevelAdmin, CanRead: true, CanContribute: true, CanWrite: true, CanTranslate: true, IsAdmin: true},
		},
		{
			name:    "translator",
			private: true,
			userID:  other,
			role:    rolePtr(models.RoleTranslator),
			want:    Capabilities{Role: models.RoleTranslator, Level: LevelTranslator, CanRead: true, CanTranslate: true},
		},
		{
			name:    "stored not-set on private repository",
			private: true,
			userID:  other,
			role:    rolePtr(models.RoleNotSet),
			want:    Capabilities{Level: LevelNothing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &models.Repository{OwnerID: owner, IsPrivate: tt.private}
			var stored *models.Authorization
			if tt.role != nil {
				stored = &models.Authorization{UserID: tt.userID, Role: *tt.role}
			}
			assert.Equal(t, tt.want, Resolve(repo, tt.userID, stored))
		})
	}
}

// Exhaustive check over every role, visibility and ownership combination.
func TestResolveInvariants(t *testing.T) {
	roles := []models.Role{models.RoleNotSet, models.RoleUser, models.RoleContributor, models.RoleAdmin, models.RoleTranslator}
	for _, private := range []bool{false, true} {
		for _, role := range roles {
			for _, userID := range []int64{1, 2} {
				repo := &models.Repository{OwnerID: 1, IsPrivate: private}
				c := Resolve(repo, userID, &models.Authorization{Role: role})

				if c.IsOwner {
					assert.True(t, c.IsAdmin)
				}
				if c.CanWrite {
					assert.True(t, c.CanRead)
					assert.True(t, c.CanTranslate)
				}
				if c.CanTranslate {
					assert.True(t, c.CanRead)
				}
				assert.Equal(t, c.CanWrite, c.CanContribute)
				if !private {
					assert.True(t, c.CanRead)
				}
			}
		}
	}
}

func rolePtr(r models.Role) *models.Role { return &r }
