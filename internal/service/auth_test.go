package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, verifyPassword(hash, "s3cret!"))
	assert.False(t, verifyPassword(hash, "wrong"))
	assert.False(t, verifyPassword("plain", "plain"))

	other, err := hashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestRegisterLoginParse(t *testing.T) {
	w := newWorld()
	svc := NewAuthService(fakeUsers{w: w}, "test-secret", time.Hour, zap.NewNop())
	ctx := context.Background()

	user, err := svc.Register(ctx, models.RegisterInput{
		Nickname: "alice",
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, _, err = svc.Login(ctx, models.LoginInput{Email: "alice@example.com", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, expires, err := svc.Login(ctx, models.LoginInput{Email: "ALICE@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Nickname)

	other := NewAuthService(fakeUsers{w: w}, "another-secret", time.Hour, zap.NewNop())
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsNonHMAC(t *testing.T) {
	svc := NewAuthService(fakeUsers{w: newWorld()}, "test-secret", time.Hour, zap.NewNop())

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.Claims{UserID: 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ParseToken(unsigned)
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	w := newWorld()
	w.addUser("taken")
	svc := NewAuthService(fakeUsers{w: w}, "test-secret", time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Register(ctx, models.RegisterInput{Nickname: "not valid!", Name: "", Email: "x@example.com", Password: "123456"})
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "nickname")
	assert.Contains(t, fields, "name")

	_, err = svc.Register(ctx, models.RegisterInput{Nickname: "taken", Name: "Someone", Email: "new@example.com", Password: "123456"})
	assert.Contains(t, fieldErrors(t, err), NonFieldErrors)
}

func TestUpdateProfileTelegramChat(t *testing.T) {
	w := newWorld()
	u := w.addUser("alice")
	svc := NewAuthService(fakeUsers{w: w}, "test-secret", time.Hour, zap.NewNop())
	ctx := context.Background()

	chat := int64(555)
	updated, err := svc.UpdateProfile(ctx, u.ID, models.UpdateProfileInput{TelegramChatID: &chat})
	require.NoError(t, err)
	require.NotNil(t, updated.TelegramChatID)
	assert.Equal(t, chat, *updated.TelegramChatID)

	zero := int64(0)
	updated, err = svc.UpdateProfile(ctx, u.ID, models.UpdateProfileInput{TelegramChatID: &zero})
	require.NoError(t, err)
	assert.Nil(t, updated.TelegramChatID)

	_, err = svc.UpdateProfile(ctx, 9999, models.UpdateProfileInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}
