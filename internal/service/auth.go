package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"nluhub/internal/models"
	"nluhub/internal/repository"
)

var ErrInvalidCredentials = errors.New("unable to log in with provided credentials")

var nicknamePattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

type AuthService interface {
	Register(ctx context.Context, input models.RegisterInput) (*models.User, error)
	Login(ctx context.Context, input models.LoginInput) (string, time.Time, error) // Returns JWT token, expiration time, and error
	ParseToken(tokenString string) (*models.Claims, error)
	Profile(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, input models.UpdateProfileInput) (*models.User, error)
}

type authService struct {
	users     repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthService(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) AuthService {
	return &authService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

func (s *authService) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	verr := &ValidationError{}
	if len(input.Nickname) > 16 || !nicknamePattern.MatchString(input.Nickname) {
		verr.Add("nickname", "Enter a valid nickname: letters, numbers, underscores or hyphens, at most 16 characters.")
	}
	if strings.TrimSpace(input.Name) == "" || len(input.Name) > 32 {
		verr.Add("name", "Ensure this field has between 1 and 32 characters.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Nickname:     input.Nickname,
		Name:         input.Name,
		Email:        strings.ToLower(input.Email),
		PasswordHash: passwordHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, invalid(NonFieldErrors, "A user with that nickname or email already exists.")
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("nickname", user.Nickname))
	return user, nil
}

func (s *authService) Login(ctx context.Context, input models.LoginInput) (string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if user == nil || !verifyPassword(user.PasswordHash, input.Password) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	expirationTime := time.Now().Add(s.tokenTTL)
	claims := &models.Claims{
		UserID:   user.ID,
		Nickname: user.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in successfully.", zap.String("nickname", user.Nickname))
	return tokenString, expirationTime, nil
}

func (s *authService) ParseToken(tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (s *authService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID int64, input models.UpdateProfileInput) (*models.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" || len(*input.Name) > 32 {
			return nil, invalid("name", "Ensure this field has between 1 and 32 characters.")
		}
		user.Name = *input.Name
	}
	if input.TelegramChatID != nil {
		// zero unlinks the chat
		if *input.TelegramChatID == 0 {
			user.TelegramChatID = nil
		} else {
			user.TelegramChatID = input.TelegramChatID
		}
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, invalid("telegram_chat_id", "This chat is already linked to another user.")
		}
		return nil, err
	}
	return user, nil
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// hashPassword uses Argon2id, stored as $argon2id$v=19$m=65536,t=1,p=4$SALT$HASH.
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, argonMemory, argonTime, argonThreads, encodedSalt, encodedHash), nil
}

// verifyPassword compares a plaintext password with a hashed password.
func verifyPassword(hashedPassword, password string) bool {
	// ["", "argon2id", "v=19", "m=65536,t=1,p=4", "salt", "hash"]
	sections := strings.Split(hashedPassword, "$")
	if len(sections) != 6 || sections[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(sections[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(sections[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(sections[5])
	if err != nil {
		return false
	}

	comparisonHash := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))
	return subtle.ConstantTimeCompare(comparisonHash, hash) == 1
}
