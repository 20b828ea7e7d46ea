package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// JWT claim names shared with the auth middleware.
const (
	ClaimUserID = "user_id"
	ClaimRole   = "role"
	RoleAdmin   = "admin"
	RolePlayer  = "player"
)

const DefaultTokenTTL = 15 * time.Minute

var ErrAuthInvalidCredentials = fmt.Errorf("%w: invalid bot key", models.ErrPermission)

// TokenInput is sent by the chat frontend, which vouches for the user it
// acts on behalf of.
type TokenInput struct {
	BotKey  string `json:"bot_key"`
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

type AuthService interface {
	IssueToken(ctx context.Context, input TokenInput) (token string, expiresAt time.Time, err error)
}

type authService struct {
	botKeyHash []byte
	jwtSecret  []byte
	ttl        time.Duration
	clock      clock.Clock
}

func NewAuthService(botKeyHash string, jwtSecret string, ttl time.Duration, clk clock.Clock) AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &authService{
		botKeyHash: []byte(botKeyHash),
		jwtSecret:  []byte(jwtSecret),
		ttl:        ttl,
		clock:      clk,
	}
}

func HashBotKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash bot key: %w", err)
	}
	return string(hash), nil
}

func (s *authService) IssueToken(ctx context.Context, input TokenInput) (string, time.Time, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: user_id is required", models.ErrValidation)
	}
	if len(s.botKeyHash) == 0 {
		return "", time.Time{}, ErrAuthInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.botKeyHash, []byte(input.BotKey)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", time.Time{}, ErrAuthInvalidCredentials
		}
		return "", time.Time{}, fmt.Errorf("failed to verify bot key: %w", err)
	}

	role := RolePlayer
	if input.IsAdmin {
		role = RoleAdmin
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		ClaimUserID: input.UserID,
		ClaimRole:   role,
		"exp":       expiresAt.Unix(),
		"iat":       now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}
