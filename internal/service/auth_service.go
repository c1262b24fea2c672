package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ujianku/ujianku-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Token subject types. A student token is scoped to a single exam; a guru
// token is scoped to the whole account.
const (
	TokenTypeStudent = "student"
	TokenTypeGuru    = "guru"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrSessionRevoked = errors.New("session has been replaced by a newer login")
)

// Claims is the JWT payload for both student and guru tokens. ExamID is
// only set for student tokens.
type Claims struct {
	UserID    int    `json:"uid"`
	TokenType string `json:"typ"`
	ExamID    string `json:"exam_id,omitempty"`
	Kelas     string `json:"kelas,omitempty"`
	jwt.RegisteredClaims
}

// AuthService issues and validates tokens and enforces single-device
// student logins through Redis.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// GenerateStudentToken issues a token bound to one student and one exam.
// The token ID is stored in Redis so that a later login from another
// device invalidates this one.
func (s *AuthService) GenerateStudentToken(ctx context.Context, studentID int, examID uuid.UUID, kelas string) (string, error) {
	jti := uuid.NewString()
	claims := Claims{
		UserID:    studentID,
		TokenType: TokenTypeStudent,
		ExamID:    examID.String(),
		Kelas:     kelas,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTExpiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign student token: %w", err)
	}

	key := config.CacheKey.StudentSessionKey(studentID)
	if err := s.rdb.Set(ctx, key, jti, s.cfg.JWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("register student session: %w", err)
	}
	return token, nil
}

// GenerateGuruToken issues an account-scoped token for a guru.
func (s *AuthService) GenerateGuruToken(guruID int) (string, error) {
	claims := Claims{
		UserID:    guruID,
		TokenType: TokenTypeGuru,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTExpiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign guru token: %w", err)
	}
	return token, nil
}

// ValidateToken parses and verifies a token string.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateStudentSession checks that the token is still the active one for
// this student. Returns ErrSessionRevoked when a newer login exists.
func (s *AuthService) ValidateStudentSession(ctx context.Context, claims *Claims) error {
	key := config.CacheKey.StudentSessionKey(claims.UserID)
	jti, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrSessionRevoked
	}
	if err != nil {
		return fmt.Errorf("check student session: %w", err)
	}
	if jti != claims.ID {
		return ErrSessionRevoked
	}
	return nil
}

// ResetStudentSession removes the active-session marker, forcing the
// student to log in again.
func (s *AuthService) ResetStudentSession(ctx context.Context, studentID int) error {
	key := config.CacheKey.StudentSessionKey(studentID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset student session: %w", err)
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
