package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classline/config"
	"classline/internal/domain/user"
	"classline/internal/repository"
	classline_errors "classline/pkg/errors"
)

// AuthService issues and verifies HS256 access tokens. Account
// provisioning (access codes, verification) lives outside this service;
// it only needs a user record with a password hash to log in against.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryMin) * time.Minute,
	}
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        user.User `json:"user"`
}

type AccessClaims struct {
	UserID string `json:"sub"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResponse, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return AuthResponse{}, fmt.Errorf("email and password are required: %w", classline_errors.ErrInvalidInput)
	}

	u, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		if err == classline_errors.ErrNotFound {
			return AuthResponse{}, classline_errors.ErrUnauthorized
		}
		return AuthResponse{}, err
	}

	if !u.IsActive {
		return AuthResponse{}, classline_errors.ErrForbidden
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return AuthResponse{}, classline_errors.ErrUnauthorized
	}

	token, expiresIn, err := s.IssueAccessToken(u)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		User:        u,
	}, nil
}

func (s *AuthService) IssueAccessToken(u user.User) (string, int64, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: u.ID.String(),
		Role:   string(u.Role),
		Name:   u.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.accessTTL.Seconds()), nil
}

func (s *AuthService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, classline_errors.ErrUnauthorized
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, classline_errors.ErrUnauthorized
	}
	return claims, nil
}

// ParsePrincipal verifies a token and returns the identity it carries.
func (s *AuthService) ParsePrincipal(tokenString string) (Principal, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return Principal{}, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Principal{}, classline_errors.ErrUnauthorized
	}
	role := user.Role(claims.Role)
	if !role.Valid() {
		return Principal{}, classline_errors.ErrUnauthorized
	}
	return Principal{ID: userID, Role: role, DisplayName: claims.Name}, nil
}
