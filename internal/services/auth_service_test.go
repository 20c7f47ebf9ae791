package services

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"classline/config"
	"classline/internal/domain/user"
	"classline/internal/repository"
	classline_errors "classline/pkg/errors"
)

func newAuthFixture(t *testing.T) (*AuthService, user.User) {
	t.Helper()

	repo := repository.NewMemoryUserRepository()
	hash, err := bcrypt.GenerateFromPassword([]byte("Correct@123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	u := newTestUser("instructor", user.RoleInstructor)
	u.PasswordHash = string(hash)
	if err := repo.Create(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiryMin: 5}
	return NewAuthService(repo, cfg), u
}

func TestLoginIssuesToken(t *testing.T) {
	svc, u := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), LoginInput{Email: u.Email, Password: "Correct@123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("Login() returned empty token")
	}
	if resp.User.ID != u.ID {
		t.Errorf("Login() user = %s, want %s", resp.User.ID, u.ID)
	}

	principal, err := svc.ParsePrincipal(resp.AccessToken)
	if err != nil {
		t.Fatalf("ParsePrincipal() error = %v", err)
	}
	if principal.ID != u.ID || principal.Role != u.Role || principal.DisplayName != u.DisplayName {
		t.Errorf("ParsePrincipal() = %+v, want identity of %s", principal, u.ID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, u := newAuthFixture(t)

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"wrong password", u.Email, "nope", classline_errors.ErrUnauthorized},
		{"unknown email", "ghost@classline.dev", "Correct@123", classline_errors.ErrUnauthorized},
		{"missing fields", "", "", classline_errors.ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), LoginInput{Email: tc.email, Password: tc.password})
			if !errors.Is(err, tc.want) {
				t.Errorf("Login() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)

	u := newTestUser("disabled", user.RoleStudent)
	u.PasswordHash = string(hash)
	u.IsActive = false
	if err := repo.Create(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := NewAuthService(repo, &config.Config{JWTSecret: "s", JWTExpiryMin: 5})
	_, err := svc.Login(context.Background(), LoginInput{Email: u.Email, Password: "pw"})
	if !errors.Is(err, classline_errors.ErrForbidden) {
		t.Errorf("Login() error = %v, want ErrForbidden", err)
	}
}

func TestParsePrincipalRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.ParsePrincipal(token); !errors.Is(err, classline_errors.ErrUnauthorized) {
			t.Errorf("ParsePrincipal(%q) error = %v, want ErrUnauthorized", token, err)
		}
	}
}

func TestParsePrincipalRejectsForeignSignature(t *testing.T) {
	svc, u := newAuthFixture(t)

	otherRepo := repository.NewMemoryUserRepository()
	record := u
	if err := otherRepo.Create(context.Background(), &record); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	other := NewAuthService(otherRepo, &config.Config{JWTSecret: "different-secret", JWTExpiryMin: 5})

	token, _, err := other.IssueAccessToken(u)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if _, err := svc.ParsePrincipal(token); !errors.Is(err, classline_errors.ErrUnauthorized) {
		t.Errorf("ParsePrincipal() with foreign signature error = %v, want ErrUnauthorized", err)
	}
}
