package services

import (
	"context"

	"github.com/google/uuid"

	"classline/internal/domain/user"
)

// Principal is the verified identity extracted from an access token.
// Display name and role are snapshotted into messages at send time.
type Principal struct {
	ID          uuid.UUID
	Role        user.Role
	DisplayName string
}

// AsUser adapts the principal for APIs that take a user record.
func (p Principal) AsUser() user.User {
	return user.User{ID: p.ID, Role: p.Role, DisplayName: p.DisplayName}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
