package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the signed-in account a request acts for. Its ID is the
// owning-user identifier of every product and transaction it touches.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
}

func (i *Identity) Valid() bool {
	return i != nil && i.ID != uuid.Nil
}

// DisplayName is what receipts print as the cashier.
func (i *Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	return i.Email
}

// FullNamePtr returns nil when no full name is known.
func (i *Identity) FullNamePtr() *string {
	if i.FullName == "" {
		return nil
	}
	name := i.FullName
	return &name
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id.Valid()
}
