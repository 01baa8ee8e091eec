package ports

import (
	"context"
	"errors"
)

// ErrNoCredential is returned when the store holds nothing for a scope.
var ErrNoCredential = errors.New("no credential stored")

// CredentialStore keeps the session credential for the lifetime of one
// authenticated session. Every credential lives under a scope created per
// session so sign-out can remove exactly what sign-in wrote.
type CredentialStore interface {
	Put(ctx context.Context, scope, credential string) error
	Get(ctx context.Context, scope string) (string, error)
	Delete(ctx context.Context, scope string) error
}
