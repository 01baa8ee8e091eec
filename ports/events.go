package ports

import "context"

// EventPublisher publishes auth lifecycle events so other parts of the
// application can react to sign-in and sign-out.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, kind, account, attemptID string) error
}
