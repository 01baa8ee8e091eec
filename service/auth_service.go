package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// consumedChallenges bounds how many used nonces are remembered for replay rejection.
const consumedChallenges = 1024

// Lifecycle event kinds published through ports.EventPublisher.
const (
	EventSignedIn     = "signed_in"
	EventSignedOut    = "signed_out"
	EventInvalidated  = "invalidated"
	EventDisconnected = "disconnected"
)

// AuthService drives the wallet sign-in flow on the client: connect to the
// signing agent, fetch a challenge, build and sign the message, verify it with
// the relying party and hold the resulting session.
//
// Only one attempt runs at a time. Results of an attempt that was cancelled,
// or that was overtaken by a disconnect or sign-out, are discarded.
type AuthService struct {
	agent    ports.Agent
	backend  ports.Backend
	builder  core.MessageBuilder
	store    ports.CredentialStore
	eventPub ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool

	mu       sync.Mutex
	state    core.State
	account  core.Account
	session  core.Session
	scope    string // credential store scope of the active session
	epoch    uint64 // bumped whenever the identity is dropped
	pending  *attempt
	consumed lru.BasicLRU[string, struct{}]
}

// attempt is the challenge currently awaiting verification.
type attempt struct {
	id      string
	nonce   string
	account core.Account
	epoch   uint64
}

// NewAuthService creates the client. A nil agent means no signing agent is
// present; a nil store keeps the credential in memory only; a nil eventPub
// disables lifecycle events.
func NewAuthService(
	agent ports.Agent,
	backend ports.Backend,
	builder core.MessageBuilder,
	store ports.CredentialStore,
	eventPub ports.EventPublisher,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		agent:    agent,
		backend:  backend,
		builder:  builder,
		store:    store,
		eventPub: eventPub,
		logger:   logger.With("component", "walletauth"),
		now:      time.Now,
		state:    core.StateDisconnected,
		consumed: lru.NewBasicLRU[string, struct{}](consumedChallenges),
	}
}

// SignIn runs the whole pipeline: connect if needed, fetch a fresh challenge,
// build and sign the message, and verify it. Any failure leaves the state as
// it was before the call. When already authenticated the current session is
// returned.
func (s *AuthService) SignIn(ctx context.Context) (core.Session, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return core.Session{}, core.ErrAttemptInProgress
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	if s.state == core.StateAuthenticated {
		session := s.session
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	if _, err := s.connect(ctx); err != nil {
		s.logFailure("connect", err)
		return core.Session{}, err
	}

	ch, err := s.fetchChallenge(ctx)
	if err != nil {
		s.logFailure("challenge", err)
		return core.Session{}, err
	}

	session, err := s.complete(ctx, ch)
	if err != nil {
		s.abandon(ch.Nonce)
		s.logFailure("sign-in", err)
		return core.Session{}, err
	}
	return session, nil
}

func (s *AuthService) complete(ctx context.Context, ch core.Challenge) (core.Session, error) {
	msg, err := s.buildMessage(ctx, ch)
	if err != nil {
		return core.Session{}, err
	}
	signed, err := s.sign(ctx, msg)
	if err != nil {
		return core.Session{}, err
	}
	return s.verify(ctx, signed)
}

// guarded runs fn as a single-stage attempt.
func guarded[T any](s *AuthService, fn func() (T, error)) (T, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		var zero T
		return zero, core.ErrAttemptInProgress
	}
	defer s.inFlight.Store(false)
	return fn()
}

// agentError maps an agent failure onto the attempt taxonomy. rejected is the
// kind reported when the user declined.
func agentError(ctx context.Context, err, rejected error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", core.ErrAttemptCancelled, ctx.Err())
	case errors.Is(err, ports.ErrRejected):
		return fmt.Errorf("%w: %v", rejected, err)
	default:
		return fmt.Errorf("%w: %v", core.ErrAgentCommunication, err)
	}
}

func (s *AuthService) publish(ctx context.Context, kind string, account core.Account, attemptID string) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishAuthEvent(ctx, kind, account.String(), attemptID); err != nil {
		// The transition already happened; a lost event is not worth failing it.
		s.logger.Warn("failed to publish auth event", "kind", kind, "error", err)
	}
}

func (s *AuthService) logFailure(stage string, err error) {
	kind := core.Kind(err)
	if kind == nil {
		kind = err
	}
	s.logger.Warn("sign-in stage failed", "stage", stage, "kind", kind.Error())
	s.logger.Debug("sign-in stage failure detail", "stage", stage, "error", err)
}
