package service

import (
	"context"
	"fmt"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// SignOut ends the session locally: the credential is removed from the store
// and the cached account is cleared. The agent connection is kept, so the
// state returns to Connected. The relying party is not contacted.
func (s *AuthService) SignOut(ctx context.Context) error {
	return s.endSession(ctx, core.EventSignedOut, EventSignedOut, true)
}

// InvalidateSession drops a session the relying party no longer accepts. The
// account stays cached so a new sign-in does not prompt for access again.
func (s *AuthService) InvalidateSession(ctx context.Context) error {
	return s.endSession(ctx, core.EventInvalidated, EventInvalidated, false)
}

func (s *AuthService) endSession(ctx context.Context, ev core.Event, kind string, dropAccount bool) error {
	s.mu.Lock()
	next, err := core.Transition(s.state, ev)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	session, scope := s.session, s.scope
	s.state = next
	s.resetLocked(dropAccount)
	s.mu.Unlock()

	s.logger.Info("session ended", "reason", ev.String(), "account", session.Account.String())
	err = s.dropCredential(ctx, scope)
	s.publish(ctx, kind, session.Account, session.ID)
	return err
}

// resetLocked clears the session and any pending challenge. s.mu must be held.
func (s *AuthService) resetLocked(dropAccount bool) {
	s.session = core.Session{}
	s.scope = ""
	if s.pending != nil {
		s.consumed.Add(s.pending.nonce, struct{}{})
		s.pending = nil
	}
	if dropAccount {
		s.account = ""
		s.epoch++
	}
}

func (s *AuthService) dropCredential(ctx context.Context, scope string) error {
	if s.store == nil || scope == "" {
		return nil
	}
	if err := s.store.Delete(ctx, scope); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// GetState returns the current state without side effects.
func (s *AuthService) GetState() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Snapshot{
		State:         s.state,
		Authenticated: s.state == core.StateAuthenticated && s.session.Authenticated,
		Account:       s.account,
		Token:         s.session.Token,
	}
}

// Credential returns the session credential for authenticating requests to
// the relying party.
func (s *AuthService) Credential(ctx context.Context) (string, error) {
	s.mu.Lock()
	state, scope, token := s.state, s.scope, s.session.Token
	s.mu.Unlock()

	if state != core.StateAuthenticated {
		return "", ports.ErrNoCredential
	}
	if s.store == nil {
		return token, nil
	}
	return s.store.Get(ctx, scope)
}
