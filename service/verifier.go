package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/layer-3/walletauth/core"
)

// Verify submits the signed message to the relying party and, on success,
// makes the returned session current. The challenge is consumed whatever the
// outcome, so verifying the same message twice always fails the second time.
func (s *AuthService) Verify(ctx context.Context, signed core.SignedMessage) (core.Session, error) {
	return guarded(s, func() (core.Session, error) {
		session, err := s.verify(ctx, signed)
		if err != nil {
			s.logFailure("verify", err)
		}
		return session, err
	})
}

func (s *AuthService) verify(ctx context.Context, signed core.SignedMessage) (core.Session, error) {
	msg := signed.Message()

	s.mu.Lock()
	p := s.pending
	replayed := s.consumed.Contains(msg.Nonce)
	s.consumed.Add(msg.Nonce, struct{}{})
	if p != nil && p.nonce == msg.Nonce {
		s.pending = nil
	}
	s.mu.Unlock()

	switch {
	case replayed:
		return core.Session{}, fmt.Errorf("%w: challenge already used", core.ErrVerificationFailed)
	case p == nil || p.nonce != msg.Nonce || p.account != msg.Address:
		return core.Session{}, fmt.Errorf("%w: challenge is not pending", core.ErrVerificationFailed)
	case signed.ChainSwitched():
		return core.Session{}, fmt.Errorf("%w: network changed while signing", core.ErrVerificationFailed)
	}

	res, err := s.backend.Verify(ctx, signed.Text(), signed.Signature().String())
	if ctx.Err() != nil {
		return core.Session{}, fmt.Errorf("%w: %v", core.ErrAttemptCancelled, ctx.Err())
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("%w: %v", core.ErrVerificationFailed, err)
	}
	if !res.Success || res.Token == "" {
		return core.Session{}, core.ErrVerificationFailed
	}

	session := core.Session{
		ID:            p.id,
		Authenticated: true,
		Account:       p.account,
		Token:         res.Token,
		IssuedAt:      s.now(),
	}
	if err := s.apply(ctx, p, session); err != nil {
		return core.Session{}, err
	}
	return session, nil
}

// apply makes session current unless the attempt that produced it has been
// overtaken.
func (s *AuthService) apply(ctx context.Context, p *attempt, session core.Session) error {
	scope := uuid.NewString()
	if s.store != nil {
		if err := s.store.Put(ctx, scope, session.Token); err != nil {
			return fmt.Errorf("%w: storing credential: %v", core.ErrVerificationFailed, err)
		}
	}

	s.mu.Lock()
	if ctx.Err() != nil || p.epoch != s.epoch || p.account != s.account {
		s.mu.Unlock()
		s.discardScope(scope)
		return core.ErrAttemptCancelled
	}
	next, err := core.Transition(s.state, core.EventVerified)
	if err != nil {
		s.mu.Unlock()
		s.discardScope(scope)
		return err
	}
	s.state = next
	s.session = session
	s.scope = scope
	s.mu.Unlock()

	s.logger.Info("signed in", "account", session.Account.String(), "attempt", session.ID)
	s.publish(ctx, EventSignedIn, session.Account, session.ID)
	return nil
}

// discardScope removes a credential written for a session that never became
// current. The caller's context may already be done, so a fresh one is used.
func (s *AuthService) discardScope(scope string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(context.Background(), scope); err != nil {
		s.logger.Warn("failed to discard credential", "error", err)
	}
}
