package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/layer-3/walletauth/core"
)

// FetchChallenge asks the relying party for a fresh nonce bound to the
// connected account. It never reuses a challenge: a previous challenge that
// was not verified yet is abandoned and can no longer be verified.
func (s *AuthService) FetchChallenge(ctx context.Context) (core.Challenge, error) {
	return guarded(s, func() (core.Challenge, error) {
		ch, err := s.fetchChallenge(ctx)
		if err != nil {
			s.logFailure("challenge", err)
		}
		return ch, err
	})
}

func (s *AuthService) fetchChallenge(ctx context.Context) (core.Challenge, error) {
	s.mu.Lock()
	state, account, epoch := s.state, s.account, s.epoch
	s.mu.Unlock()

	switch {
	case state == core.StateDisconnected || account == "":
		return core.Challenge{}, core.ErrNotConnected
	case state != core.StateConnected:
		return core.Challenge{}, fmt.Errorf("%w: already authenticated", core.ErrInvalidTransition)
	}

	nonce, err := s.backend.Challenge(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return core.Challenge{}, fmt.Errorf("%w: %v", core.ErrAttemptCancelled, ctx.Err())
		}
		return core.Challenge{}, fmt.Errorf("%w: %v", core.ErrChallengeRequestFailed, err)
	}
	ch, err := core.NewChallenge(nonce, account, s.now())
	if err != nil {
		return core.Challenge{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || epoch != s.epoch || s.account != account {
		return core.Challenge{}, core.ErrAttemptCancelled
	}
	if s.consumed.Contains(ch.Nonce) {
		return core.Challenge{}, fmt.Errorf("%w: backend reissued a consumed challenge", core.ErrChallengeRequestFailed)
	}
	if s.pending != nil {
		s.consumed.Add(s.pending.nonce, struct{}{})
	}
	s.pending = &attempt{
		id:      uuid.NewString(),
		nonce:   ch.Nonce,
		account: account,
		epoch:   epoch,
	}
	return ch, nil
}

// abandon consumes nonce and clears it if it is still the pending challenge.
func (s *AuthService) abandon(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed.Add(nonce, struct{}{})
	if s.pending != nil && s.pending.nonce == nonce {
		s.pending = nil
	}
}
