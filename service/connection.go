package service

import (
	"context"
	"fmt"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// Connect requests access to the signing agent and returns the active
// account. When an account is already cached it is returned without
// prompting the user again.
func (s *AuthService) Connect(ctx context.Context) (core.Account, error) {
	if account, ok := s.cachedAccount(); ok {
		return account, nil
	}
	return guarded(s, func() (core.Account, error) {
		account, err := s.connect(ctx)
		if err != nil {
			s.logFailure("connect", err)
		}
		return account, err
	})
}

func (s *AuthService) cachedAccount() (core.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != core.StateDisconnected && s.account != "" {
		return s.account, true
	}
	return "", false
}

func (s *AuthService) connect(ctx context.Context) (core.Account, error) {
	if s.agent == nil {
		return "", core.ErrAgentUnavailable
	}
	if account, ok := s.cachedAccount(); ok {
		return account, nil
	}

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	accounts, err := s.agent.RequestAccounts(ctx)
	if err != nil {
		return "", agentError(ctx, err, core.ErrUserRejected)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: agent returned no accounts", core.ErrUserRejected)
	}
	account, err := core.ParseAccount(accounts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrAgentCommunication, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || epoch != s.epoch {
		return "", core.ErrAttemptCancelled
	}
	next, err := core.Transition(s.state, core.EventConnected)
	if err != nil {
		return "", err
	}
	s.state = next
	s.account = account
	s.logger.Info("connected", "account", account.String())
	return account, nil
}

// Disconnect handles the agent going away: the session, the cached account
// and any pending challenge are dropped and the state returns to
// Disconnected.
func (s *AuthService) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	session, scope := s.session, s.scope
	s.state, _ = core.Transition(s.state, core.EventAgentDisconnected)
	s.resetLocked(true)
	s.mu.Unlock()

	if prev == core.StateDisconnected {
		return nil
	}
	s.logger.Info("agent disconnected", "previous_state", prev.String())
	err := s.dropCredential(ctx, scope)
	s.publish(ctx, EventDisconnected, session.Account, session.ID)
	return err
}

// WatchAgent follows the agent's connection events until ctx is done. A
// disconnect, or the agent switching to a different account, disconnects the
// client. Agents that cannot report events make this a no-op.
func (s *AuthService) WatchAgent(ctx context.Context) error {
	events, ok := s.agent.(ports.AgentEvents)
	if !ok {
		return nil
	}

	ch := make(chan ports.AgentEvent, 4)
	sub := events.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-ch:
			s.handleAgentEvent(ctx, ev)
		case err := <-sub.Err():
			// An agent may queue a final disconnect just before ending the subscription.
			for {
				select {
				case ev := <-ch:
					s.handleAgentEvent(ctx, ev)
				default:
					return err
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *AuthService) handleAgentEvent(ctx context.Context, ev ports.AgentEvent) {
	if !s.identityLost(ev) {
		return
	}
	if err := s.Disconnect(ctx); err != nil {
		s.logger.Warn("disconnect cleanup failed", "error", err)
	}
}

func (s *AuthService) identityLost(ev ports.AgentEvent) bool {
	if ev.Disconnected || len(ev.Accounts) == 0 {
		return true
	}
	account, err := core.ParseAccount(ev.Accounts[0])
	if err != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != "" && s.account != account
}
