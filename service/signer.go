package service

import (
	"context"
	"fmt"

	"github.com/layer-3/walletauth/core"
)

// BuildMessage reads the agent's selected chain and builds the message for ch.
func (s *AuthService) BuildMessage(ctx context.Context, ch core.Challenge) (core.ChallengeMessage, error) {
	return guarded(s, func() (core.ChallengeMessage, error) {
		return s.buildMessage(ctx, ch)
	})
}

func (s *AuthService) buildMessage(ctx context.Context, ch core.Challenge) (core.ChallengeMessage, error) {
	account, err := s.connectedAccount()
	if err != nil {
		return core.ChallengeMessage{}, err
	}
	chainID, err := s.agent.ChainID(ctx)
	if err != nil {
		return core.ChallengeMessage{}, agentError(ctx, err, core.ErrAgentCommunication)
	}
	if chainID <= 0 {
		return core.ChallengeMessage{}, fmt.Errorf("%w: agent reported chain id %d", core.ErrAgentCommunication, chainID)
	}
	return s.builder.Build(account, ch, chainID)
}

// Sign asks the agent to sign the canonical text of msg. The signer only
// passes text to the agent and a signature back; it never sees key material.
func (s *AuthService) Sign(ctx context.Context, msg core.ChallengeMessage) (core.SignedMessage, error) {
	return guarded(s, func() (core.SignedMessage, error) {
		signed, err := s.sign(ctx, msg)
		if err != nil {
			s.logFailure("sign", err)
		}
		return signed, err
	})
}

func (s *AuthService) sign(ctx context.Context, msg core.ChallengeMessage) (core.SignedMessage, error) {
	account, err := s.connectedAccount()
	if err != nil {
		return core.SignedMessage{}, err
	}
	if msg.Address != account {
		return core.SignedMessage{}, fmt.Errorf("%w: message is for %s", core.ErrNotConnected, msg.Address)
	}

	raw, err := s.agent.SignMessage(ctx, account.String(), msg.String())
	if err != nil {
		return core.SignedMessage{}, agentError(ctx, err, core.ErrSigningRejected)
	}
	sig, err := core.ParseSignature(raw)
	if err != nil {
		return core.SignedMessage{}, fmt.Errorf("%w: %v", core.ErrAgentCommunication, err)
	}

	chainID, err := s.agent.ChainID(ctx)
	if err != nil {
		return core.SignedMessage{}, agentError(ctx, err, core.ErrAgentCommunication)
	}
	return core.NewSignedMessage(msg, sig, chainID)
}

func (s *AuthService) connectedAccount() (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.StateDisconnected || s.account == "" {
		return "", core.ErrNotConnected
	}
	return s.account, nil
}
