package agent

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/layer-3/walletauth/ports"
)

// PromptFunc asks the user to approve a request. Returning false rejects it.
type PromptFunc func(ctx context.Context, request string) bool

// KeyAgent signs with a key held in process. It exists for local development
// and tests, where no wallet is around to talk to.
type KeyAgent struct {
	key     *ecdsa.PrivateKey
	address common.Address
	prompt  PromptFunc

	mu      sync.Mutex
	chainID int64

	feed event.Feed
}

// NewKeyAgent creates an agent for key on chainID. A nil prompt approves
// every request.
func NewKeyAgent(key *ecdsa.PrivateKey, chainID int64, prompt PromptFunc) *KeyAgent {
	return &KeyAgent{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		prompt:  prompt,
		chainID: chainID,
	}
}

// GenerateKeyAgent creates an agent with a fresh random key.
func GenerateKeyAgent(chainID int64, prompt PromptFunc) (*KeyAgent, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return NewKeyAgent(key, chainID, prompt), nil
}

// Address returns the agent's single account.
func (a *KeyAgent) Address() common.Address {
	return a.address
}

func (a *KeyAgent) RequestAccounts(ctx context.Context) ([]string, error) {
	if !a.approve(ctx, "connect "+a.address.Hex()) {
		return nil, ports.ErrRejected
	}
	return []string{a.address.Hex()}, nil
}

func (a *KeyAgent) ChainID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chainID, nil
}

// SignMessage signs the EIP-191 hash of text. V is 27 or 28 as wallets return it.
func (a *KeyAgent) SignMessage(ctx context.Context, account, text string) (string, error) {
	if !strings.EqualFold(account, a.address.Hex()) {
		return "", fmt.Errorf("unknown account %s", account)
	}
	if !a.approve(ctx, text) {
		return "", ports.ErrRejected
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), a.key)
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SwitchChain changes the selected network.
func (a *KeyAgent) SwitchChain(chainID int64) {
	a.mu.Lock()
	a.chainID = chainID
	a.mu.Unlock()
}

// Disconnect tells subscribers the agent went away.
func (a *KeyAgent) Disconnect() {
	a.feed.Send(ports.AgentEvent{Disconnected: true})
}

// SubscribeEvents delivers connection events to sink.
func (a *KeyAgent) SubscribeEvents(sink chan<- ports.AgentEvent) event.Subscription {
	return a.feed.Subscribe(sink)
}

func (a *KeyAgent) approve(ctx context.Context, request string) bool {
	if a.prompt == nil {
		return true
	}
	return a.prompt(ctx, request)
}
