package ports

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/event"
)

// ErrRejected is returned by agents when the user declines a request
// (EIP-1193 error 4001).
var ErrRejected = errors.New("user rejected request")

// Agent is the signing agent capability. Implementations never expose key
// material; they sign on the user's behalf after the user approves.
type Agent interface {
	// RequestAccounts asks for access and returns the user's accounts, the
	// active one first.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the chain the agent currently has selected.
	ChainID(ctx context.Context) (int64, error)

	// SignMessage signs text as an EIP-191 personal message and returns the
	// hex encoded signature.
	SignMessage(ctx context.Context, account string, text string) (string, error)
}

// AgentEvent is delivered when the agent's connection state changes.
type AgentEvent struct {
	Disconnected bool
	Accounts     []string
}

// AgentEvents is implemented by agents that can report disconnects.
type AgentEvents interface {
	SubscribeEvents(sink chan<- AgentEvent) event.Subscription
}
