package agent

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/layer-3/walletauth/ports"
)

// codeUserRejected is the EIP-1193 provider error for a declined request.
const codeUserRejected = 4001

// RPCAgent talks to a wallet that exposes the EIP-1193 methods over JSON-RPC
// (a desktop wallet's local endpoint, a signer daemon, a bridge to a browser
// extension). Over websocket or IPC it reports account changes and dropped
// connections through SubscribeEvents.
type RPCAgent struct {
	client *rpc.Client
}

// DialRPCAgent connects to the wallet endpoint at rawurl.
func DialRPCAgent(ctx context.Context, rawurl string) (*RPCAgent, error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dialing signing agent: %w", err)
	}
	return NewRPCAgent(client), nil
}

// NewRPCAgent wraps an existing RPC client.
func NewRPCAgent(client *rpc.Client) *RPCAgent {
	return &RPCAgent{client: client}
}

// RequestAccounts calls eth_requestAccounts.
func (a *RPCAgent) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := a.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, callError("eth_requestAccounts", err)
	}
	return accounts, nil
}

// ChainID calls eth_chainId and decodes the hex quantity.
func (a *RPCAgent) ChainID(ctx context.Context) (int64, error) {
	var id hexutil.Uint64
	if err := a.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, callError("eth_chainId", err)
	}
	if uint64(id) > math.MaxInt64 {
		return 0, fmt.Errorf("eth_chainId: chain id %d out of range", uint64(id))
	}
	return int64(id), nil
}

// SignMessage calls personal_sign with the hex encoded UTF-8 text.
func (a *RPCAgent) SignMessage(ctx context.Context, account, text string) (string, error) {
	var sig string
	if err := a.client.CallContext(ctx, &sig, "personal_sign", hexutil.Encode([]byte(text)), account); err != nil {
		return "", callError("personal_sign", err)
	}
	return sig, nil
}

// SubscribeEvents follows the wallet's accountsChanged subscription. The
// subscription ending, which includes the connection dropping, is reported as
// a disconnect. Endpoints that cannot push notifications (plain HTTP) deliver
// no events, so disconnects are not observed there.
func (a *RPCAgent) SubscribeEvents(sink chan<- ports.AgentEvent) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		accounts := make(chan []string)
		sub, err := a.client.EthSubscribe(ctx, accounts, "accountsChanged")
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			<-quit
			return nil
		}
		if errors.Is(err, rpc.ErrClientQuit) {
			select {
			case sink <- ports.AgentEvent{Disconnected: true}:
			case <-quit:
			}
			return nil
		}
		if err != nil {
			select {
			case <-quit:
				return nil
			default:
				return callError("eth_subscribe", err)
			}
		}
		defer sub.Unsubscribe()

		for {
			select {
			case accs := <-accounts:
				select {
				case sink <- ports.AgentEvent{Accounts: accs}:
				case <-quit:
					return nil
				}
			case <-sub.Err():
				select {
				case sink <- ports.AgentEvent{Disconnected: true}:
				case <-quit:
				}
				return nil
			case <-quit:
				return nil
			}
		}
	})
}

// Close closes the underlying connection.
func (a *RPCAgent) Close() {
	a.client.Close()
}

func callError(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return fmt.Errorf("%s: %w: %v", method, ports.ErrRejected, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}
