package agent

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/ports"
)

func TestKeyAgent_SignatureRecoversToAddress(t *testing.T) {
	a, err := GenerateKeyAgent(1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	accs, err := a.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{a.Address().Hex()}, accs)

	text := "localhost wants you to sign in with your Ethereum account:"
	sigHex, err := a.SignMessage(ctx, accs[0], text)
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	assert.GreaterOrEqual(t, sig[crypto.RecoveryIDOffset], byte(27))

	sig[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), crypto.PubkeyToAddress(*pub))
}

func TestKeyAgent_Prompt(t *testing.T) {
	var asked []string
	a, err := GenerateKeyAgent(1, func(ctx context.Context, request string) bool {
		asked = append(asked, request)
		return false
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.RequestAccounts(ctx)
	assert.ErrorIs(t, err, ports.ErrRejected)

	_, err = a.SignMessage(ctx, a.Address().Hex(), "hello")
	assert.ErrorIs(t, err, ports.ErrRejected)
	assert.Equal(t, []string{"connect " + a.Address().Hex(), "hello"}, asked)
}

func TestKeyAgent_UnknownAccount(t *testing.T) {
	a, err := GenerateKeyAgent(1, nil)
	require.NoError(t, err)

	_, err = a.SignMessage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrRejected)
}

func TestKeyAgent_SwitchChain(t *testing.T) {
	a, err := GenerateKeyAgent(1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a.SwitchChain(5)
	id, err := a.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestKeyAgent_DisconnectEvent(t *testing.T) {
	a, err := GenerateKeyAgent(1, nil)
	require.NoError(t, err)

	ch := make(chan ports.AgentEvent, 1)
	sub := a.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	a.Disconnect()
	select {
	case ev := <-ch:
		assert.True(t, ev.Disconnected)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
}
