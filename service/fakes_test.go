package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/layer-3/walletauth/ports"
)

const (
	testAccount   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testSignature = "0x1111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAgent is a scripted signing agent.
type fakeAgent struct {
	mu sync.Mutex

	accounts   []string
	requestErr error
	chainIDs   []int64 // successive ChainID answers, the last one repeats
	chainErr   error
	signErr    error
	signature  string

	requestCalls int
	chainCalls   int
	signed       []string

	// When signGate is set SignMessage reports on signing and waits for the gate.
	signing  chan struct{}
	signGate chan struct{}
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		accounts:  []string{testAccount},
		chainIDs:  []int64{1},
		signature: testSignature,
	}
}

func (a *fakeAgent) RequestAccounts(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requestCalls++
	if a.requestErr != nil {
		return nil, a.requestErr
	}
	return a.accounts, nil
}

func (a *fakeAgent) ChainID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chainErr != nil {
		return 0, a.chainErr
	}
	i := a.chainCalls
	if i >= len(a.chainIDs) {
		i = len(a.chainIDs) - 1
	}
	a.chainCalls++
	return a.chainIDs[i], nil
}

func (a *fakeAgent) SignMessage(ctx context.Context, account, text string) (string, error) {
	if a.signGate != nil {
		a.signing <- struct{}{}
		<-a.signGate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signErr != nil {
		return "", a.signErr
	}
	a.signed = append(a.signed, text)
	return a.signature, nil
}

func (a *fakeAgent) blockSigning() {
	a.signing = make(chan struct{}, 1)
	a.signGate = make(chan struct{})
}

type verifyCall struct {
	message   string
	signature string
}

// fakeBackend hands out nonces in order and answers every verify with result.
type fakeBackend struct {
	mu sync.Mutex

	nonces       []string
	challengeErr error
	result       ports.VerifyResult
	verifyErr    error

	challengeCalls int
	verifies       []verifyCall

	// When verifyGate is set Verify reports on verifying and waits for the gate,
	// ignoring the caller's context like a request already on the wire.
	verifying  chan struct{}
	verifyGate chan struct{}
}

func newFakeBackend(token string) *fakeBackend {
	return &fakeBackend{
		result: ports.VerifyResult{Success: true, Token: token},
	}
}

func (b *fakeBackend) Challenge(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.challengeCalls
	b.challengeCalls++
	if b.challengeErr != nil {
		return "", b.challengeErr
	}
	if n < len(b.nonces) {
		return b.nonces[n], nil
	}
	return fmt.Sprintf("nonce%04d", n), nil
}

func (b *fakeBackend) Verify(ctx context.Context, message, signature string) (ports.VerifyResult, error) {
	if b.verifyGate != nil {
		b.verifying <- struct{}{}
		<-b.verifyGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verifies = append(b.verifies, verifyCall{message: message, signature: signature})
	if b.verifyErr != nil {
		return ports.VerifyResult{}, b.verifyErr
	}
	return b.result, nil
}

func (b *fakeBackend) blockVerify() {
	b.verifying = make(chan struct{}, 1)
	b.verifyGate = make(chan struct{})
}

func (b *fakeBackend) verifyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.verifies)
}

// recordingPublisher remembers published event kinds.
type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) PublishAuthEvent(ctx context.Context, kind, account, attemptID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil
}

func (p *recordingPublisher) Kinds() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.kinds, ",")
}
