package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Challenge is a single-use nonce issued by the relying party for one
// sign-in attempt, bound to the account that requested it.
type Challenge struct {
	Nonce    string
	Account  Account
	IssuedAt time.Time
}

// NewChallenge validates a nonce received from the backend.
func NewChallenge(nonce string, account Account, issuedAt time.Time) (Challenge, error) {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" || strings.ContainsAny(nonce, "\r\n") {
		return Challenge{}, fmt.Errorf("%w: malformed nonce", ErrChallengeRequestFailed)
	}
	if account == "" {
		return Challenge{}, ErrNotConnected
	}
	return Challenge{
		Nonce:    nonce,
		Account:  account,
		IssuedAt: issuedAt.UTC().Truncate(time.Second),
	}, nil
}

// Signature is a 65-byte secp256k1 signature in hex as produced by personal_sign.
type Signature string

func (s Signature) String() string { return string(s) }

// ParseSignature checks that s is a 0x-prefixed 65-byte hex string.
func ParseSignature(s string) (Signature, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != 65 {
		return "", fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidSignature, len(b))
	}
	return Signature(hexutil.Encode(b)), nil
}

// Bytes decodes the signature.
func (s Signature) Bytes() []byte {
	b, _ := hexutil.Decode(string(s))
	return b
}

// SignedMessage pairs a ChallengeMessage with the signature the agent produced
// over its canonical text. The only way to obtain one is NewSignedMessage, so a
// verify call always has a message and signature that belong together.
type SignedMessage struct {
	message       ChallengeMessage
	text          string
	signature     Signature
	chainAtSigned int64
}

// NewSignedMessage binds sig to msg. chainAtSigned is the chain id the agent
// reported once signing completed.
func NewSignedMessage(msg ChallengeMessage, sig Signature, chainAtSigned int64) (SignedMessage, error) {
	if err := msg.Validate(); err != nil {
		return SignedMessage{}, err
	}
	if sig == "" {
		return SignedMessage{}, ErrInvalidSignature
	}
	return SignedMessage{
		message:       msg,
		text:          msg.String(),
		signature:     sig,
		chainAtSigned: chainAtSigned,
	}, nil
}

func (s SignedMessage) Message() ChallengeMessage { return s.message }

// Text is the exact canonical text the signature covers.
func (s SignedMessage) Text() string { return s.text }

func (s SignedMessage) Signature() Signature { return s.signature }

// ChainSwitched reports whether the agent's network changed between building
// the message and finishing the signature.
func (s SignedMessage) ChainSwitched() bool {
	return s.chainAtSigned != s.message.ChainID
}
