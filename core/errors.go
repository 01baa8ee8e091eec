package core

import "errors"

// Attempt failures. Every stage of the sign-in pipeline reports exactly one of these.
var (
	ErrAgentUnavailable       = errors.New("signing agent unavailable")
	ErrUserRejected           = errors.New("user rejected the connection request")
	ErrChallengeRequestFailed = errors.New("challenge request failed")
	ErrSigningRejected        = errors.New("user rejected the signature request")
	ErrAgentCommunication     = errors.New("signing agent communication error")
	ErrVerificationFailed     = errors.New("verification failed")
	ErrAttemptInProgress      = errors.New("sign-in attempt already in progress")
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAttemptCancelled  = errors.New("sign-in attempt cancelled")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInvalidMessage    = errors.New("invalid challenge message")
	ErrInvalidSignature  = errors.New("invalid signature")
)

var kinds = []error{
	ErrAgentUnavailable,
	ErrUserRejected,
	ErrChallengeRequestFailed,
	ErrSigningRejected,
	ErrAgentCommunication,
	ErrVerificationFailed,
	ErrAttemptInProgress,
	ErrNotConnected,
	ErrAttemptCancelled,
}

// Kind returns the sentinel from the attempt taxonomy that err carries, or nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// PublicReason maps err onto a message safe to show to the user. Backend and
// agent detail is never included.
func PublicReason(err error) string {
	switch Kind(err) {
	case nil:
		if err == nil {
			return ""
		}
		return "Sign-in failed"
	case ErrAgentUnavailable:
		return "A web3 wallet is required"
	case ErrUserRejected:
		return "Wallet connection was declined"
	case ErrChallengeRequestFailed:
		return "Could not start sign-in, try again"
	case ErrSigningRejected:
		return "Signature request was declined"
	case ErrAgentCommunication:
		return "Could not reach the wallet"
	case ErrVerificationFailed:
		return "Authentication failed"
	case ErrAttemptInProgress:
		return "Sign-in already in progress"
	case ErrNotConnected:
		return "Please connect your wallet first"
	default:
		return "Sign-in was cancelled"
	}
}
