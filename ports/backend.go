package ports

import "context"

// VerifyResult is what the relying party says about a signed challenge.
type VerifyResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// Backend is the relying party's challenge and verification surface.
type Backend interface {
	// Challenge returns a fresh single-use nonce.
	Challenge(ctx context.Context) (string, error)

	// Verify submits the canonical message text and its signature.
	Verify(ctx context.Context, message, signature string) (VerifyResult, error)
}
