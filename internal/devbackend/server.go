// Package devbackend is a minimal relying party for running the sign-in flow
// locally and in integration tests. It issues single-use nonces, recovers the
// signer of an EIP-4361 message and hands out an ES256 session token.
package devbackend

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletauth/core"
)

const (
	NoncePath  = "/api/auth/nonce"
	VerifyPath = "/api/auth/verify"
	MePath     = "/api/me"

	defaultNonceTTL   = 5 * time.Minute
	defaultSessionTTL = time.Hour
)

var errSignatureMismatch = errors.New("signature does not match address")

// Config describes the relying party the server pretends to be.
type Config struct {
	Domain     string
	URI        string
	NonceTTL   time.Duration
	SessionTTL time.Duration
}

// Server is the dev relying party.
type Server struct {
	cfg       Config
	nonces    *nonceStore
	tokenizer *tokenizer
	logger    *slog.Logger
}

// New creates a server with a fresh signing key.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.Domain == "" {
		return nil, errors.New("devbackend: domain is required")
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = defaultNonceTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	return &Server{
		cfg:       cfg,
		nonces:    newNonceStore(cfg.NonceTTL),
		tokenizer: &tokenizer{signKey: signKey, ttl: cfg.SessionTTL},
		logger:    logger.With("component", "devbackend"),
	}, nil
}

// Router sets up the Gin router
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(NoncePath, s.handleNonce)
	router.POST(VerifyPath, s.handleVerify)

	api := router.Group("/api")
	api.Use(s.authMiddleware())
	{
		api.GET("/me", s.handleMe)
	}

	return router
}

func (s *Server) handleNonce(c *gin.Context) {
	c.String(http.StatusOK, s.nonces.Issue())
}

func (s *Server) handleVerify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	msg, err := s.verify(req.Message, req.Signature)
	if err != nil {
		s.logger.Info("verification rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}

	token, err := s.tokenizer.issue(msg.Address.String(), msg.ChainID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	s.logger.Info("verified", "account", msg.Address.String())
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// verify checks the message against this relying party and consumes its nonce.
func (s *Server) verify(text, signature string) (core.ChallengeMessage, error) {
	msg, err := core.ParseChallengeMessage(text)
	if err != nil {
		return core.ChallengeMessage{}, err
	}

	// The nonce is spent before anything else is checked so a failed attempt
	// cannot be retried with the same challenge.
	if !s.nonces.Consume(msg.Nonce) {
		return core.ChallengeMessage{}, fmt.Errorf("unknown or used nonce %q", msg.Nonce)
	}
	if msg.Domain != s.cfg.Domain {
		return core.ChallengeMessage{}, fmt.Errorf("domain mismatch: %q", msg.Domain)
	}
	if s.cfg.URI != "" && msg.URI != s.cfg.URI {
		return core.ChallengeMessage{}, fmt.Errorf("uri mismatch: %q", msg.URI)
	}

	if err := recoverAndMatch(text, signature, msg.Address); err != nil {
		return core.ChallengeMessage{}, err
	}
	return msg, nil
}

// recoverAndMatch recovers the EIP-191 signer of text and compares it with account.
func recoverAndMatch(text, signature string, account core.Account) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != account.Address() {
		return errSignatureMismatch
	}
	return nil
}

// authMiddleware checks the bearer session token
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		claims, err := s.tokenizer.parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("userAddress", claims.Subject)
		c.Next()
	}
}

func (s *Server) handleMe(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}
