package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, setup func(r *gin.Engine)) *HTTPBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	b, err := NewHTTPBackend(srv.URL, "", "", 2*time.Second)
	require.NoError(t, err)
	return b
}

func TestNewHTTPBackend(t *testing.T) {
	b, err := NewHTTPBackend("https://rp.example.com/base", "", "/v2/verify", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://rp.example.com/base/api/auth/nonce", b.challengeURL)
	assert.Equal(t, "https://rp.example.com/base/v2/verify", b.verifyURL)
	assert.Equal(t, DefaultTimeout, b.timeout)

	_, err = NewHTTPBackend("not a url", "", "", 0)
	assert.Error(t, err)
}

func TestHTTPBackend_Challenge(t *testing.T) {
	b := newTestServer(t, func(r *gin.Engine) {
		r.GET(DefaultChallengePath, func(c *gin.Context) {
			c.String(http.StatusOK, "abc123\n")
		})
	})

	nonce, err := b.Challenge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", nonce)
}

func TestHTTPBackend_ChallengeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
	}{
		{name: "server error", handler: func(c *gin.Context) { c.String(http.StatusServiceUnavailable, "down") }},
		{name: "empty body", handler: func(c *gin.Context) { c.Status(http.StatusOK) }},
		{name: "oversized body", handler: func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("n", maxChallengeSize+1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestServer(t, func(r *gin.Engine) { r.GET(DefaultChallengePath, tt.handler) })
			_, err := b.Challenge(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestHTTPBackend_Verify(t *testing.T) {
	var got VerifyRequest
	b := newTestServer(t, func(r *gin.Engine) {
		r.POST(DefaultVerifyPath, func(c *gin.Context) {
			if err := c.ShouldBindJSON(&got); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "token": "sess-1"})
		})
	})

	res, err := b.Verify(context.Background(), "message text", "0xsig")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sess-1", res.Token)
	assert.Equal(t, VerifyRequest{Message: "message text", Signature: "0xsig"}, got)
}

func TestHTTPBackend_VerifyRejected(t *testing.T) {
	b := newTestServer(t, func(r *gin.Engine) {
		r.POST(DefaultVerifyPath, func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		})
	})

	res, err := b.Verify(context.Background(), "m", "s")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Token)
}

func TestHTTPBackend_VerifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
	}{
		{name: "server error", handler: func(c *gin.Context) { c.JSON(http.StatusInternalServerError, gin.H{"success": false}) }},
		{name: "not json", handler: func(c *gin.Context) { c.String(http.StatusOK, "<html>") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestServer(t, func(r *gin.Engine) { r.POST(DefaultVerifyPath, tt.handler) })
			_, err := b.Verify(context.Background(), "m", "s")
			assert.Error(t, err)
		})
	}
}

func TestHTTPBackend_CancelledRequestIsDropped(t *testing.T) {
	release := make(chan struct{})
	b := newTestServer(t, func(r *gin.Engine) {
		r.GET(DefaultChallengePath, func(c *gin.Context) {
			<-release
			c.String(http.StatusOK, "late")
		})
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := b.Challenge(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
