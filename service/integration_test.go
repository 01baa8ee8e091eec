package service_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/adapters/agent"
	"github.com/layer-3/walletauth/adapters/backend"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/devbackend"
	"github.com/layer-3/walletauth/service"
)

type stack struct {
	agent *agent.KeyAgent
	store *store.MemoryStore
	svc   *service.AuthService
	url   string
}

// newStack wires the service against a real relying party over HTTP.
func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := httptest.NewUnstartedServer(nil)
	host := srv.Listener.Addr().String()
	uri := "http://" + host

	rp, err := devbackend.New(devbackend.Config{Domain: host, URI: uri}, logger)
	require.NoError(t, err)
	srv.Config.Handler = rp.Router()
	srv.Start()
	t.Cleanup(srv.Close)

	ka, err := agent.GenerateKeyAgent(1, nil)
	require.NoError(t, err)
	be, err := backend.NewHTTPBackend(uri, "", "", 5*time.Second)
	require.NoError(t, err)
	builder, err := core.NewMessageBuilder("", uri, "", "")
	require.NoError(t, err)
	ms := store.NewMemoryStore()

	return &stack{
		agent: ka,
		store: ms,
		svc:   service.NewAuthService(ka, be, builder, ms, nil, logger),
		url:   uri,
	}
}

func TestIntegration_SignInAndUseCredential(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	session, err := s.svc.SignIn(ctx)
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.Equal(t, s.agent.Address().Hex(), session.Account.String())

	cred, err := s.svc.Credential(ctx)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, s.url+devbackend.MePath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cred)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), s.agent.Address().Hex())

	require.NoError(t, s.svc.SignOut(ctx))
	assert.Zero(t, s.store.Len())
	assert.Equal(t, core.StateConnected, s.svc.GetState().State)
}

func TestIntegration_UserDeclinesSignature(t *testing.T) {
	s := newStack(t)
	declining, err := agent.GenerateKeyAgent(1, func(ctx context.Context, request string) bool {
		return strings.HasPrefix(request, "connect ")
	})
	require.NoError(t, err)

	builder, err := core.NewMessageBuilder("", s.url, "", "")
	require.NoError(t, err)
	be, err := backend.NewHTTPBackend(s.url, "", "", time.Second)
	require.NoError(t, err)
	svc := service.NewAuthService(declining, be, builder, nil, nil, nil)

	_, err = svc.SignIn(context.Background())
	assert.ErrorIs(t, err, core.ErrSigningRejected)
	assert.Equal(t, core.StateConnected, svc.GetState().State)
}

func TestIntegration_WatchAgentDisconnect(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.svc.SignIn(ctx)
	require.NoError(t, err)

	watchDone := make(chan error, 1)
	go func() { watchDone <- s.svc.WatchAgent(ctx) }()

	require.Eventually(t, func() bool {
		s.agent.Disconnect()
		return s.svc.GetState().State == core.StateDisconnected
	}, 2*time.Second, 20*time.Millisecond)

	assert.Zero(t, s.store.Len())
	_, err = s.svc.Credential(ctx)
	assert.Error(t, err)

	cancel()
	assert.NoError(t, <-watchDone)
}
