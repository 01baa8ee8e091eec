package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletauth/adapters/agent"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/internal/devbackend"
	"github.com/layer-3/walletauth/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: environment)")
	dev := flag.Bool("dev", false, "run against an in-process relying party and key agent")
	confirm := flag.Bool("confirm", false, "with -dev, ask before the key agent connects or signs")
	chainID := flag.Int64("chain", 1, "with -dev, chain id the key agent reports")
	keep := flag.Bool("keep", false, "stay signed in until interrupted, following agent events")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *dev, *confirm, *chainID, *keep); err != nil {
		log.Fatalf("walletauth: %v", err)
	}
}

func run(ctx context.Context, configPath string, dev, confirm bool, chainID int64, keep bool) error {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case configPath != "":
		cfg, err = config.Load(configPath)
	case dev:
		cfg, err = config.Dev()
	default:
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	var keyAgent *agent.KeyAgent
	if dev {
		shutdown, err := startDevBackend(cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()

		var prompt agent.PromptFunc
		if confirm {
			prompt = linePrompt(os.Stdin, os.Stderr)
		}
		if keyAgent, err = agent.GenerateKeyAgent(chainID, prompt); err != nil {
			return err
		}
	}

	deps, err := wire(ctx, cfg, keyAgent, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	svc := service.NewAuthService(deps.agent, deps.backend, deps.builder, deps.store, deps.events, logger)

	go func() {
		if err := svc.WatchAgent(ctx); err != nil {
			logger.Warn("agent event subscription ended", "error", err)
		}
	}()

	session, err := svc.SignIn(ctx)
	if err != nil {
		color.Red("✗ %s", core.PublicReason(err))
		return err
	}
	color.Green("✓ Authenticated as: %s", session.Account)
	printState(svc.GetState())

	if keep {
		<-ctx.Done()
	}

	// ctx may already be cancelled here; sign-out must still clear the store.
	if err := svc.SignOut(context.Background()); err != nil && !errors.Is(err, core.ErrInvalidTransition) {
		return fmt.Errorf("signing out: %w", err)
	}
	printState(svc.GetState())
	return nil
}

func printState(s core.Snapshot) {
	account := "-"
	if s.Account != "" {
		account = s.Account.Short()
	}
	fmt.Printf("state=%s authenticated=%t account=%s\n", s.State, s.Authenticated, account)
}

// startDevBackend serves the dev relying party on a loopback port and points
// cfg at it.
func startDevBackend(cfg *config.Config, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for dev backend: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := devbackend.New(devbackend.Config{
		Domain: "localhost",
		URI:    cfg.RelyingParty.URI,
	}, logger)
	if err != nil {
		ln.Close()
		return nil, err
	}

	httpServer := &http.Server{Handler: srv.Router()}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dev backend stopped", "error", err)
		}
	}()

	cfg.Backend.BaseURL = "http://" + ln.Addr().String()
	logger.Info("dev backend listening", "url", cfg.Backend.BaseURL)
	return func() { httpServer.Close() }, nil
}

// linePrompt asks on w and reads answers from r. One reader serves every
// prompt so piped answers are not lost between them.
func linePrompt(r io.Reader, w io.Writer) agent.PromptFunc {
	br := bufio.NewReader(r)
	return func(_ context.Context, request string) bool {
		fmt.Fprintf(w, "\n%s\n\nApprove? [y/N] ", request)
		line, _ := br.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}
}
