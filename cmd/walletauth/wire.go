package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletauth/adapters/agent"
	"github.com/layer-3/walletauth/adapters/backend"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/ports"
)

type dependencies struct {
	agent   ports.Agent
	backend ports.Backend
	builder core.MessageBuilder
	store   ports.CredentialStore
	events  ports.EventPublisher

	closers []func() error
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// wire builds the adapters cfg asks for. keyAgent, when set, replaces the
// configured RPC agent.
func wire(ctx context.Context, cfg *config.Config, keyAgent *agent.KeyAgent, logger *slog.Logger) (*dependencies, error) {
	d := &dependencies{}

	builder, err := core.NewMessageBuilder(
		cfg.RelyingParty.Domain,
		cfg.RelyingParty.URI,
		cfg.RelyingParty.Statement,
		cfg.RelyingParty.Version,
	)
	if err != nil {
		return nil, err
	}
	d.builder = builder

	switch {
	case keyAgent != nil:
		d.agent = keyAgent
	case cfg.Agent.RPCURL != "":
		rpcAgent, err := agent.DialRPCAgent(ctx, cfg.Agent.RPCURL)
		if err != nil {
			return nil, err
		}
		d.agent = rpcAgent
		d.closers = append(d.closers, func() error { rpcAgent.Close(); return nil })
	default:
		logger.Warn("no signing agent configured")
	}

	d.backend, err = backend.NewHTTPBackend(
		cfg.Backend.BaseURL,
		cfg.Backend.ChallengePath,
		cfg.Backend.VerifyPath,
		cfg.Backend.Timeout,
	)
	if err != nil {
		d.Close()
		return nil, err
	}

	switch cfg.Store.Kind {
	case config.StoreRedis:
		client, err := redisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		d.store = store.NewRedisStore(client, cfg.Store.KeyPrefix, cfg.Store.TTL)
	default:
		d.store = store.NewMemoryStore()
	}

	if cfg.Events.Enabled {
		client, err := redisClient(ctx, cfg.Events.RedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, client.Close)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: client,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		d.closers = append(d.closers, publisher.Close)
		d.events = events.NewWatermillPublisher(publisher, cfg.Events.Topic)
	}

	return d, nil
}

func redisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach Redis: %w", err)
	}
	return client, nil
}
