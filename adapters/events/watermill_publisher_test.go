package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_PublishAuthEvent(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	p := NewWatermillPublisher(pubSub, "")
	account := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	errc := make(chan error, 1)
	go func() { errc <- p.PublishAuthEvent(ctx, "signed_in", account, "attempt-1") }()

	select {
	case msg := <-messages:
		assert.Equal(t, "signed_in", msg.Metadata.Get("kind"))

		var ev AuthEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "signed_in", ev.Kind)
		assert.Equal(t, account, ev.Account)
		assert.Equal(t, "attempt-1", ev.AttemptID)
		assert.False(t, ev.At.IsZero())
		assert.NotContains(t, string(msg.Payload), "token")
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	require.NoError(t, <-errc)
}

func TestWatermillPublisher_ClosedPublisher(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, pubSub.Close())

	p := NewWatermillPublisher(pubSub, "custom.topic")
	err := p.PublishAuthEvent(context.Background(), "signed_out", "0x0", "")
	assert.Error(t, err)
}
