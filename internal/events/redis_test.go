package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBrokerRelaysToHub(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	hub := NewHub()
	broker := NewRedisBroker(rdb, hub)
	broker.channel = "mailtmpl:events:test"

	ch, cancelSub := hub.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broker.Run(ctx) }()

	e := event("org-1")
	// The subscription is asynchronous; publish until the relay picks it up.
	require.Eventually(t, func() bool {
		if err := broker.Publish(ctx, e); err != nil {
			return false
		}
		select {
		case got := <-ch:
			return got.ID == e.ID
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
