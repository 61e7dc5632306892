package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNamespacing(t *testing.T) {
	c := NewCacheWithClient(nil, "rules", time.Minute)
	assert.Equal(t, "rules:quote:abc", c.key("quote:abc"))

	bare := NewCacheWithClient(nil, "", time.Minute)
	assert.Equal(t, "quote:abc", bare.key("quote:abc"))
}

func TestUnreachableServerIsAnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewCacheWithClient(client, "rules", time.Minute)
	defer c.Close()

	ctx := context.Background()
	var dest map[string]string
	found, err := c.GetJSON(ctx, "k", &dest)
	require.Error(t, err)
	assert.False(t, found)

	assert.Error(t, c.SetJSON(ctx, "k", map[string]string{"a": "b"}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"localhost:6379"}, cfg.Addrs)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}
