package socket

import (
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelayEnvelope(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	local := NewRedisRelay(client, "test")
	remote := NewRedisRelay(client, "test")
	require.NotEqual(t, local.Instance(), remote.Instance())

	evt := Event{DocumentID: "doc", UserID: "u1", SessionID: "s1", Content: json.RawMessage(`{"text":"b"}`)}
	payload, err := local.encode(evt)
	require.NoError(t, err)

	_, ok := local.decode(payload)
	assert.False(t, ok, "own messages are ignored")

	got, ok := remote.decode(payload)
	require.True(t, ok)
	assert.Equal(t, "doc", got.DocumentID)
	assert.Equal(t, "u1", got.UserID)
	assert.JSONEq(t, `{"text":"b"}`, string(got.Content))

	_, ok = remote.decode([]byte("garbage"))
	assert.False(t, ok)
}

func TestRedisRelayChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	r := NewRedisRelay(client, "naskahlive")
	assert.Equal(t, "naskahlive:document:abc", r.channel("abc"))
	assert.Equal(t, "naskahlive:document:*", r.channel("*"))
}
