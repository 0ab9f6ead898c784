package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"church-portal-be/internal/model"
	"church-portal-be/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, rdb *redis.Client) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(rdb, logger.NewNopLogger())
	go h.Run(ctx)
	return h
}

func attachClient(t *testing.T, h *Hub, groups ...string) *Client {
	t.Helper()
	c := newClient(h, nil, nil, nil, Limits{}, logger.NewNopLogger())
	h.add(c)
	for _, g := range groups {
		c.Join(g)
	}
	return c
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPushShapeAndGroupScope(t *testing.T) {
	h := startHub(t, nil)
	alice := attachClient(t, h, "user:alice")
	bob := attachClient(t, h, "user:bob")

	n := model.Notification{ID: uuid.New(), UserID: "alice", Title: "Report ready"}
	h.Send("alice", n)

	var frame struct {
		Type string             `json:"type"`
		Data model.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(receive(t, alice), &frame))
	assert.Equal(t, "notification", frame.Type)
	assert.Equal(t, n.ID, frame.Data.ID)
	assertSilent(t, bob)
}

func TestJoinLeaveAreIdempotent(t *testing.T) {
	h := startHub(t, nil)
	c := attachClient(t, h)

	c.Join("tenant:t1")
	c.Join("tenant:t1")
	assert.Equal(t, 1, h.GroupSize("tenant:t1"))

	c.Leave("tenant:t1")
	c.Leave("tenant:t1")
	c.Leave("never-joined")
	assert.Equal(t, 0, h.GroupSize("tenant:t1"))
}

func TestUnregisterDropsGroupMembership(t *testing.T) {
	h := startHub(t, nil)
	c := attachClient(t, h, "user:carol", "tenant:t1")

	h.remove(c)

	assert.Eventually(t, func() bool {
		return h.GroupSize("user:carol") == 0 && h.GroupSize("tenant:t1") == 0
	}, time.Second, 10*time.Millisecond)

	// Joining after close has no effect.
	c.Join("user:carol")
	assert.Equal(t, 0, h.GroupSize("user:carol"))
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	h := startHub(t, nil)
	c := attachClient(t, h, "user:slow")

	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.push([]byte(`{}`)))
	}
	assert.False(t, c.push([]byte(`{}`)))
	assert.Error(t, c.ctx.Err())
}

func TestRedisFanOutDeliversOncePerInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	newRedis := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}

	a := startHub(t, newRedis())
	b := startHub(t, newRedis())
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(clusterChannel)[clusterChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	onA := attachClient(t, a, "user:dave")
	onB := attachClient(t, b, "user:dave")

	a.PublishToGroup("user:dave", "notification", map[string]string{"title": "hello"})

	assert.JSONEq(t, `{"type":"notification","data":{"title":"hello"}}`, string(receive(t, onA)))
	assert.JSONEq(t, `{"type":"notification","data":{"title":"hello"}}`, string(receive(t, onB)))
	assertSilent(t, onA)
	assertSilent(t, onB)
}
