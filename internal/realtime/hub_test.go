// internal/realtime/hub_test.go

package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testClient(h *Hub, userID int64) *Client {
	return &Client{hub: h, send: make(chan []byte, 1), userID: userID}
}

func TestHubPublishLifecycle(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Shutdown()

	assert.False(t, h.Publish(7, []byte("early")), "offline user has no connections")

	c := testClient(h, 7)
	h.register <- c
	assert.Eventually(t, func() bool { return h.IsUserOnline(7) },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.GetActiveConnections())

	assert.True(t, h.Publish(7, []byte("hello")))
	assert.Equal(t, "hello", string(<-c.send))

	h.unregister <- c
	assert.Eventually(t, func() bool { return !h.IsUserOnline(7) },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.GetActiveConnections())
}

func TestHubPublishDropsStaleConnection(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Shutdown()

	c := testClient(h, 9)
	h.register <- c
	assert.Eventually(t, func() bool { return h.IsUserOnline(9) },
		time.Second, 10*time.Millisecond)

	// Fill the send buffer so the next publish finds the client stale
	c.send <- []byte("backlog")
	assert.False(t, h.Publish(9, []byte("dropped")))
	assert.False(t, h.IsUserOnline(9))
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := testClient(h, 3)
	h.register <- c
	assert.Eventually(t, func() bool { return h.IsUserOnline(3) },
		time.Second, 10*time.Millisecond)

	h.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, open := <-c.send
	assert.False(t, open, "cleanup closes client send channels")
}
