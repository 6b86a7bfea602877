package ws

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case b := <-c.Outbox():
		return b
	case <-time.After(time.Second):
		t.Fatal("no payload delivered in time")
		return nil
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.Outbox():
		t.Fatalf("unexpected payload: %s", b)
	default:
	}
}

func TestHub_EmitReachesExactlyTheRoom(t *testing.T) {
	req := require.New(t)
	hub := NewHub()

	a := NewClient("alice")
	b := NewClient("bob")
	c := NewClient("carol")
	for _, cl := range []*Client{a, b, c} {
		hub.Register(cl)
	}
	hub.Join(a, "chat-1")
	hub.Join(b, "chat-1")
	hub.Join(c, "chat-2")

	hub.Emit("chat-1", []byte("hello"))

	req.Equal([]byte("hello"), recvOne(t, a))
	req.Equal([]byte("hello"), recvOne(t, b))
	assertNothingQueued(t, c)
}

func TestHub_NoBacklogForLateJoiner(t *testing.T) {
	hub := NewHub()

	early := NewClient("alice")
	hub.Register(early)
	hub.Join(early, "chat-1")
	hub.Emit("chat-1", []byte("before"))

	late := NewClient("bob")
	hub.Register(late)
	hub.Join(late, "chat-1")

	// joining must not replay anything
	assertNothingQueued(t, late)

	hub.Emit("chat-1", []byte("after"))
	require.Equal(t, []byte("after"), recvOne(t, late))
}

func TestHub_DropRemovesFromEveryRoom(t *testing.T) {
	req := require.New(t)
	hub := NewHub()

	c := NewClient("alice")
	hub.Register(c)
	hub.Join(c, "chat-1")
	hub.Join(c, "chat-2")
	req.Equal(1, hub.RoomSize("chat-1"))
	req.Equal(1, hub.RoomSize("chat-2"))

	hub.Drop(c)
	req.Equal(0, hub.RoomSize("chat-1"))
	req.Equal(0, hub.RoomSize("chat-2"))

	hub.Emit("chat-1", []byte("gone"))
	assertNothingQueued(t, c)

	// a dropped client cannot rejoin its way back in
	hub.Join(c, "chat-1")
	req.Equal(0, hub.RoomSize("chat-1"))
}

func TestHub_SlowConsumerLosesInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	c := NewClient("alice")
	hub.Register(c)
	hub.Join(c, "chat-1")

	// overrun the send buffer; Emit must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Emit("chat-1", []byte(fmt.Sprintf("m%d", i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow consumer")
	}
}

func TestHub_ConcurrentJoinEmitDrop(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient(fmt.Sprintf("user-%d", i))
			hub.Register(c)
			hub.Join(c, "chat-1")
			hub.Emit("chat-1", []byte("x"))
			hub.Drop(c)
			c.Close()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, hub.RoomSize("chat-1"))
}
