package transport

import (
	"errors"
	"log/slog"
	"testing"
)

func testClient(cfg Config) *Client {
	// No socket; these tests exercise only the queue side of the client.
	return newClient(cfg, nil, slog.Default())
}

func TestPushQueues(t *testing.T) {
	c := testClient(Config{QueueSize: 4, Overflow: OverflowDrop})

	for i := 0; i < 4; i++ {
		if err := c.Push([]byte("frame")); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}
	if got := len(c.send); got != 4 {
		t.Errorf("queued frames = %d, want 4", got)
	}
}

func TestPushOverflowDrop(t *testing.T) {
	c := testClient(Config{QueueSize: 2, Overflow: OverflowDrop})

	c.Push([]byte("one"))
	c.Push([]byte("two"))

	err := c.Push([]byte("three"))
	if !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("Push over capacity error = %v, want ErrSendQueueFull", err)
	}

	// Drop policy keeps the client alive; draining the queue lets pushes
	// succeed again.
	select {
	case <-c.done:
		t.Fatal("drop policy closed the client")
	default:
	}

	<-c.send
	if err := c.Push([]byte("four")); err != nil {
		t.Errorf("Push after drain failed: %v", err)
	}
}

func TestPushOverflowDisconnect(t *testing.T) {
	c := testClient(Config{QueueSize: 1, Overflow: OverflowDisconnect})

	c.Push([]byte("one"))

	err := c.Push([]byte("two"))
	if !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("Push over capacity error = %v, want ErrSendQueueFull", err)
	}

	select {
	case <-c.done:
	default:
		t.Fatal("disconnect policy left the client open")
	}

	// Every push after the disconnect fails fast as closed, not as
	// backpressure.
	if err := c.Push([]byte("three")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Push after disconnect error = %v, want ErrClientClosed", err)
	}
}

func TestPushAfterClose(t *testing.T) {
	c := testClient(DefaultConfig())
	c.Close()

	if err := c.Push([]byte("late")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Push after Close error = %v, want ErrClientClosed", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := testClient(DefaultConfig())

	c.Close()
	c.Close()

	select {
	case <-c.done:
	default:
		t.Fatal("done channel not closed")
	}
}
