package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/1ureka/dcbridge/internal/util"
)

func newTestChannel(queue int) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &channel{
		ctx:    ctx,
		cancel: cancel,
		sender: &sender{
			inbox:    make(chan []byte, queue),
			counters: &util.Counters{},
		},
	}
}

func TestOnCloseAfterCloseRunsImmediately(t *testing.T) {
	c := newTestChannel(1)
	c.markClosed()

	calls := 0
	c.OnClose(func() { calls++ })
	if calls != 1 {
		t.Fatalf("OnClose callback ran %d times, want 1", calls)
	}

	// A repeated close notification is ignored.
	c.markClosed()
	if calls != 1 {
		t.Errorf("callback ran %d times after second close, want 1", calls)
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send = %v, want ErrChannelClosed", err)
	}
}

func TestOnCloseBeforeClose(t *testing.T) {
	c := newTestChannel(1)

	calls := 0
	c.OnClose(func() { calls++ })
	if calls != 0 {
		t.Fatalf("callback ran before close")
	}
	c.markClosed()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestSendReportsFullQueue(t *testing.T) {
	c := newTestChannel(1)

	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("first Send = %v", err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Send = %v, want ErrQueueFull", err)
	}
	if got := c.sender.counters.MessagesDropped.Load(); got != 1 {
		t.Errorf("MessagesDropped = %d, want 1", got)
	}
}
