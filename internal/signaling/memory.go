package signaling

import (
	"context"
	"sync"
)

// Compile-time interface checks.
var (
	_ Link   = (*MemoryLink)(nil)
	_ Opener = (*MemoryOpener)(nil)
)

// MemoryLink is an in-process Link. Two MemoryLinks created by Pipe form a
// connected pair; closing either end closes both, as a dropped socket would.
type MemoryLink struct {
	inbox chan []byte
	peer  *MemoryLink
	pipe  *pipeState
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

// Pipe returns two connected in-process links.
func Pipe() (*MemoryLink, *MemoryLink) {
	state := &pipeState{done: make(chan struct{})}
	a := &MemoryLink{inbox: make(chan []byte, 64), pipe: state}
	b := &MemoryLink{inbox: make(chan []byte, 64), pipe: state}
	a.peer, b.peer = b, a
	return a, b
}

// Read returns queued messages first, then ErrLinkClosed once the pipe is
// closed.
func (l *MemoryLink) Read() ([]byte, error) {
	select {
	case msg := <-l.inbox:
		return msg, nil
	default:
	}

	select {
	case msg := <-l.inbox:
		return msg, nil
	case <-l.pipe.done:
		return nil, ErrLinkClosed
	}
}

// Send delivers text to the other end.
func (l *MemoryLink) Send(text []byte) error {
	select {
	case <-l.pipe.done:
		return ErrLinkClosed
	default:
	}

	msg := append([]byte(nil), text...)
	select {
	case l.peer.inbox <- msg:
		return nil
	case <-l.pipe.done:
		return ErrLinkClosed
	}
}

// Close closes both ends of the pipe.
func (l *MemoryLink) Close() error {
	l.pipe.once.Do(func() { close(l.pipe.done) })
	return nil
}

// MemoryOpener hands out a pre-made link regardless of address. Err, when
// set, is returned instead to simulate an unreachable server.
type MemoryOpener struct {
	Link Link
	Err  error
}

func (o *MemoryOpener) Open(ctx context.Context, _ string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Link, nil
}
