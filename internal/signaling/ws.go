package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Compile-time interface checks.
var (
	_ Link   = (*WSLink)(nil)
	_ Opener = Dialer{}
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSLink is a Link backed by a WebSocket connection. Every message is one
// text frame.
type WSLink struct {
	conn *websocket.Conn

	mu     sync.Mutex // serializes writes; gorilla allows one concurrent writer
	closed bool

	closeOnce sync.Once
}

func newWSLink(conn *websocket.Conn) *WSLink {
	return &WSLink{conn: conn}
}

// Read returns the payload of the next data frame.
func (l *WSLink) Read() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		l.markClosed()
		return nil, fmt.Errorf("failed to read WS message: %w", err)
	}
	return data, nil
}

// Send writes text as a single text frame.
func (l *WSLink) Send(text []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, text); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			l.closed = true
			return ErrLinkClosed
		}
		return fmt.Errorf("failed to write WS message: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame (best effort) and closes the socket.
func (l *WSLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		if !l.closed {
			l.closed = true
			_ = l.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		l.mu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *WSLink) markClosed() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Dialer opens WebSocket control links.
type Dialer struct{}

// Open dials the given WebSocket URL, e.g. ws://example.com:8080/.
func (Dialer) Open(ctx context.Context, address string) (Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return newWSLink(conn), nil
}

// Server is the responder-side WebSocket server. It accepts exactly one
// control link; later clients are rejected.
type Server struct {
	addr     string
	listener net.Listener
	connCh   chan *websocket.Conn

	mu       sync.Mutex
	accepted bool // a client has been queued or handed out
}

// NewServer creates a signaling server that will listen on addr.
func NewServer(addr string) *Server {
	return &Server{
		addr:   addr,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// Start begins listening. Use Addr to learn the bound address when addr
// used port 0.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client, before or after Accept.
	s.mu.Lock()
	first := !s.accepted
	s.accepted = true
	s.mu.Unlock()

	if !first {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	s.connCh <- conn
}

// Accept blocks until a client connects or ctx is cancelled.
func (s *Server) Accept(ctx context.Context) (*WSLink, error) {
	select {
	case conn := <-s.connCh:
		return newWSLink(conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new clients. Links already handed out by Accept
// stay open.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}
