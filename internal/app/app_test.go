package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/dcbridge/internal/config"
	"github.com/1ureka/dcbridge/internal/session"
	"github.com/1ureka/dcbridge/internal/signaling"
)

type recordingSender struct {
	sent  []string
	limit int // fail with ErrChannelNotOpen after this many sends; 0 = never
}

func (r *recordingSender) Send(b []byte) error {
	if r.limit > 0 && len(r.sent) >= r.limit {
		return session.ErrChannelNotOpen
	}
	r.sent = append(r.sent, string(b))
	return nil
}

func TestForwardLinesSkipsEmptyLines(t *testing.T) {
	var s recordingSender
	if err := forwardLines(&s, strings.NewReader("a\n\nb\nc")); err != nil {
		t.Fatalf("forwardLines: %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(s.sent, want) {
		t.Errorf("sent = %q, want %q", s.sent, want)
	}
}

func TestForwardLinesStopsWhenChannelCloses(t *testing.T) {
	s := recordingSender{limit: 1}
	if err := forwardLines(&s, strings.NewReader("a\nb\nc\n")); err != nil {
		t.Fatalf("forwardLines: %v", err)
	}
	if want := []string{"a"}; !reflect.DeepEqual(s.sent, want) {
		t.Errorf("sent = %q, want %q", s.sent, want)
	}
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	write := printMessages(&buf)
	write([]byte("PING"))
	write([]byte("hello"))
	if got := buf.String(); got != "PING\nhello\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunRejectsUnknownRole(t *testing.T) {
	cfg := config.Default()
	cfg.Role = "observer"
	if err := Run(context.Background(), cfg, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("Run with an unknown role succeeded")
	}
}

func TestRunInitiatorUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := config.Default()
	cfg.Role = config.RoleInitiator
	cfg.Hostname = "127.0.0.1"
	cfg.Port = port
	cfg.STUNServers = nil

	err = RunInitiator(context.Background(), cfg, strings.NewReader(""), io.Discard)
	if !errors.Is(err, session.ErrConnection) {
		t.Fatalf("RunInitiator = %v, want ErrConnection", err)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for !strings.Contains(b.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("output %q never contained %q", b.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestRunLoopback runs both roles in-process over a real WebSocket control
// link and pion transports with host candidates only.
func TestRunLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC loopback in short mode")
	}

	server := signaling.NewServer("127.0.0.1:0")
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer server.Close()

	respCfg := config.Default()
	respCfg.Role = config.RoleResponder
	respCfg.STUNServers = nil

	initCfg := config.Default()
	initCfg.Role = config.RoleInitiator
	initCfg.Hostname = "127.0.0.1"
	initCfg.Port = server.Addr().(*net.TCPAddr).Port
	initCfg.STUNServers = nil

	respCtx, respCancel := context.WithCancel(context.Background())
	defer respCancel()
	initCtx, initCancel := context.WithCancel(context.Background())
	defer initCancel()

	var respOut, initOut syncBuffer
	respErr := make(chan error, 1)
	initErr := make(chan error, 1)

	go func() {
		respErr <- respond(respCtx, respCfg, server, strings.NewReader(""), &respOut)
	}()

	input, inputW := io.Pipe()
	defer inputW.Close()
	go func() {
		initErr <- RunInitiator(initCtx, initCfg, input, &initOut)
	}()

	waitForOutput(t, &respOut, "PING")
	waitForOutput(t, &initOut, "PONG")

	go inputW.Write([]byte("hello\n"))
	waitForOutput(t, &respOut, "hello")

	initCancel()
	select {
	case err := <-initErr:
		if err != nil {
			t.Errorf("RunInitiator = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunInitiator did not return after cancel")
	}

	respCancel()
	select {
	case <-respErr:
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not return after cancel")
	}
}
