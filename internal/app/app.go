// Package app contains the top-level orchestration for the initiator and
// responder roles.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/dcbridge/internal/config"
	"github.com/1ureka/dcbridge/internal/session"
	"github.com/1ureka/dcbridge/internal/signaling"
	"github.com/1ureka/dcbridge/internal/transport"
	"github.com/1ureka/dcbridge/internal/util"
)

// Run starts the role selected by cfg. Lines read from in are sent over the
// channel; received messages are written to out. It returns nil after a
// clean close or when ctx is cancelled once connected.
func Run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	switch cfg.Role {
	case config.RoleInitiator:
		return RunInitiator(ctx, cfg, in, out)
	case config.RoleResponder:
		return RunResponder(ctx, cfg, in, out)
	}
	return fmt.Errorf("invalid role %q", cfg.Role)
}

// RunInitiator orchestrates the initiator lifecycle:
//  1. Dial the responder's control-link server
//  2. Send the offer, trickle candidates, apply the answer
//  3. Send the greeting once the channel opens
//  4. Forward traffic until shutdown
func RunInitiator(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	s, counters, err := newSession(cfg, out)
	if err != nil {
		return err
	}
	defer s.Close()

	url := cfg.URL()
	util.LogInfo("connecting to %s", url)
	if err := s.Connect(ctx, signaling.Dialer{}, url); err != nil {
		return err
	}

	return serve(ctx, s, counters, in)
}

// RunResponder orchestrates the responder lifecycle:
//  1. Start the control-link server on cfg.Listen
//  2. Wait for the initiator to connect
//  3. Answer its offer, trickle candidates
//  4. Reply to the first message with the probe and forward traffic
func RunResponder(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	server := signaling.NewServer(cfg.Listen)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Close()

	printServerInfo(server.Addr())
	return respond(ctx, cfg, server, in, out)
}

// respond accepts a single control link from server and runs a responder
// session over it.
func respond(ctx context.Context, cfg *config.Config, server *signaling.Server, in io.Reader, out io.Writer) error {
	util.LogInfo("waiting for the initiator to connect...")
	link, err := server.Accept(ctx)
	if err != nil {
		return fmt.Errorf("waiting for initiator: %w", err)
	}
	server.Close() // one session per process
	util.LogInfo("initiator connected")

	s, counters, err := newSession(cfg, out)
	if err != nil {
		link.Close()
		return err
	}
	defer s.Close()

	if err := s.Start(link); err != nil {
		return err
	}
	return serve(ctx, s, counters, in)
}

// newSession builds the pion transport and the session for cfg.Role.
func newSession(cfg *config.Config, out io.Writer) (*session.Session, *util.Counters, error) {
	counters := &util.Counters{}
	initiator := cfg.Role == config.RoleInitiator

	peer, err := transport.New(transport.Options{
		Initiator:    initiator,
		STUNServers:  cfg.STUNServers,
		ChannelLabel: cfg.ChannelLabel,
		Counters:     counters,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := session.Options{
		Role:      session.Responder,
		Counters:  counters,
		OnMessage: printMessages(out),
	}
	if initiator {
		opts.Role = session.Initiator
		opts.Greeting = []byte(cfg.Greeting)
	} else {
		opts.ProbeReply = []byte(cfg.ProbeReply)
	}

	return session.New(peer, opts), counters, nil
}

// serve waits for the channel, then forwards input until the session ends
// or ctx is cancelled.
func serve(ctx context.Context, s *session.Session, counters *util.Counters, in io.Reader) error {
	if err := s.WaitConnected(ctx); err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	util.StartStatsReporter(runCtx, counters)
	util.LogSuccess("data channel %q open (session %s)", s.Channel().Label(), s.ID())

	go func() {
		if err := forwardLines(s, in); err != nil {
			util.LogWarning("reading input: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-s.Done():
		return s.Err()
	}
}

// sender is the subset of Session used to forward input.
type sender interface {
	Send([]byte) error
}

// forwardLines sends each non-empty line of in as one message. It stops at
// EOF or once the channel is no longer open.
func forwardLines(s sender, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := s.Send(line); err != nil {
			if errors.Is(err, session.ErrChannelNotOpen) {
				return nil
			}
			util.LogWarning("send failed: %v", err)
		}
	}
	return scanner.Err()
}

// printMessages returns an OnMessage callback writing each message to out on
// its own line.
func printMessages(out io.Writer) func([]byte) {
	var mu sync.Mutex
	return func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s\n", b)
	}
}

func printServerInfo(addr net.Addr) {
	pterm.DefaultBox.
		WithTitle("Control link server").
		Println(fmt.Sprintf("Listening : %s\nEndpoint  : ws://%s/", addr, addr))
	pterm.Println()
}
