package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-session counters
// ──────────────────────────────────────────────────────────────────────────────

// Counters accumulates signaling and channel traffic for one session.
// The zero value is ready to use.
type Counters struct {
	CandidatesSent    atomic.Int64 // local candidates forwarded over the control link
	CandidatesDropped atomic.Int64 // local candidates dropped because the link was closed
	CandidatesRecv    atomic.Int64 // remote candidates received
	CandidatesApplied atomic.Int64 // remote candidates handed to the peer transport
	Malformed         atomic.Int64 // control-link frames discarded as malformed

	MessagesSent    atomic.Int64 // channel messages accepted for sending
	MessagesRecv    atomic.Int64 // channel messages received
	MessagesDropped atomic.Int64 // channel messages dropped by the send queue
	BytesSent       atomic.Int64
	BytesRecv       atomic.Int64
}

func (c *Counters) AddSent(n int) {
	c.MessagesSent.Add(1)
	c.BytesSent.Add(int64(n))
}

func (c *Counters) AddRecv(n int) {
	c.MessagesRecv.Add(1)
	c.BytesRecv.Add(int64(n))
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	CandidatesSent    int64
	CandidatesDropped int64
	CandidatesRecv    int64
	CandidatesApplied int64
	Malformed         int64
	MessagesSent      int64
	MessagesRecv      int64
	MessagesDropped   int64
	BytesSent         int64
	BytesRecv         int64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		CandidatesSent:    c.CandidatesSent.Load(),
		CandidatesDropped: c.CandidatesDropped.Load(),
		CandidatesRecv:    c.CandidatesRecv.Load(),
		CandidatesApplied: c.CandidatesApplied.Load(),
		Malformed:         c.Malformed.Load(),
		MessagesSent:      c.MessagesSent.Load(),
		MessagesRecv:      c.MessagesRecv.Load(),
		MessagesDropped:   c.MessagesDropped.Load(),
		BytesSent:         c.BytesSent.Load(),
		BytesRecv:         c.BytesRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs channel statistics
// every 10 seconds while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, c *Counters) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := c.Snapshot()
				if line, ok := formatDelta(prev, cur, reportInterval.Seconds()); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatDelta renders the traffic between two snapshots. It reports false
// when nothing worth logging happened.
func formatDelta(prev, cur Snapshot, seconds float64) (string, bool) {
	outS := float64(cur.BytesSent-prev.BytesSent) / seconds
	inS := float64(cur.BytesRecv-prev.BytesRecv) / seconds
	outM := cur.MessagesSent - prev.MessagesSent
	inM := cur.MessagesRecv - prev.MessagesRecv
	dropped := cur.MessagesDropped - prev.MessagesDropped

	if outM == 0 && inM == 0 && dropped == 0 {
		return "", false
	}
	return formatStats(inS, outS, inM, outM, dropped), true
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %3d↓ %3d↑ | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		inM,
		outM,
		dropped,
	)
}
