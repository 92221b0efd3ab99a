package util

import (
	"strings"
	"testing"
)

func TestFormatBytesFixedWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) has width %d, want 8", tc.in, len(got))
		}
	}
}

func TestFormatDeltaQuietWithoutTraffic(t *testing.T) {
	var c Counters
	c.CandidatesSent.Add(3)

	if _, ok := formatDelta(Snapshot{}, c.Snapshot(), 10); ok {
		t.Error("formatDelta reported a line with no channel traffic")
	}
}

func TestFormatDeltaReportsTraffic(t *testing.T) {
	var c Counters
	c.AddSent(2048)
	c.AddRecv(10)
	c.MessagesDropped.Add(1)

	line, ok := formatDelta(Snapshot{}, c.Snapshot(), 1)
	if !ok {
		t.Fatal("formatDelta reported nothing for non-zero traffic")
	}
	if !strings.Contains(line, "Out:  2.0 KiB/s") {
		t.Errorf("line %q does not report 2 KiB/s outbound", line)
	}
	if !strings.Contains(line, "Dropped: 1") {
		t.Errorf("line %q does not report the dropped message", line)
	}
}
