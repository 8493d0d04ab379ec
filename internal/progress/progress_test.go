package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/logging"
)

func TestRenderBar(t *testing.T) {
	cases := []struct {
		done, total int64
		want        string
	}{
		{0, 100, "[>         ]"},
		{50, 100, "[=====>    ]"},
		{100, 100, "[==========]"},
		{200, 100, "[==========]"},
		{5, 0, "[==========]"},
	}
	for _, c := range cases {
		if got := RenderBar(c.done, c.total, 10); got != c.want {
			t.Errorf("RenderBar(%d,%d) = %q, want %q", c.done, c.total, got, c.want)
		}
	}
}

func TestETA(t *testing.T) {
	if got := ETA(0, 100, 0); got != "-" {
		t.Fatalf("no rate: %q", got)
	}
	if got := ETA(50, 100, 10); got != "5s" {
		t.Fatalf("eta = %q", got)
	}
	if got := ETA(100, 100, 10); got != "-" {
		t.Fatalf("complete: %q", got)
	}
}

func TestLineFinalEventEndsLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, "model.bin")
	_ = l.OnProgress(downloader.ProgressEvent{BytesReceived: 10, TotalBytes: 100})
	_ = l.OnProgress(downloader.ProgressEvent{BytesReceived: 50, TotalBytes: 100, ChunkIndex: 1})
	if err := l.OnProgress(downloader.ProgressEvent{BytesReceived: 100, TotalBytes: 100, ChunkIndex: 2}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "model.bin") || !strings.Contains(out, "100.00%") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("final event should end the line: %q", out)
	}
	// The middle event lands inside the throttle window.
	if strings.Count(out, "\r") != 2 {
		t.Fatalf("expected 2 redraws, got %q", out)
	}
}

func TestLineUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, "")
	_ = l.OnProgress(downloader.ProgressEvent{BytesReceived: 2048, TotalBytes: -1})
	if strings.Contains(buf.String(), "%") || !strings.Contains(buf.String(), "2.0 kB") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLogSteps(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(logging.NewWithWriter("info", true, &buf), "a.bin")
	s.Step = 0.5
	for i := int64(1); i <= 10; i++ {
		_ = s.OnProgress(downloader.ProgressEvent{BytesReceived: i * 10, TotalBytes: 100})
	}
	// 10%, 50%, 100%
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Fatalf("expected 3 log lines, got %d:\n%s", n, buf.String())
	}
}

func TestLogNonPositiveStepsUseDefaults(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(logging.NewWithWriter("info", true, &buf), "a.bin")
	s.Step, s.StepBytes = 0, -1
	for i := int64(1); i <= 10; i++ {
		_ = s.OnProgress(downloader.ProgressEvent{BytesReceived: i * 10, TotalBytes: 100})
	}
	if n := strings.Count(buf.String(), "\n"); n < 1 || n > 10 {
		t.Fatalf("known total: %d log lines:\n%s", n, buf.String())
	}

	buf.Reset()
	u := NewLog(logging.NewWithWriter("info", true, &buf), "b.bin")
	u.StepBytes = 0
	for i := int64(1); i <= 4; i++ {
		_ = u.OnProgress(downloader.ProgressEvent{BytesReceived: i << 20, TotalBytes: -1})
	}
	// 1 MiB logs, the next line is due only after another 64 MiB.
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("unknown total: %d log lines:\n%s", n, buf.String())
	}
}

func TestMultiStopsAtFirstError(t *testing.T) {
	var calls []string
	a := downloader.SinkFunc(func(downloader.ProgressEvent) error { calls = append(calls, "a"); return errors.New("closed") })
	b := downloader.SinkFunc(func(downloader.ProgressEvent) error { calls = append(calls, "b"); return nil })
	err := Multi(nil, a, b).OnProgress(downloader.ProgressEvent{})
	if err == nil || len(calls) != 1 {
		t.Fatalf("err=%v calls=%v", err, calls)
	}
	if err := Nop().OnProgress(downloader.ProgressEvent{}); err != nil {
		t.Fatal(err)
	}
}
