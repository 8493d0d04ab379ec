// Package progress provides downloader.Sink implementations for terminals and logs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/logging"
)

// Line renders a single-line progress bar with throughput and ETA, redrawn in
// place with '\r'. Redraws are throttled to Interval except for the final event.
type Line struct {
	Out      io.Writer
	Label    string
	Width    int
	Interval time.Duration

	mu        sync.Mutex
	start     time.Time
	lastDraw  time.Time
	lastBytes int64
	lastT     time.Time
	rate      float64
	barStyle  lipgloss.Style
}

// NewLine returns a Line writing to out.
func NewLine(out io.Writer, label string) *Line {
	return &Line{
		Out:      out,
		Label:    label,
		Width:    30,
		Interval: 200 * time.Millisecond,
		barStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("81")),
	}
}

func (l *Line) OnProgress(e downloader.ProgressEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if l.start.IsZero() {
		l.start, l.lastT = now, now
	}
	if dt := now.Sub(l.lastT).Seconds(); dt > 0.25 {
		l.rate = float64(e.BytesReceived-l.lastBytes) / dt
		l.lastBytes, l.lastT = e.BytesReceived, now
	} else if l.rate == 0 {
		if el := now.Sub(l.start).Seconds(); el > 0 {
			l.rate = float64(e.BytesReceived) / el
		}
	}
	final := e.KnownTotal() && e.BytesReceived >= e.TotalBytes
	if !final && now.Sub(l.lastDraw) < l.Interval {
		return nil
	}
	l.lastDraw = now
	_, err := fmt.Fprintf(l.Out, "\r%s", l.render(e))
	if err == nil && final {
		_, err = fmt.Fprintln(l.Out)
	}
	return err
}

// Done terminates the line so later output starts on a fresh row.
func (l *Line) Done() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.lastDraw.IsZero() {
		_, _ = fmt.Fprint(l.Out, "\r\033[K")
	}
}

func (l *Line) render(e downloader.ProgressEvent) string {
	var b strings.Builder
	if l.Label != "" {
		b.WriteString(l.Label)
		b.WriteString(" ")
	}
	if e.KnownTotal() {
		b.WriteString(l.barStyle.Render(RenderBar(e.BytesReceived, e.TotalBytes, l.Width)))
		fmt.Fprintf(&b, " %6.2f%%", e.Fraction()*100)
	}
	fmt.Fprintf(&b, "  %8s/s", orDash(l.rate))
	if e.KnownTotal() {
		fmt.Fprintf(&b, "  ETA %s  %s/%s", ETA(e.BytesReceived, e.TotalBytes, l.rate),
			humanize.Bytes(uint64(e.BytesReceived)), humanize.Bytes(uint64(e.TotalBytes)))
	} else {
		fmt.Fprintf(&b, "  %s", humanize.Bytes(uint64(e.BytesReceived)))
	}
	return b.String()
}

// RenderBar draws an ASCII bar of width cells.
func RenderBar(completed, total int64, width int) string {
	if total <= 0 {
		total = 1
	}
	ratio := float64(completed) / float64(total)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	if filled >= width {
		return "[" + strings.Repeat("=", width) + "]"
	}
	return "[" + strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1) + "]"
}

// ETA formats the remaining time at rate bytes/s, or "-" when unknown.
func ETA(completed, total int64, rate float64) string {
	if rate <= 0 || total <= 0 || completed >= total {
		return "-"
	}
	rem := time.Duration(float64(total-completed) / rate * float64(time.Second))
	return rem.Round(time.Second).String()
}

func orDash(rate float64) string {
	if rate <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(rate))
}

// Log reports progress through the logger at most once per Step of completion
// (or per Step bytes when the total is unknown).
type Log struct {
	log   *logging.Logger
	label string
	// Step is a fraction in (0,1] for known totals; anything else means
	// defaultStep.
	Step float64
	// StepBytes applies when the total is unknown; <= 0 means defaultStepBytes.
	StepBytes int64

	mu   sync.Mutex
	next float64
	nb   int64
}

const (
	defaultStep      = 0.1
	defaultStepBytes = 64 << 20
)

func NewLog(log *logging.Logger, label string) *Log {
	return &Log{log: log, label: label, Step: defaultStep, StepBytes: defaultStepBytes}
}

func (s *Log) OnProgress(e downloader.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.KnownTotal() {
		f := e.Fraction()
		if f < s.next && f < 1 {
			return nil
		}
		step := s.Step
		if !(step > 0 && step <= 1) {
			step = defaultStep
		}
		for s.next <= f {
			s.next += step
		}
		s.log.Infof("%s: %.0f%% (%s of %s)", s.label, f*100, humanize.IBytes(uint64(e.BytesReceived)), humanize.IBytes(uint64(e.TotalBytes)))
		return nil
	}
	if e.BytesReceived < s.nb {
		return nil
	}
	stepBytes := s.StepBytes
	if stepBytes <= 0 {
		stepBytes = defaultStepBytes
	}
	s.nb = e.BytesReceived + stepBytes
	s.log.Infof("%s: %s received", s.label, humanize.IBytes(uint64(e.BytesReceived)))
	return nil
}

// Multi fans an event out to every sink, stopping at the first error.
func Multi(sinks ...downloader.Sink) downloader.Sink {
	var live []downloader.Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return downloader.SinkFunc(func(e downloader.ProgressEvent) error {
		for _, s := range live {
			if err := s.OnProgress(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Nop discards every event.
func Nop() downloader.Sink {
	return downloader.SinkFunc(func(downloader.ProgressEvent) error { return nil })
}
