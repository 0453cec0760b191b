// Package statusline prints a periodic, colored one-line health summary of a
// running InputBuilder/ComputeBuilder to a terminal, the interactive
// counterpart to the teacher's std.SnmpLogger CSV dump: same ticker-driven
// periodic-sample shape, but rendered for a human watching a terminal
// instead of appended to a CSV file, and reporting timeslice/channel health
// instead of raw KCP transport counters.
package statusline

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// Source supplies the numbers a Printer samples on every tick. Callers
// implement it as a thin adapter over an input.Builder, compute.Builder,
// and/or heartbeat.Layer. Printer itself works only through Source and
// HealthSource; the ready-made adapters in adapters.go are what import
// those packages.
type Source interface {
	// Sample returns the current set of named counters, in display order.
	Sample() []Counter
}

// Counter is one named value of a Sample, e.g. {"acked_ts", "1024"}.
type Counter struct {
	Name  string
	Value string
}

// ChannelHealth is one channel's classification as of the last heartbeat
// evaluation (spec §4.7), used to color a Printer's channel summary.
type ChannelHealth struct {
	Index     int
	Inactive  bool
	TimedOut  bool
	Connected bool
}

// HealthSource supplies per-channel liveness, typically backed by a
// heartbeat.Layer plus the channel's connection state.
type HealthSource interface {
	Health() []ChannelHealth
}

// Printer writes one colored summary line per tick to out. A nil out
// defaults to no-op; quiet suppresses output entirely without stopping the
// ticker, mirroring the teacher's config.Quiet flag.
type Printer struct {
	out    io.Writer
	quiet  bool
	source Source
	health HealthSource
	label  string
}

// NewPrinter creates a Printer that reports label (e.g. an input node's
// index) sampling source every tick, optionally annotated with channel
// health from health (nil if the caller has none to report).
func NewPrinter(out io.Writer, label string, quiet bool, source Source, health HealthSource) *Printer {
	return &Printer{out: out, quiet: quiet, source: source, health: health, label: label}
}

// Run blocks, printing one line every interval until stop is closed. Like
// SnmpLogger, a non-positive interval disables the loop entirely.
func (p *Printer) Run(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Printer) tick() {
	if p.quiet || p.out == nil {
		return
	}
	line := fmt.Sprintf("[%s %s]", p.label, time.Now().Format("15:04:05"))
	for _, c := range p.source.Sample() {
		line += fmt.Sprintf(" %s=%s", c.Name, c.Value)
	}
	fmt.Fprintln(p.out, line)

	if p.health == nil {
		return
	}
	for _, h := range p.health.Health() {
		fmt.Fprintln(p.out, p.colorize(h))
	}
}

func (p *Printer) colorize(h ChannelHealth) string {
	switch {
	case h.TimedOut:
		return color.RedString("  channel %d: timed_out", h.Index)
	case h.Inactive:
		return color.YellowString("  channel %d: inactive", h.Index)
	case !h.Connected:
		return color.YellowString("  channel %d: disconnected", h.Index)
	default:
		return color.GreenString("  channel %d: ok", h.Index)
	}
}
