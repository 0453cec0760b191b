package statusline

import (
	"strconv"
	"time"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/compute"
	"github.com/cbm-fles/flesnet-sub001/internal/heartbeat"
	"github.com/cbm-fles/flesnet-sub001/internal/input"
)

// InputSource adapts an input.Builder and its IntervalStats into a
// statusline.Source. Now defaults to time.Now when nil.
type InputSource struct {
	Builder *input.Builder
	Stats   *input.IntervalStats
	Now     func() time.Time
}

// Sample reports the builder's progress and throughput counters.
func (s *InputSource) Sample() []Counter {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	snap := s.Stats.Snapshot(now())
	return []Counter{
		{Name: "next_ts", Value: strconv.FormatUint(s.Builder.NextTimeslice(), 10)},
		{Name: "acked_desc", Value: strconv.FormatUint(s.Builder.AckedDesc(), 10)},
		{Name: "acked_data", Value: strconv.FormatUint(s.Builder.AckedData(), 10)},
		{Name: "ts_sent", Value: strconv.FormatUint(snap.Timeslices, 10)},
		{Name: "mb_per_sec", Value: strconv.FormatFloat(snap.BytesPerSec/(1024*1024), 'f', 2, 64)},
	}
}

// ComputeSource adapts a compute.Builder into a statusline.Source.
type ComputeSource struct {
	Builder *compute.Builder
}

// Sample reports the compute builder's red-lantern ordering progress.
func (s *ComputeSource) Sample() []Counter {
	return []Counter{
		{Name: "written", Value: strconv.FormatUint(s.Builder.CompletelyWritten(), 10)},
		{Name: "acked", Value: strconv.FormatUint(s.Builder.Acked(), 10)},
		{Name: "red_lantern", Value: strconv.Itoa(s.Builder.RedLantern())},
	}
}

// InputChannelHealth adapts a heartbeat.Layer plus the InputChannels it
// tracks into a statusline.HealthSource.
type InputChannelHealth struct {
	Layer    *heartbeat.Layer
	Channels []*channel.InputChannel
}

// Health classifies every tracked channel, refreshing the Layer's
// inactive/timed_out verdict before reporting it.
func (h *InputChannelHealth) Health() []ChannelHealth {
	indices := h.Layer.Indices()
	out := make([]ChannelHealth, 0, len(indices))
	for _, idx := range indices {
		inactive, timedOut := h.Layer.Classify(idx)
		connected := idx < len(h.Channels) && h.Channels[idx].State() == channel.InputActive
		out = append(out, ChannelHealth{Index: idx, Inactive: inactive, TimedOut: timedOut, Connected: connected})
	}
	return out
}
