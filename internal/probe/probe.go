// Package probe decides, on a best-effort basis, which channels currently have
// at least one reachable stream.
//
// Channels are checked in consecutive batches. Batches run strictly one after
// another; inside a batch every channel, and every sampled stream of each
// channel, is probed concurrently. A channel is online when any of its first
// MaxStreamsPerChannel streams answers. Probe failures are never returned as
// errors: they only mean "not confirmed".
package probe

import (
	"context"
	"iter"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/voyagen/primecast/internal/metrics"
	"github.com/voyagen/primecast/internal/models"
)

const (
	DefaultMaxStreamsPerChannel = 3
	DefaultBatchSize            = 5
)

// Options tunes a Prober. Zero values select the defaults.
type Options struct {
	MaxStreamsPerChannel int
	BatchSize            int
}

// Result is the outcome for one channel.
type Result struct {
	ChannelID      string `json:"channel_id"`
	Reachable      bool   `json:"reachable"`
	StreamsChecked int    `json:"streams_checked"`
}

// Update is emitted after every completed batch. Counters are cumulative and
// OnlineIDs is the full set confirmed so far, in confirmation order, so a
// consumer can replace its stored set with each update.
type Update struct {
	Checked   int      `json:"checked"`
	Total     int      `json:"total"`
	Online    int      `json:"online"`
	OnlineIDs []string `json:"online_ids"`
	Results   []Result `json:"results"` // this batch only
}

// Prober runs reachability checks. It keeps no state between runs and is safe
// for concurrent use.
type Prober struct {
	checker    Checker
	maxStreams int
	batchSize  int
}

// New returns a Prober using checker for individual stream probes.
func New(checker Checker, opts Options) *Prober {
	p := &Prober{
		checker:    checker,
		maxStreams: opts.MaxStreamsPerChannel,
		batchSize:  opts.BatchSize,
	}
	if p.maxStreams <= 0 {
		p.maxStreams = DefaultMaxStreamsPerChannel
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	return p
}

// ProbeOnline returns a sequence of progress updates, one per batch. Nothing
// runs until the sequence is ranged over, and each range starts a fresh run.
//
// ctx is checked before every batch and is passed to every probe, so
// cancelling it aborts in-flight requests and ends the sequence without
// further updates. A batch interrupted by cancellation is discarded. Stopping
// the range loop early has the same effect. An empty channel list yields
// nothing.
func (p *Prober) ProbeOnline(ctx context.Context, channels []models.Channel, streams []models.Stream) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		total := len(channels)
		if total == 0 {
			return
		}
		byChannel := groupStreams(channels, streams)

		var online []string
		for start := 0; start < total; start += p.batchSize {
			if ctx.Err() != nil {
				return
			}
			end := min(start+p.batchSize, total)
			results, ok := p.checkBatch(ctx, channels[start:end], byChannel)
			if !ok {
				return
			}
			for _, r := range results {
				if r.Reachable {
					online = append(online, r.ChannelID)
				}
			}
			u := Update{
				Checked:   end,
				Total:     total,
				Online:    len(online),
				OnlineIDs: slices.Clone(online),
				Results:   results,
			}
			if !yield(u) {
				return
			}
		}
	}
}

// groupStreams collects, per requested channel, its streams in catalog order.
func groupStreams(channels []models.Channel, streams []models.Stream) map[string][]models.Stream {
	want := make(map[string][]models.Stream, len(channels))
	for _, ch := range channels {
		want[ch.ID] = nil
	}
	for _, s := range streams {
		id := s.ChannelID()
		if id == "" {
			continue
		}
		if list, ok := want[id]; ok {
			want[id] = append(list, s)
		}
	}
	return want
}

// checkBatch probes every channel of batch concurrently. It returns false if
// ctx was cancelled before all channels resolved; the unfinished probes are
// abandoned and observe the same cancellation.
func (p *Prober) checkBatch(ctx context.Context, batch []models.Channel, byChannel map[string][]models.Stream) ([]Result, bool) {
	results := make([]Result, len(batch))
	var g errgroup.Group
	for i, ch := range batch {
		g.Go(func() error {
			results[i] = p.checkChannel(ctx, ch.ID, byChannel[ch.ID])
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, false
	}
	if ctx.Err() != nil {
		return nil, false
	}
	return results, true
}

// checkChannel probes the first maxStreams streams concurrently and ORs the
// outcomes. A channel without streams is unreachable.
func (p *Prober) checkChannel(ctx context.Context, channelID string, streams []models.Stream) Result {
	sample := streams[:min(len(streams), p.maxStreams)]
	res := Result{ChannelID: channelID, StreamsChecked: len(sample)}
	if len(sample) == 0 {
		return res
	}

	var reachable atomic.Bool
	var g errgroup.Group
	for _, s := range sample {
		g.Go(func() error {
			ok := p.safeCheck(ctx, s)
			metrics.RecordStreamProbe(ok)
			if ok {
				reachable.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	res.Reachable = reachable.Load()
	return res
}

// safeCheck turns a panicking checker into a negative outcome.
func (p *Prober) safeCheck(ctx context.Context, s models.Stream) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.checker.Reachable(ctx, s)
}
