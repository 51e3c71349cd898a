package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/streamweft/go-demux-bridge/internal/demux"
	"github.com/streamweft/go-demux-bridge/internal/media"
)

// consumerGroup drains the enabled track sinks of one pass. Draining stands
// in for the decode stage a real client would run; without it the bounded
// sinks fill and the router starts dropping.
type consumerGroup struct {
	logger  *slog.Logger
	wg      sync.WaitGroup
	drained atomic.Int64
	bytes   atomic.Int64
}

// startConsumers launches one goroutine per enabled track. Each consumer
// reads the sink until the pass finishes and the channel closes.
func startConsumers(logger *slog.Logger, tracks []*demux.Track) *consumerGroup {
	g := &consumerGroup{logger: logger}

	for _, tr := range tracks {
		ch := tr.Samples()
		if ch == nil {
			continue
		}
		g.wg.Add(1)
		go g.drain(tr, ch)
	}

	return g
}

func (g *consumerGroup) drain(tr *demux.Track, ch <-chan media.Sample) {
	defer g.wg.Done()

	var count, bytes int64
	for s := range ch {
		count++
		bytes += int64(s.Size())
	}

	g.drained.Add(count)
	g.bytes.Add(bytes)

	g.logger.Debug("sink_drained",
		"track_id", tr.ID(),
		"kind", tr.Kind().String(),
		"samples", count,
		"bytes", bytes)
}

// Wait blocks until every sink has closed.
func (g *consumerGroup) Wait() {
	g.wg.Wait()
}

// Drained returns the total samples consumed so far.
func (g *consumerGroup) Drained() int64 {
	return g.drained.Load()
}

// Bytes returns the total sample bytes consumed so far.
func (g *consumerGroup) Bytes() int64 {
	return g.bytes.Load()
}
