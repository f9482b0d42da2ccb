// Package telemetry implements optional, off-by-default mirrors of the
// coordinator's periodic stats line to external systems. Every sink here is
// additive: a failure to publish is logged and never affects mining.
package telemetry

import (
	"context"
	"time"

	"github.com/silentarmy/stratum-miner/pkg/log"
)

// publishFunc does the actual network call for one sink implementation.
type publishFunc func(ctx context.Context, line string) error

// AsyncSink runs publishFunc on its own goroutine, fed by a bounded buffer,
// so a slow or unreachable backend never stalls the coordinator's event loop.
type AsyncSink struct {
	ch      chan string
	done    chan struct{}
	logger  *log.Logger
	publish publishFunc
}

// newAsyncSink wraps publish and starts its drain goroutine.
func newAsyncSink(name string, logger *log.Logger, publish publishFunc) *AsyncSink {
	s := &AsyncSink{
		ch:      make(chan string, 64),
		done:    make(chan struct{}),
		logger:  logger.WithComponent("telemetry_" + name),
		publish: publish,
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for line := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.publish(ctx, line); err != nil {
			s.logger.WithError(err).Warn("failed to publish telemetry sample")
		}
		cancel()
	}
}

// Publish enqueues line for the drain goroutine, dropping it if the buffer
// is full rather than ever blocking the caller.
func (s *AsyncSink) Publish(line string) {
	select {
	case s.ch <- line:
	default:
		s.logger.Warn("telemetry buffer full, dropping sample")
	}
}

// Close stops accepting new samples and waits for the buffered backlog to
// drain, bounded by ctx. Used only during shutdown, and only delays process
// exit by however long ctx allows — it never gates solver or Stratum teardown.
func (s *AsyncSink) Close(ctx context.Context) {
	close(s.ch)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}
