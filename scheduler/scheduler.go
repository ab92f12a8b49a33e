// Package scheduler drives every live connection from a single tick loop at a
// fixed rate, classifying each tick's outcome to keep or evict the connection.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/metrics"
	"github.com/cyberinferno/go-slp/perfmonitor"
	"github.com/cyberinferno/go-slp/protocol"
	"github.com/cyberinferno/go-slp/safemap"
)

// DefaultTickRate is the number of passes per second.
const DefaultTickRate = 20

// Scheduler owns the live connection set. Only the goroutine running Run (or
// calling Pass) may touch it; other goroutines read Connections instead.
type Scheduler struct {
	queue    *Queue
	live     []*connection.Connection
	period   time.Duration
	log      logger.Logger
	metrics  *metrics.Metrics
	snapshot *safemap.SafeMap[uint32, connection.Info]
	perf     *perfmonitor.PerformanceMonitor
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickRate sets the number of passes per second.
func WithTickRate(rate int) Option {
	return func(s *Scheduler) {
		s.period = PeriodFor(rate)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = l.With(logger.Str("component", "scheduler"))
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a Scheduler consuming connections from queue.
//
// Parameters:
//   - queue: The handoff the acceptor pushes new connections into
//   - opts: Optional settings
//
// Returns:
//   - A new *Scheduler with an empty live set
func New(queue *Queue, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:    queue,
		period:   PeriodFor(DefaultTickRate),
		log:      logger.NewNopLogger(),
		snapshot: safemap.NewSafeMap[uint32, connection.Info](),
		perf:     perfmonitor.NewPerformanceMonitor(),
		sleep:    sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Period returns the tick period.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Connections returns the live set as of the last completed pass. It is safe to
// call from any goroutine.
func (s *Scheduler) Connections() []connection.Info {
	return s.snapshot.Values()
}

// Connection returns one live connection as of the last completed pass.
func (s *Scheduler) Connection(id uint32) (connection.Info, bool) {
	return s.snapshot.Load(id)
}

// Live returns the size of the live set as of the last completed pass.
func (s *Scheduler) Live() int {
	return s.snapshot.Len()
}

// Pending returns the number of accepted connections waiting for their first
// pass.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Pass runs one scheduler pass: take pending connections and give each its
// first-contact tick, then tick every previously live connection exactly once.
// New connections that fail first contact for any reason other than having sent
// nothing yet never enter the live set.
func (s *Scheduler) Pass(ctx context.Context) {
	admitted := s.admit(ctx, s.queue.Drain())

	kept := s.live[:0]
	for _, c := range s.live {
		if s.keep(c, c.Tick(ctx)) {
			kept = append(kept, c)
		}
	}

	for i := len(kept); i < len(s.live); i++ {
		s.live[i] = nil
	}

	s.live = append(kept, admitted...)
	s.publish()
}

func (s *Scheduler) admit(ctx context.Context, pending []*connection.Connection) []*connection.Connection {
	admitted := pending[:0]
	for _, c := range pending {
		err := c.Tick(ctx)
		if err == nil || errors.Is(err, protocol.ErrNoPacketAvailable) {
			admitted = append(admitted, c)
			continue
		}

		if protocol.IsAborted(err) {
			s.evict(c, metrics.ReasonCompleted)
			continue
		}

		s.log.Warn("dropping connection on first contact", s.connFields(c, err)...)
		s.evict(c, metrics.ReasonError)
	}

	return admitted
}

// keep classifies the outcome of one tick and evicts the connection when the
// outcome calls for it.
func (s *Scheduler) keep(c *connection.Connection, err error) bool {
	switch {
	case err == nil, errors.Is(err, protocol.ErrNoPacketAvailable):
		return true
	case protocol.IsAborted(err):
		s.log.Debug("connection finished", s.connFields(c, err)...)
		s.evict(c, metrics.ReasonCompleted)
		return false
	case errors.Is(err, protocol.ErrTimedOut):
		s.log.Warn("connection timed out", s.connFields(c, err)...)
		s.evict(c, metrics.ReasonTimeout)
		return false
	case protocol.IsFatal(err):
		s.log.Error("evicting connection", s.connFields(c, err)...)
		s.evict(c, metrics.ReasonError)
		return false
	default:
		s.log.Error("tick failed", s.connFields(c, err)...)
		return true
	}
}

func (s *Scheduler) evict(c *connection.Connection, reason string) {
	if err := c.Close(); err != nil {
		s.log.Debug("close failed", s.connFields(c, err)...)
	}

	s.metrics.ConnectionEvicted(reason)
}

func (s *Scheduler) publish() {
	infos := make(map[uint32]connection.Info, len(s.live))
	for _, c := range s.live {
		infos[c.ID()] = c.Info()
	}

	s.snapshot.Replace(infos)
	s.metrics.SetLive(len(s.live))
}

func (s *Scheduler) connFields(c *connection.Connection, err error) []logger.Field {
	fields := []logger.Field{
		logger.Uint("conn_id", uint64(c.ID())),
		logger.Str("state", c.State().String()),
		logger.Err(err),
	}

	if addr := c.RemoteAddr(); addr != nil {
		fields = append(fields, logger.Str("remote", addr.String()))
	}

	return fields
}

// Run loops Pass at the configured rate until ctx is cancelled, then closes every
// live and pending connection.
//
// Parameters:
//   - ctx: Cancelling it stops the loop
//
// Returns:
//   - nil once the loop has stopped and all connections are closed
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("tick loop started", logger.Any("period", s.period.String()))
	defer s.shutdown()

	var carry time.Duration
	for ctx.Err() == nil {
		s.perf.Start()
		s.Pass(ctx)
		s.perf.Stop()

		elapsed := s.perf.Elapsed()
		s.metrics.PassCompleted(elapsed, s.period)

		var sleep time.Duration
		sleep, carry = NextSleep(s.period, elapsed, carry)
		if err := s.sleep(ctx, sleep); err != nil {
			break
		}
	}

	return nil
}

func (s *Scheduler) shutdown() {
	remaining := append(s.live, s.queue.Close()...)
	for _, c := range remaining {
		s.evict(c, metrics.ReasonShutdown)
	}

	s.live = nil
	s.publish()
	s.log.Info("tick loop stopped", logger.Any("closed", len(remaining)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
