// Package live recomputes pair analytics on every tick arrival, evaluates
// alerts, and broadcasts the combined payload to subscribers.
package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/alerts"
	"pairstream/internal/analytics"
	"pairstream/internal/fanout"
	"pairstream/internal/market"
	"pairstream/internal/metrics"
)

// TickSource is the broadcast surface of the ingest service.
type TickSource interface {
	Subscribe(buffer int) (<-chan market.Tick, func())
}

// SnapshotProvider reads recent ticks for a symbol, by copy.
type SnapshotProvider interface {
	Snapshot(symbol string) []market.Tick
}

// Payload is one live update delivered to subscribers.
type Payload struct {
	Timestamp time.Time               `json:"timestamp"`
	Symbol    string                  `json:"symbol"`
	Price     float64                 `json:"price"`
	Analytics analytics.PairAnalytics `json:"analytics"`
	Alerts    []alerts.Event          `json:"alerts"`
}

// Config selects the monitored pair and computation parameters.
type Config struct {
	SymbolA          string
	SymbolB          string
	Window           int
	IncludeIntercept bool
	IncludeADF       bool
	TickQueueSize    int
	SubscriberQueue  int
}

func (c *Config) applyDefaults() {
	if c.Window < 2 {
		c.Window = 300
	}
	if c.TickQueueSize < 1 {
		c.TickQueueSize = 2000
	}
	if c.SubscriberQueue < 1 {
		c.SubscriberQueue = 200
	}
}

// Stream consumes tick arrivals and publishes metric payloads. New
// subscribers immediately receive the most recent payload, if any.
type Stream struct {
	cfg      Config
	log      *zap.Logger
	source   TickSource
	provider SnapshotProvider
	alerts   *alerts.Manager
	hub      *fanout.Hub[Payload]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewStream(cfg Config, source TickSource, provider SnapshotProvider, manager *alerts.Manager, log *zap.Logger) *Stream {
	cfg.applyDefaults()
	cfg.SymbolA = market.NormalizeSymbol(cfg.SymbolA)
	cfg.SymbolB = market.NormalizeSymbol(cfg.SymbolB)
	return &Stream{
		cfg:      cfg,
		log:      log,
		source:   source,
		provider: provider,
		alerts:   manager,
		hub:      fanout.NewStickyHub[Payload](),
	}
}

// Start launches the recomputation loop. Starting twice is a no-op.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	ticks, leave := s.source.Subscribe(s.cfg.TickQueueSize)
	go s.run(runCtx, ticks, leave)

	s.log.Info("live metrics stream started",
		zap.String("symbol_a", s.cfg.SymbolA),
		zap.String("symbol_b", s.cfg.SymbolB),
		zap.Int("window", s.cfg.Window))
	return nil
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("live metrics stream stopped")
}

// Subscribe joins the payload broadcast. The most recently computed payload
// is replayed first so new subscribers do not start from an empty state.
func (s *Stream) Subscribe() (<-chan Payload, func()) {
	return s.hub.Subscribe(s.cfg.SubscriberQueue)
}

// Latest returns the most recently computed payload, or nil.
func (s *Stream) Latest() *Payload {
	if last, ok := s.hub.Last(); ok {
		return &last
	}
	return nil
}

func (s *Stream) run(ctx context.Context, ticks <-chan market.Tick, leave func()) {
	defer close(s.done)
	defer leave()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			s.recompute(tick)
		}
	}
}

func (s *Stream) recompute(tick market.Tick) {
	result, err := analytics.ComputePair(
		s.provider.Snapshot(s.cfg.SymbolA),
		s.provider.Snapshot(s.cfg.SymbolB),
		analytics.PairOptions{
			Window:           s.cfg.Window,
			IncludeIntercept: s.cfg.IncludeIntercept,
			IncludeADF:       s.cfg.IncludeADF,
		},
	)
	if err != nil {
		// Not computable yet; nothing to broadcast this cycle.
		s.log.Debug("pair metrics not computable", zap.Error(err))
		return
	}

	snapshot := alerts.Snapshot{
		Spread:      result.LatestSpread,
		ZScore:      result.LatestZScore,
		Correlation: result.RollingCorrelation,
		Beta:        &result.HedgeRatio.Beta,
	}
	triggered := s.alerts.Evaluate(snapshot)
	if len(triggered) > 0 {
		metrics.AlertEvents.Add(float64(len(triggered)))
	}

	s.hub.Publish(Payload{
		Timestamp: tick.TS,
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Analytics: result,
		Alerts:    triggered,
	})
}
