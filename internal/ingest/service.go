// Package ingest manages per-symbol reconnecting consumers of the exchange
// trade feed and fans normalized ticks out to the buffer, the persistence
// sink, and live subscribers.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/fanout"
	"pairstream/internal/market"
	"pairstream/internal/market/tickbuffer"
	"pairstream/internal/metrics"
)

// State is the lifecycle phase of one symbol's consumer task.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	}
	return "disconnected"
}

// Sink receives every normalized tick for durable persistence. Enqueue
// reports false when the tick was dropped under backpressure.
type Sink interface {
	Enqueue(tick market.Tick) bool
}

// Config holds the feed connection parameters.
type Config struct {
	BaseURL          string // e.g. "wss://fstream.binance.com/ws"
	Symbols          []string
	ConnectTimeout   time.Duration
	ReconnectBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "wss://fstream.binance.com/ws"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 5 * time.Second
	}
}

// Service owns one consumer goroutine per symbol. Transport failures are
// retried forever with a fixed backoff; only Stop terminates a consumer.
type Service struct {
	cfg    Config
	log    *zap.Logger
	dialer Dialer
	buffer *tickbuffer.Buffer
	sink   Sink
	hub    *fanout.Hub[market.Tick]

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	symbols map[string]*atomic.Int32
	wg      sync.WaitGroup
}

func NewService(cfg Config, buffer *tickbuffer.Buffer, sink Sink, dialer Dialer, log *zap.Logger) *Service {
	cfg.applyDefaults()
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		dialer:  dialer,
		buffer:  buffer,
		sink:    sink,
		hub:     fanout.NewHub[market.Tick](),
		symbols: make(map[string]*atomic.Int32),
	}
}

// Start launches a consumer task for every configured symbol. Starting an
// already-running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info("ingest service already running")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, symbol := range s.cfg.Symbols {
		sym := market.NormalizeSymbol(symbol)
		if _, ok := s.symbols[sym]; !ok {
			s.symbols[sym] = &atomic.Int32{}
		}
	}
	// Launch every known symbol, including ones added before Start.
	for sym, st := range s.symbols {
		s.buffer.Ensure(sym)
		s.wg.Add(1)
		go s.consumeSymbol(s.ctx, sym, st)
	}
	s.log.Info("ingest service started", zap.Strings("symbols", s.cfg.Symbols))
	return nil
}

// Stop cancels all consumer tasks and waits for them to exit. Stopping an
// already-stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info("ingest service stopped")
}

// AddSymbol registers a new symbol for ingestion. Safe to call concurrently
// with an active run; already-running symbols are unaffected.
func (s *Service) AddSymbol(symbol string) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; ok {
		return
	}
	s.buffer.Ensure(symbol)
	if s.running {
		s.launchLocked(symbol)
	} else {
		s.symbols[symbol] = &atomic.Int32{}
	}
}

// Subscribe joins the live tick broadcast with a bounded channel. The
// returned leave function is idempotent.
func (s *Service) Subscribe(buffer int) (<-chan market.Tick, func()) {
	return s.hub.Subscribe(buffer)
}

// SymbolState reports the lifecycle phase of one symbol's consumer.
func (s *Service) SymbolState(symbol string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.symbols[market.NormalizeSymbol(symbol)]
	if !ok {
		return StateDisconnected
	}
	return State(st.Load())
}

func (s *Service) launchLocked(symbol string) {
	st, ok := s.symbols[symbol]
	if !ok {
		st = &atomic.Int32{}
		s.symbols[symbol] = st
	}
	s.buffer.Ensure(symbol)
	s.wg.Add(1)
	go s.consumeSymbol(s.ctx, symbol, st)
}

func (s *Service) consumeSymbol(ctx context.Context, symbol string, st *atomic.Int32) {
	defer s.wg.Done()
	defer st.Store(int32(StateStopped))

	url := fmt.Sprintf("%s/%s@trade", s.cfg.BaseURL, symbol)

	for ctx.Err() == nil {
		st.Store(int32(StateConnecting))

		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		conn, err := s.dialer.Dial(dialCtx, url)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			st.Store(int32(StateDisconnected))
			metrics.FeedReconnects.WithLabelValues(symbol).Inc()
			s.log.Warn("feed connect failed, retrying",
				zap.String("symbol", symbol),
				zap.Duration("backoff", s.cfg.ReconnectBackoff),
				zap.Error(err))
			if !sleepCtx(ctx, s.cfg.ReconnectBackoff) {
				return
			}
			continue
		}

		st.Store(int32(StateStreaming))
		s.log.Info("feed connected", zap.String("symbol", symbol), zap.String("url", url))

		err = s.streamConn(ctx, symbol, conn)
		if ctx.Err() != nil {
			return
		}

		st.Store(int32(StateDisconnected))
		metrics.FeedReconnects.WithLabelValues(symbol).Inc()
		s.log.Warn("feed disconnected, retrying",
			zap.String("symbol", symbol),
			zap.Duration("backoff", s.cfg.ReconnectBackoff),
			zap.Error(err))
		if !sleepCtx(ctx, s.cfg.ReconnectBackoff) {
			return
		}
	}
}

// streamConn reads messages until the connection fails or the context is
// canceled. The connection is closed on return.
func (s *Service) streamConn(ctx context.Context, symbol string, conn Conn) error {
	// Unblock the read loop when the consumer is being stopped.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-readCtx.Done()
		_ = conn.Close()
	}()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := parseTrade(symbol, raw)
		if !ok {
			metrics.TicksDropped.WithLabelValues(symbol, metrics.ReasonParse).Inc()
			continue
		}

		s.buffer.Append(tick)
		s.sink.Enqueue(tick) // drop already counted by the sink
		if dropped := s.hub.Publish(tick); dropped > 0 {
			metrics.TicksDropped.WithLabelValues(symbol, metrics.ReasonSlowSubscriber).Add(float64(dropped))
		}
		metrics.TicksIngested.WithLabelValues(symbol).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
