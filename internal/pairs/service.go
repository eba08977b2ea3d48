// Package pairs serves on-demand pair analytics over the union of durable
// history and the live in-memory buffer.
package pairs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/analytics"
	"pairstream/internal/market"
)

// Timeframes accepted by Request.Timeframe.
var timeframes = map[string]time.Duration{
	"tick": 0,
	"1s":   time.Second,
	"1m":   time.Minute,
	"5m":   5 * time.Minute,
}

// RecentReader fetches recent durable ticks for a symbol, ascending by time.
type RecentReader interface {
	RecentTicks(ctx context.Context, symbol string, limit int) ([]market.Tick, error)
}

// SnapshotProvider reads the live buffer, by copy.
type SnapshotProvider interface {
	Snapshot(symbol string) []market.Tick
}

// SymbolRegistrar lets a request pull a previously unseen symbol into the
// ingestion set.
type SymbolRegistrar interface {
	AddSymbol(symbol string)
}

// Request describes one analytics evaluation.
type Request struct {
	SymbolA          string
	SymbolB          string
	Window           int
	Timeframe        string // tick, 1s, 1m, 5m
	IncludeIntercept bool
	IncludeADF       bool
}

// Service merges store and buffer data and runs the analytics engine.
type Service struct {
	store     RecentReader
	buffer    SnapshotProvider
	registrar SymbolRegistrar
	log       *zap.Logger

	defaultWindow int
}

func NewService(store RecentReader, buffer SnapshotProvider, registrar SymbolRegistrar, defaultWindow int, log *zap.Logger) *Service {
	if defaultWindow < 2 {
		defaultWindow = 300
	}
	return &Service{
		store:         store,
		buffer:        buffer,
		registrar:     registrar,
		log:           log,
		defaultWindow: defaultWindow,
	}
}

// Evaluate computes pair analytics for the request. Insufficient data yields
// an error wrapping analytics.ErrNotComputable, which the serving layer maps
// to an empty result rather than a failure.
func (s *Service) Evaluate(ctx context.Context, req Request) (analytics.PairAnalytics, error) {
	interval, ok := timeframes[req.Timeframe]
	if !ok && req.Timeframe != "" {
		return analytics.PairAnalytics{}, fmt.Errorf("unsupported timeframe %q", req.Timeframe)
	}

	window := req.Window
	if window < 2 {
		window = s.defaultWindow
	}

	ticksA, err := s.prepare(ctx, market.NormalizeSymbol(req.SymbolA), window, interval)
	if err != nil {
		return analytics.PairAnalytics{}, err
	}
	ticksB, err := s.prepare(ctx, market.NormalizeSymbol(req.SymbolB), window, interval)
	if err != nil {
		return analytics.PairAnalytics{}, err
	}

	return analytics.ComputePair(ticksA, ticksB, analytics.PairOptions{
		Window:           window,
		IncludeIntercept: req.IncludeIntercept,
		IncludeADF:       req.IncludeADF,
	})
}

// prepare merges durable and buffered ticks for a symbol, deduplicated by
// timestamp, ascending, bounded to the most recent `limit` entries, then
// optionally resampled to the requested timeframe.
func (s *Service) prepare(ctx context.Context, symbol string, window int, interval time.Duration) ([]market.Tick, error) {
	if s.registrar != nil {
		s.registrar.AddSymbol(symbol)
	}

	limit := window * 5
	if limit < 2000 {
		limit = 2000
	}

	stored, err := s.store.RecentTicks(ctx, symbol, limit)
	if err != nil {
		// Degraded operation: the live buffer alone can still serve.
		s.log.Warn("failed to read durable ticks, using buffer only",
			zap.String("symbol", symbol), zap.Error(err))
		stored = nil
	}

	merged := mergeTicks(stored, s.buffer.Snapshot(symbol), limit)
	if interval <= 0 || len(merged) == 0 {
		return merged, nil
	}

	resampled := analytics.BarsToTicks(symbol, analytics.Resample(merged, interval))
	if len(resampled) == 0 {
		return merged, nil
	}
	return resampled, nil
}

func mergeTicks(stored, buffered []market.Tick, limit int) []market.Tick {
	seen := make(map[int64]market.Tick, len(stored)+len(buffered))
	for _, t := range stored {
		seen[t.TS.UnixNano()] = t
	}
	for _, t := range buffered {
		seen[t.TS.UnixNano()] = t
	}

	merged := make([]market.Tick, 0, len(seen))
	for _, t := range seen {
		merged = append(merged, t)
	}
	sort.Slice(merged, func(i, k int) bool { return merged[i].TS.Before(merged[k].TS) })

	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}
