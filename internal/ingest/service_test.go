package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairstream/internal/ingest"
	"pairstream/internal/market"
	"pairstream/internal/market/tickbuffer"
	"pairstream/internal/persist"
)

// scriptedConn replays a fixed set of messages, then either fails the read
// (simulating a transport failure) or blocks until closed.
type scriptedConn struct {
	msgs      [][]byte
	failAfter bool

	mu     sync.Mutex
	next   int
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn(failAfter bool, msgs ...[]byte) *scriptedConn {
	return &scriptedConn{msgs: msgs, failAfter: failAfter, closed: make(chan struct{})}
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	if c.next < len(c.msgs) {
		msg := c.msgs[c.next]
		c.next++
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()

	if c.failAfter {
		return nil, errors.New("connection reset")
	}
	<-c.closed
	return nil, errors.New("use of closed connection")
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// scriptedDialer hands out one conn per Dial call, in order.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []ingest.Conn
	calls int
}

func (d *scriptedDialer) Dial(_ context.Context, _ string) (ingest.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections scripted")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *scriptedDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type nopSink struct {
	mu    sync.Mutex
	ticks []market.Tick
}

func (s *nopSink) Enqueue(t market.Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
	return true
}

func (s *nopSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func trade(price float64, tsMillis int64) []byte {
	return []byte(fmt.Sprintf(`{"e":"trade","E":%d,"T":%d,"p":"%.2f","q":"0.5"}`, tsMillis, tsMillis, price))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseTrade(t *testing.T) {
	tick, ok := parseVia(t, trade(101.5, 1700000000000))
	require.True(t, ok)
	assert.Equal(t, "btcusdt", tick.Symbol)
	assert.Equal(t, 101.5, tick.Price)
	assert.Equal(t, 0.5, tick.Size)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.TS)
}

// parseVia exercises parsing through a one-shot pipeline so the unexported
// parser stays unexported.
func parseVia(t *testing.T, raw []byte) (market.Tick, bool) {
	t.Helper()
	buf := tickbuffer.New(4)
	sink := &nopSink{}
	dialer := &scriptedDialer{conns: []ingest.Conn{newScriptedConn(false, raw)}}
	svc := ingest.NewService(ingest.Config{Symbols: []string{"btcusdt"}}, buf, sink, dialer, zap.NewNop())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snap := buf.Snapshot("btcusdt"); len(snap) == 1 {
			return snap[0], true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return market.Tick{}, false
}

func TestMalformedMessagesDroppedSilently(t *testing.T) {
	buf := tickbuffer.New(8)
	sink := &nopSink{}
	conn := newScriptedConn(false,
		[]byte(`not json at all`),
		[]byte(`{"e":"aggTrade","p":"1","q":"1","T":1}`), // wrong event type
		[]byte(`{"e":"trade","p":"oops","q":"1","T":1}`), // bad price
		[]byte(`{"e":"trade","p":"1.0","q":"1.0"}`),      // missing timestamps
		trade(100, 1700000000000),
	)
	dialer := &scriptedDialer{conns: []ingest.Conn{conn}}
	svc := ingest.NewService(ingest.Config{Symbols: []string{"btcusdt"}}, buf, sink, dialer, zap.NewNop())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	waitFor(t, func() bool { return buf.Len("btcusdt") == 1 })
	assert.Equal(t, 1, sink.count(), "only the well-formed message becomes a tick")
}

func TestPipelineEndToEnd(t *testing.T) {
	// Feed emits prices 100..104 one second apart into a buffer of
	// capacity 3 and a persistence worker with batch size 2.
	base := int64(1700000000000)
	msgs := make([][]byte, 5)
	for i := range msgs {
		msgs[i] = trade(100+float64(i), base+int64(i)*1000)
	}

	buf := tickbuffer.New(3)
	store := &memoryStore{}
	worker := persist.NewWorker(store, persist.Config{
		BatchSize:     2,
		FlushInterval: time.Hour,
	}, zap.NewNop())
	worker.Start(context.Background())

	dialer := &scriptedDialer{conns: []ingest.Conn{newScriptedConn(false, msgs...)}}
	svc := ingest.NewService(ingest.Config{Symbols: []string{"btcusdt"}}, buf, worker, dialer, zap.NewNop())

	sub, leave := svc.Subscribe(16)
	defer leave()

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	for i := 0; i < 5; i++ {
		select {
		case tick := <-sub:
			assert.Equal(t, 100+float64(i), tick.Price)
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive tick %d", i)
		}
	}

	snap := buf.Snapshot("btcusdt")
	require.Len(t, snap, 3)
	for i, want := range []float64{102, 103, 104} {
		assert.Equal(t, want, snap[i].Price)
	}

	waitFor(t, func() bool { return len(store.batches()) == 2 })
	worker.Stop()
	sizes := store.batches()
	require.Len(t, sizes, 3)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestReconnectResumesWithoutDuplicates(t *testing.T) {
	base := int64(1700000000000)
	backoff := 30 * time.Millisecond

	first := newScriptedConn(true, trade(100, base), trade(101, base+1000))
	second := newScriptedConn(false, trade(102, base+2000), trade(103, base+3000))
	dialer := &scriptedDialer{conns: []ingest.Conn{first, second}}

	buf := tickbuffer.New(16)
	sink := &nopSink{}
	svc := ingest.NewService(ingest.Config{
		Symbols:          []string{"btcusdt"},
		ReconnectBackoff: backoff,
	}, buf, sink, dialer, zap.NewNop())

	start := time.Now()
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	waitFor(t, func() bool { return dialer.dialCalls() >= 2 })
	assert.Less(t, time.Since(start), 2*backoff+time.Second, "reconnect should happen within 2x backoff")

	waitFor(t, func() bool { return buf.Len("btcusdt") == 4 })
	snap := buf.Snapshot("btcusdt")
	seen := map[float64]bool{}
	for _, tick := range snap {
		assert.False(t, seen[tick.Price], "duplicate tick at price %.0f", tick.Price)
		seen[tick.Price] = true
	}
}

func TestAddSymbolWhileRunning(t *testing.T) {
	buf := tickbuffer.New(8)
	sink := &nopSink{}
	base := int64(1700000000000)
	dialer := &scriptedDialer{conns: []ingest.Conn{
		newScriptedConn(false, trade(100, base)),
		newScriptedConn(false, trade(3000, base)),
	}}
	svc := ingest.NewService(ingest.Config{Symbols: []string{"btcusdt"}}, buf, sink, dialer, zap.NewNop())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	waitFor(t, func() bool { return buf.Len("btcusdt") == 1 })

	svc.AddSymbol("ETHUSDT")
	waitFor(t, func() bool { return buf.Len("ethusdt") == 1 })

	assert.Equal(t, ingest.StateStreaming, svc.SymbolState("btcusdt"))
	assert.Equal(t, ingest.StateStreaming, svc.SymbolState("ethusdt"))
}

func TestStopIsIdempotentAndTerminal(t *testing.T) {
	buf := tickbuffer.New(4)
	sink := &nopSink{}
	dialer := &scriptedDialer{conns: []ingest.Conn{newScriptedConn(false, trade(100, 1700000000000))}}
	svc := ingest.NewService(ingest.Config{Symbols: []string{"btcusdt"}}, buf, sink, dialer, zap.NewNop())

	require.NoError(t, svc.Start(context.Background()))
	waitFor(t, func() bool { return buf.Len("btcusdt") == 1 })

	svc.Stop()
	svc.Stop() // no-op

	assert.Equal(t, ingest.StateStopped, svc.SymbolState("btcusdt"))
}

// memoryStore mirrors the persistence test fake; batches records flush sizes.
type memoryStore struct {
	mu   sync.Mutex
	seen [][]market.Tick
}

func (m *memoryStore) InsertTicks(_ context.Context, ticks []market.Tick) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]market.Tick, len(ticks))
	copy(cp, ticks)
	m.seen = append(m.seen, cp)
	return len(cp), nil
}

func (m *memoryStore) batches() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.seen))
	for i, b := range m.seen {
		out[i] = len(b)
	}
	return out
}
