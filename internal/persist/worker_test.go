package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/candlefeed/internal/model"
	"github.com/rickgao/candlefeed/internal/queue"
	"github.com/rickgao/candlefeed/internal/source"
)

type insert struct {
	dest model.Destination
	doc  model.Document
}

// fakeStore is an in-memory Store enforcing dt uniqueness per destination.
type fakeStore struct {
	mu          sync.Mutex
	indexCalls  map[model.Destination]int
	inserts     []insert
	insertCalls int
	seen        map[model.Destination]map[int64]bool
	failIndex   int
	failInsert  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		indexCalls: make(map[model.Destination]int),
		seen:       make(map[model.Destination]map[int64]bool),
	}
}

func (s *fakeStore) EnsureIndex(_ context.Context, dest model.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexCalls[dest]++
	if s.failIndex > 0 {
		s.failIndex--
		return errors.New("index build failed")
	}
	return nil
}

func (s *fakeStore) Insert(_ context.Context, dest model.Destination, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.failInsert > 0 {
		s.failInsert--
		return errors.New("store unavailable")
	}
	if s.seen[dest] == nil {
		s.seen[dest] = make(map[int64]bool)
	}
	key := doc.DT.UnixNano()
	if s.seen[dest][key] {
		return errors.New("E11000 duplicate key error")
	}
	s.seen[dest][key] = true
	s.inserts = append(s.inserts, insert{dest: dest, doc: doc})
	return nil
}

func (s *fakeStore) Ping(context.Context) error  { return nil }
func (s *fakeStore) Close(context.Context) error { return nil }

type testWorker struct {
	*Worker
	store  *fakeStore
	queue  *queue.Buffer[model.QueuedCandle]
	sleeps []time.Duration
}

func newTestWorker(t *testing.T) *testWorker {
	t.Helper()
	table, err := source.NewTable(source.DefaultEntries())
	require.NoError(t, err)

	store := newFakeStore()
	q := queue.NewBuffer[model.QueuedCandle](16, 0)
	w := NewWorker(DefaultConfig(), table, store, q, nil, nil)

	tw := &testWorker{Worker: w, store: store, queue: q}
	w.sleep = func(_ context.Context, d time.Duration) {
		tw.sleeps = append(tw.sleeps, d)
	}
	return tw
}

// runAll closes the queue and runs the worker until it has drained everything.
func (tw *testWorker) runAll(t *testing.T) {
	t.Helper()
	tw.queue.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tw.Run(ctx))
}

func (tw *testWorker) push(t *testing.T, c model.Candle) {
	t.Helper()
	require.NoError(t, tw.queue.Push(model.QueuedCandle{Candle: c, ReceivedAt: time.Now()}))
}

func candle(src, instrument, tf string, openTime float64) model.Candle {
	return model.Candle{
		Source: src, Instrument: instrument, Timeframe: tf,
		OpenTime: openTime, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15,
		Spread: 3, SendTime: openTime + 500,
	}
}

func TestWorker_StoresTimezoneCorrectedDocuments(t *testing.T) {
	tw := newTestWorker(t)
	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.push(t, candle("Alpari", "EURUSD", "5", 1700000000000))
	tw.runAll(t)

	require.Len(t, tw.store.inserts, 2)

	r := tw.store.inserts[0]
	assert.Equal(t, model.Destination{Database: "tr_ticks_mt5_Rithmic", Collection: "ES_T1"}, r.dest)
	assert.True(t, r.doc.DT.Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)), "Rithmic dt = %v", r.doc.DT)
	// 22:13 UTC is 17:13 in New York.
	assert.InDelta(t, 17+13.0/60, r.doc.Candle[5], 1e-9)
	assert.Equal(t, []float64{1.1, 1.2, 1.0, 1.15, 0}, r.doc.Candle[:5])
	assert.Equal(t, 3.0, r.doc.Candle[6])

	a := tw.store.inserts[1]
	assert.Equal(t, model.Destination{Database: "tr_ticks_mt5_Alpari", Collection: "EURUSD_T5"}, a.dest)
	assert.True(t, a.doc.DT.Equal(time.Date(2023, 11, 14, 20, 13, 20, 0, time.UTC)), "Alpari dt = %v", a.doc.DT.UTC())
	assert.InDelta(t, 15+13.0/60, a.doc.Candle[5], 1e-9)

	assert.False(t, r.doc.DT.Equal(a.doc.DT))
	assert.Equal(t, int64(2), tw.Stats().Inserts)
}

func TestWorker_IndexCheckedOncePerDestination(t *testing.T) {
	tw := newTestWorker(t)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				openTime := float64(1700000000000 + (p*25+i)*60000)
				tw.push(t, candle("Rithmic", "ES", "1", openTime))
			}
		}(p)
	}
	wg.Wait()
	tw.push(t, candle("Rithmic", "NQ", "1", 1700000000000))
	tw.push(t, candle("ICM", "ES", "1", 1700000000000))
	tw.runAll(t)

	assert.Len(t, tw.store.inserts, 102)
	assert.Equal(t, 1, tw.store.indexCalls[model.Destination{Database: "tr_ticks_mt5_Rithmic", Collection: "ES_T1"}])
	assert.Equal(t, 1, tw.store.indexCalls[model.Destination{Database: "tr_ticks_mt5_Rithmic", Collection: "NQ_T1"}])
	assert.Equal(t, 1, tw.store.indexCalls[model.Destination{Database: "tr_ticks_mt5_ICM", Collection: "ES_T1"}])
	assert.Equal(t, int64(3), tw.Stats().IndexChecks)
}

func TestWorker_IndexFailureRetriedOnNextItem(t *testing.T) {
	tw := newTestWorker(t)
	tw.store.failIndex = 1

	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.push(t, candle("Rithmic", "ES", "1", 1700000060000))
	tw.runAll(t)

	dest := model.Destination{Database: "tr_ticks_mt5_Rithmic", Collection: "ES_T1"}
	assert.Equal(t, 2, tw.store.indexCalls[dest])
	assert.Len(t, tw.store.inserts, 1, "first item dropped, second stored")
	assert.Equal(t, []time.Duration{2 * time.Second}, tw.sleeps)
}

func TestWorker_InsertFailureBacksOffAndContinues(t *testing.T) {
	tw := newTestWorker(t)
	tw.store.failInsert = 1

	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.push(t, candle("Rithmic", "ES", "1", 1700000060000))
	tw.runAll(t)

	assert.Equal(t, 2, tw.store.insertCalls, "failed item is not retried")
	require.Len(t, tw.store.inserts, 1)
	assert.Equal(t, []time.Duration{2 * time.Second}, tw.sleeps)

	stats := tw.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestWorker_DuplicateOpenTimeRejectedByStore(t *testing.T) {
	tw := newTestWorker(t)
	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.runAll(t)

	assert.Len(t, tw.store.inserts, 1, "never written twice")
	assert.Equal(t, 2, tw.store.insertCalls)
	assert.Len(t, tw.sleeps, 1)
}

func TestWorker_UnknownSourceDropped(t *testing.T) {
	tw := newTestWorker(t)
	tw.push(t, candle("Nowhere", "ES", "1", 1700000000000))
	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.runAll(t)

	require.Len(t, tw.store.inserts, 1)
	assert.Equal(t, "tr_ticks_mt5_Rithmic", tw.store.inserts[0].dest.Database)
	assert.Empty(t, tw.sleeps, "no backoff for a lookup failure")
	assert.Equal(t, int64(1), tw.Stats().Dropped)
}

func TestWorker_AmbiguousTimeDropped(t *testing.T) {
	tw := newTestWorker(t)

	// Wall clock 2023-11-05 01:30 after the 7h correction repeats in US/Eastern.
	ambiguous := float64(time.Date(2023, 11, 5, 8, 30, 0, 0, time.UTC).UnixMilli())
	tw.push(t, candle("Alpari", "EURUSD", "1", ambiguous))
	tw.runAll(t)

	assert.Empty(t, tw.store.inserts)
	assert.Empty(t, tw.store.indexCalls, "nothing touched the store")
	assert.Equal(t, int64(1), tw.Stats().Dropped)
}

func TestWorker_OutOfRangeOpenTimeDropped(t *testing.T) {
	tw := newTestWorker(t)
	tw.push(t, candle("Rithmic", "ES", "1", 1e17))
	tw.push(t, candle("Alpari", "EURUSD", "1", 9.3e18))
	tw.push(t, candle("Rithmic", "ES", "1", 1700000000000))
	tw.runAll(t)

	require.Len(t, tw.store.inserts, 1, "only the valid candle is stored")
	assert.True(t, tw.store.inserts[0].doc.DT.Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)))
	assert.Equal(t, 1, tw.store.insertCalls, "out-of-range items never reach the store")
	assert.Empty(t, tw.sleeps)
	assert.Equal(t, int64(2), tw.Stats().Dropped)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	tw := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tw.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_FIFO(t *testing.T) {
	tw := newTestWorker(t)
	for i := 0; i < 10; i++ {
		tw.push(t, candle("Rithmic", "ES", "1", float64(1700000000000+i*60000)))
	}
	tw.runAll(t)

	require.Len(t, tw.store.inserts, 10)
	for i := 1; i < len(tw.store.inserts); i++ {
		assert.True(t, tw.store.inserts[i].doc.DT.After(tw.store.inserts[i-1].doc.DT), "item %d out of order", i)
	}
}
