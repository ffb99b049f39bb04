package domain

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStreamAPI struct {
	stream chan *DepthUpdate
}

func newFakeStreamAPI() *fakeStreamAPI {
	return &fakeStreamAPI{stream: make(chan *DepthUpdate, 128)}
}

func (f *fakeStreamAPI) DepthDiffStream(symbol *MarketSymbol) (*Subscription[*DepthUpdate], error) {
	return &Subscription[*DepthUpdate]{
		Stream:      f.stream,
		Unsubscribe: func() {},
		Topic:       symbol.Join("") + "@depth",
	}, nil
}

type fakeBaselineProvider struct {
	mu        sync.Mutex
	baselines []*BaselineSnapshot
	failures  int
	calls     int
	// gate, when set, parks every fetch after the first until it is closed.
	gate chan struct{}
}

func (f *fakeBaselineProvider) OrderBookSnapshot(symbol *MarketSymbol, limit int) (*BaselineSnapshot, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	initial := f.calls == 1
	f.mu.Unlock()

	if gate != nil && !initial {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	if len(f.baselines) == 0 {
		return nil, errors.New("no baseline configured")
	}
	baseline := f.baselines[0]
	if len(f.baselines) > 1 {
		f.baselines = f.baselines[1:]
	}
	return baseline, nil
}

func (f *fakeBaselineProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastOptions() MaintainerOptions {
	opts := DefaultMaintainerOptions()
	opts.ResyncBackoffMin = time.Millisecond
	opts.ResyncBackoffMax = 5 * time.Millisecond
	opts.ResyncAttempts = 3
	return opts
}

func startMaintainer(t *testing.T, stream *fakeStreamAPI, baseline *fakeBaselineProvider, opts MaintainerOptions) *OrderbookMaintainer {
	t.Helper()
	m := NewOrderBookMaintainer(stream, baseline, opts)
	if err := m.Start(testSymbol(t)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestMaintainer_InitialSyncAndApply(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{
		LastUpdateId: 100,
		Bids:         [][]string{{"100", "1"}},
		Asks:         [][]string{{"101", "1"}},
	}}}

	m := startMaintainer(t, stream, baseline, fastOptions())
	assert.Equal(t, int64(100), m.Book().LastUpdateId())

	stream.stream <- mustUpdate(t, 101, 101, [][]string{{"100.5", "2"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Book().LastUpdateId() == 101
	}, time.Second, 5*time.Millisecond, "in-order update should be applied")

	bestBid, ok := m.Book().BestBid()
	assert.True(t, ok)
	assert.Equal(t, "100.5", bestBid.Price.String())
	assert.Equal(t, int64(1), m.Stats.Applied.Load())
}

func TestMaintainer_DuplicateDiscarded(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{
		LastUpdateId: 100,
		Bids:         [][]string{{"100", "1"}},
	}}}

	m := startMaintainer(t, stream, baseline, fastOptions())

	stream.stream <- mustUpdate(t, 90, 95, [][]string{{"50", "7"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Stats.Duplicates.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(100), m.Book().LastUpdateId(), "a stale update must not touch the book")
	bestBid, _ := m.Book().BestBid()
	assert.Equal(t, "100", bestBid.Price.String())
}

func TestMaintainer_BufferedReorderingConverges(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{LastUpdateId: 100}}}

	m := startMaintainer(t, stream, baseline, fastOptions())

	// 103 arrives before 101 and 102; final state must be as if ordered.
	stream.stream <- mustUpdate(t, 103, 103, [][]string{{"99", "3"}}, nil)
	stream.stream <- mustUpdate(t, 101, 101, [][]string{{"99", "1"}}, nil)
	stream.stream <- mustUpdate(t, 102, 102, [][]string{{"99", "2"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Book().LastUpdateId() == 103
	}, time.Second, 5*time.Millisecond)

	bestBid, ok := m.Book().BestBid()
	assert.True(t, ok)
	assert.Equal(t, "3", bestBid.Qty.String(), "the buffered update must win as the latest")
	assert.Equal(t, int64(1), m.Stats.Buffered.Load())
	assert.Equal(t, int64(0), m.Stats.Resyncs.Load(), "tolerated reordering must not resync")
}

func TestMaintainer_GapTriggersResyncAndReplay(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{
		{LastUpdateId: 100, Bids: [][]string{{"100", "1"}}},
		{LastUpdateId: 520, Bids: [][]string{{"200", "1"}}},
	}}

	m := startMaintainer(t, stream, baseline, fastOptions())

	// Gap of 399 against expectedNextId 101: beyond tolerance.
	stream.stream <- mustUpdate(t, 500, 500, [][]string{{"150", "1"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Stats.Resyncs.Load() == 1
	}, time.Second, 5*time.Millisecond, "an intolerable gap should force a resync")

	assert.Equal(t, int64(520), m.Book().LastUpdateId(), "book should be rebuilt from the new baseline")
	bestBid, _ := m.Book().BestBid()
	assert.Equal(t, "200", bestBid.Price.String())

	// The stream continues from the new baseline.
	stream.stream <- mustUpdate(t, 521, 521, [][]string{{"201", "1"}}, nil)
	assert.Eventually(t, func() bool {
		return m.Book().LastUpdateId() == 521
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, BookStatus_Ok, m.Book().Status())
}

func TestMaintainer_UpdatesDuringResyncAreReplayed(t *testing.T) {
	stream := newFakeStreamAPI()
	gate := make(chan struct{})
	baseline := &fakeBaselineProvider{
		gate: gate,
		baselines: []*BaselineSnapshot{
			{LastUpdateId: 100, Bids: [][]string{{"100", "1"}}},
			{LastUpdateId: 520, Bids: [][]string{{"200", "1"}}},
		},
	}

	m := startMaintainer(t, stream, baseline, fastOptions())

	// Force a resync; its baseline fetch parks on the gate.
	stream.stream <- mustUpdate(t, 500, 500, [][]string{{"150", "1"}}, nil)
	assert.Eventually(t, func() bool {
		return baseline.callCount() == 2
	}, time.Second, time.Millisecond, "the resync fetch should be in flight")

	// Updates landing mid-resync go to the replay queue: two are stale
	// against the upcoming baseline, one continues past it.
	stream.stream <- mustUpdate(t, 510, 510, [][]string{{"160", "1"}}, nil)
	stream.stream <- mustUpdate(t, 515, 515, [][]string{{"170", "1"}}, nil)
	stream.stream <- mustUpdate(t, 521, 521, [][]string{{"201", "7"}}, nil)
	assert.Eventually(t, func() bool {
		return len(stream.stream) == 0 && len(m.mailbox) == 0
	}, time.Second, time.Millisecond, "the writer should queue the updates while the fetch is parked")

	assert.Equal(t, int64(100), m.Book().LastUpdateId(), "no queued update may touch the book mid-resync")
	close(gate)

	assert.Eventually(t, func() bool {
		return m.Book().LastUpdateId() == 521
	}, time.Second, time.Millisecond, "the post-baseline update should be replayed onto the rebuilt book")

	bestBid, ok := m.Book().BestBid()
	assert.True(t, ok)
	assert.Equal(t, "201", bestBid.Price.String())
	assert.Equal(t, "7", bestBid.Qty.String())
	assert.Equal(t, int64(2), m.Stats.Duplicates.Load(), "replayed updates below the new baseline classify as duplicates")
	assert.Equal(t, int64(1), m.Stats.Resyncs.Load())
	assert.Equal(t, BookStatus_Ok, m.Book().Status())
}

func TestMaintainer_BaselineRetriesThenSucceeds(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{
		failures:  2,
		baselines: []*BaselineSnapshot{{LastUpdateId: 100}},
	}

	m := startMaintainer(t, stream, baseline, fastOptions())

	assert.Equal(t, int64(100), m.Book().LastUpdateId())
	assert.Equal(t, 3, baseline.callCount(), "two failures then one success")
}

func TestMaintainer_ResyncExhaustionMarksBookStale(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{LastUpdateId: 100}}}

	opts := fastOptions()
	m := startMaintainer(t, stream, baseline, opts)

	// Every later fetch fails until the retries run out.
	baseline.mu.Lock()
	baseline.baselines = nil
	baseline.failures = 0
	baseline.mu.Unlock()

	stream.stream <- mustUpdate(t, 500, 500, [][]string{{"1", "1"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Book().Status() == BookStatus_Stale
	}, time.Second, 5*time.Millisecond, "resync exhaustion should degrade the book")
	assert.Equal(t, int64(1), m.Stats.ResyncFailures.Load())
}

func TestMaintainer_CrossedBookRejectPolicy(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{
		LastUpdateId: 100,
		Bids:         [][]string{{"100", "1"}},
		Asks:         [][]string{{"101", "1"}},
	}}}

	opts := fastOptions()
	opts.CrossedBookPolicy = CrossedBookPolicy_Reject

	m := startMaintainer(t, stream, baseline, opts)

	// A bid above the best ask would cross the book.
	stream.stream <- mustUpdate(t, 101, 101, [][]string{{"102", "1"}}, nil)

	assert.Eventually(t, func() bool {
		return m.Stats.CrossedBooks.Load() == 1
	}, time.Second, 5*time.Millisecond)

	bestBid, _ := m.Book().BestBid()
	assert.Equal(t, "100", bestBid.Price.String(), "the crossing update should be skipped")
	assert.Equal(t, int64(0), m.Stats.Resyncs.Load())
	assert.Equal(t, int64(0), m.Stats.Applied.Load(), "a rejected update does not count as applied")

	// The stream stays usable after the rejected update.
	stream.stream <- mustUpdate(t, 102, 102, [][]string{{"100.5", "1"}}, nil)
	assert.Eventually(t, func() bool {
		return m.Book().LastUpdateId() == 102
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.Stats.Applied.Load())
}

func TestMaintainer_UpdatedSignal(t *testing.T) {
	stream := newFakeStreamAPI()
	baseline := &fakeBaselineProvider{baselines: []*BaselineSnapshot{{LastUpdateId: 100}}}

	m := startMaintainer(t, stream, baseline, fastOptions())

	stream.stream <- mustUpdate(t, 101, 101, [][]string{{"100", "1"}}, nil)

	select {
	case <-m.Updated():
	case <-time.After(time.Second):
		t.Fatal("expected an update signal after apply")
	}
}
