package domain

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/jpillora/backoff"
)

var logger = log.New(os.Stdout, "[orderbook-maintainer] ", log.LstdFlags)

type CrossedBookPolicy string

const (
	// CrossedBookPolicy_Resync forces an immediate resync when an applied
	// update would cross the book.
	CrossedBookPolicy_Resync CrossedBookPolicy = "resync"
	// CrossedBookPolicy_Reject rolls the offending update back and skips it.
	CrossedBookPolicy_Reject CrossedBookPolicy = "reject"
)

type MaintainerOptions struct {
	MaxDepth      int
	GapTolerance  int64
	MaxPending    int
	MaxPendingAge time.Duration

	MailboxSize int
	// DropOnFull drops updates (counted) instead of applying backpressure
	// when the mailbox is full.
	DropOnFull bool

	CrossedBookPolicy CrossedBookPolicy

	ResyncAttempts   int
	ResyncBackoffMin time.Duration
	ResyncBackoffMax time.Duration
}

func DefaultMaintainerOptions() MaintainerOptions {
	return MaintainerOptions{
		MaxDepth:          1000,
		GapTolerance:      10,
		MaxPending:        64,
		MaxPendingAge:     3 * time.Second,
		MailboxSize:       1024,
		DropOnFull:        false,
		CrossedBookPolicy: CrossedBookPolicy_Resync,
		ResyncAttempts:    5,
		ResyncBackoffMin:  250 * time.Millisecond,
		ResyncBackoffMax:  10 * time.Second,
	}
}

// MaintainerStats are monotonic event counters, safe to read from any
// goroutine.
type MaintainerStats struct {
	Applied        atomic.Int64
	Duplicates     atomic.Int64
	Buffered       atomic.Int64
	Dropped        atomic.Int64
	CrossedBooks   atomic.Int64
	Resyncs        atomic.Int64
	ResyncFailures atomic.Int64
}

type resyncOutcome struct {
	baseline *BaselineSnapshot
	err      error
}

// OrderbookMaintainer owns one symbol's book and sequence state. A single
// writer goroutine consumes the mailbox, so the hot apply path needs no
// coordination beyond the book's short-held snapshot lock. A resync fetch
// runs on its own goroutine; updates that arrive meanwhile are queued and
// replayed through the normal validate/apply path after the rebuild, never
// interleaved with it.
type OrderbookMaintainer struct {
	book      *OrderBook
	validator *SequenceValidator
	syncAPI   BaselineProvider
	streamAPI DepthStreamAPI
	opts      MaintainerOptions

	mailbox      chan *DepthUpdate
	updated      chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	subscription *Subscription[*DepthUpdate]

	// Writer-goroutine state; never touched elsewhere.
	resyncInFlight bool
	resyncResult   chan resyncOutcome
	replayQueue    deque.Deque[*DepthUpdate]

	Stats MaintainerStats
}

func NewOrderBookMaintainer(
	streamAPI DepthStreamAPI,
	syncAPI BaselineProvider,
	opts MaintainerOptions,
) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		syncAPI:      syncAPI,
		streamAPI:    streamAPI,
		opts:         opts,
		mailbox:      make(chan *DepthUpdate, opts.MailboxSize),
		updated:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		resyncResult: make(chan resyncOutcome, 1),
	}
}

// Start subscribes to the depth stream, performs the initial baseline sync
// and launches the writer goroutine. The stream is subscribed before the
// baseline fetch so no update id between the two is ever missed.
func (m *OrderbookMaintainer) Start(symbol *MarketSymbol) error {
	subscription, err := m.streamAPI.DepthDiffStream(symbol)
	if err != nil {
		return fmt.Errorf("subscribing to depth stream for %s: %w", symbol, err)
	}
	m.subscription = subscription
	m.book = NewOrderBook(symbol, m.opts.MaxDepth)
	m.validator = NewSequenceValidator(m.opts.GapTolerance, m.opts.MaxPending, m.opts.MaxPendingAge)

	m.wg.Add(1)
	go m.pump()

	baseline, err := m.fetchBaseline()
	if err != nil {
		m.Stop()
		return err
	}
	if err := m.book.Rebuild(baseline); err != nil {
		m.Stop()
		return fmt.Errorf("rebuilding book for %s: %w", symbol, err)
	}
	m.validator.Reset(baseline.LastUpdateId + 1)

	m.wg.Add(1)
	go m.run()
	return nil
}

func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.subscription != nil {
			m.subscription.Unsubscribe()
		}
	})
	m.wg.Wait()
}

func (m *OrderbookMaintainer) Book() *OrderBook {
	return m.book
}

// Updated signals after each successful mutation batch. The channel holds a
// single pending notification; consumers that poll slower than the book
// mutates simply coalesce signals.
func (m *OrderbookMaintainer) Updated() <-chan struct{} {
	return m.updated
}

// pump moves updates from the transport subscription into the mailbox,
// honoring the configured full-mailbox policy.
func (m *OrderbookMaintainer) pump() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case update, ok := <-m.subscription.Stream:
			if !ok {
				return
			}
			if m.opts.DropOnFull {
				select {
				case m.mailbox <- update:
				default:
					m.Stats.Dropped.Add(1)
				}
			} else {
				select {
				case m.mailbox <- update:
				case <-m.done:
					return
				}
			}
		}
	}
}

// run is the single writer for this symbol's book and sequence state.
func (m *OrderbookMaintainer) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case outcome := <-m.resyncResult:
			m.finishResync(outcome)
		case update := <-m.mailbox:
			if m.resyncInFlight {
				m.queueForReplay(update)
				continue
			}
			m.handle(update)
		}
	}
}

func (m *OrderbookMaintainer) handle(update *DepthUpdate) {
	result := m.validator.Validate(update)
	switch result.Verdict {
	case Verdict_Duplicate:
		m.Stats.Duplicates.Add(1)

	case Verdict_Buffered:
		m.Stats.Buffered.Add(1)

	case Verdict_ResyncRequired:
		logger.Printf("WARN sequence gap of %d on %s (expected %d, got %d), resyncing",
			result.Gap, update.Symbol, m.validator.ExpectedNextId(), update.FirstUpdateId)
		m.beginResync()

	case Verdict_Accept:
		if !m.apply(update) {
			return
		}
		for _, buffered := range m.validator.Drain() {
			if !m.apply(buffered) {
				return
			}
		}
		m.notifyUpdated()
	}
}

// apply advances the sequence past the update and mutates the book. It
// returns false when processing must stop because a resync has started.
func (m *OrderbookMaintainer) apply(update *DepthUpdate) bool {
	m.validator.Advance(update)

	if err := m.book.ApplyUpdate(update); err != nil {
		m.Stats.CrossedBooks.Add(1)
		logger.Printf("WARN crossed book on %s applying [%d..%d]: %s",
			update.Symbol, update.FirstUpdateId, update.LastUpdateId, err)

		if m.opts.CrossedBookPolicy == CrossedBookPolicy_Resync {
			m.beginResync()
			return false
		}
		// Reject: the update was rolled back, the sequence stays advanced.
		return true
	}

	m.Stats.Applied.Add(1)
	return true
}

func (m *OrderbookMaintainer) notifyUpdated() {
	select {
	case m.updated <- struct{}{}:
	default:
	}
}

// beginResync launches the baseline fetch on its own goroutine so the
// writer keeps draining the mailbox into the replay queue. At most one
// resync is in flight per symbol; a second gap found while one runs is
// absorbed by it.
func (m *OrderbookMaintainer) beginResync() {
	if m.resyncInFlight {
		return
	}
	m.resyncInFlight = true
	m.book.setStatus(BookStatus_Syncing)

	go func() {
		baseline, err := m.fetchBaseline()
		select {
		case m.resyncResult <- resyncOutcome{baseline: baseline, err: err}:
		case <-m.done:
		}
	}()
}

func (m *OrderbookMaintainer) finishResync(outcome resyncOutcome) {
	m.resyncInFlight = false

	if outcome.err != nil {
		m.Stats.ResyncFailures.Add(1)
		m.book.setStatus(BookStatus_Stale)
		m.replayQueue.Clear()
		logger.Printf("WARN resync failed for %s, book marked stale: %s", m.book.Symbol, outcome.err)
		// Let consumers observe the degraded state.
		m.notifyUpdated()
		return
	}

	if err := m.book.Rebuild(outcome.baseline); err != nil {
		m.Stats.ResyncFailures.Add(1)
		m.book.setStatus(BookStatus_Stale)
		m.replayQueue.Clear()
		logger.Printf("WARN rebuild failed for %s, book marked stale: %s", m.book.Symbol, err)
		m.notifyUpdated()
		return
	}
	m.validator.Reset(outcome.baseline.LastUpdateId + 1)
	m.Stats.Resyncs.Add(1)

	for m.replayQueue.Len() > 0 {
		m.handle(m.replayQueue.PopFront())
		if m.resyncInFlight {
			// The replay itself demanded another resync; the rest of the
			// queue stays for that round.
			return
		}
	}
	m.notifyUpdated()
}

func (m *OrderbookMaintainer) queueForReplay(update *DepthUpdate) {
	if m.opts.MailboxSize > 0 && m.replayQueue.Len() >= m.opts.MailboxSize {
		m.replayQueue.PopFront()
		m.Stats.Dropped.Add(1)
	}
	m.replayQueue.PushBack(update)
}

// fetchBaseline requests a fresh snapshot with bounded exponential backoff.
// Every transport error is retryable; only exhausting the configured
// attempts surfaces as ErrBaselineUnavailable.
func (m *OrderbookMaintainer) fetchBaseline() (*BaselineSnapshot, error) {
	b := &backoff.Backoff{
		Min:    m.opts.ResyncBackoffMin,
		Max:    m.opts.ResyncBackoffMax,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= m.opts.ResyncAttempts; attempt++ {
		baseline, err := m.syncAPI.OrderBookSnapshot(m.book.Symbol, m.opts.MaxDepth)
		if err == nil {
			return baseline, nil
		}
		lastErr = err
		logger.Printf("WARN baseline fetch %d/%d failed for %s: %s",
			attempt, m.opts.ResyncAttempts, m.book.Symbol, err)

		if attempt == m.opts.ResyncAttempts {
			break
		}
		select {
		case <-m.done:
			return nil, ErrBaselineUnavailable
		case <-time.After(b.Duration()):
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBaselineUnavailable, lastErr)
}
