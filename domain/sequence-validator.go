package domain

import (
	"time"

	"github.com/gammazero/deque"
)

type Verdict string

const (
	Verdict_Accept         Verdict = "Accept"
	Verdict_Duplicate      Verdict = "Duplicate"
	Verdict_Buffered       Verdict = "Buffered"
	Verdict_ResyncRequired Verdict = "ResyncRequired"
)

type ValidationResult struct {
	Verdict Verdict
	// Gap is the number of missing update ids, set for ResyncRequired.
	Gap int64
}

// SequenceValidator classifies the update stream of one symbol against the
// next expected update id. Out-of-order updates within the gap tolerance are
// buffered, ordered by FirstUpdateId, and drained once the missing ids show
// up; anything beyond tolerance or beyond the buffer bounds demands a resync.
type SequenceValidator struct {
	expectedNextId int64

	pending          deque.Deque[*DepthUpdate]
	oldestBufferedAt time.Time

	gapTolerance  int64
	maxPending    int
	maxPendingAge time.Duration

	now func() time.Time
}

func NewSequenceValidator(gapTolerance int64, maxPending int, maxPendingAge time.Duration) *SequenceValidator {
	return &SequenceValidator{
		gapTolerance:  gapTolerance,
		maxPending:    maxPending,
		maxPendingAge: maxPendingAge,
		now:           time.Now,
	}
}

// Validate classifies a single update. On Accept the caller must call
// Advance with the same update, apply it, then apply everything Drain
// returns.
func (v *SequenceValidator) Validate(update *DepthUpdate) ValidationResult {
	if update.LastUpdateId < v.expectedNextId {
		return ValidationResult{Verdict: Verdict_Duplicate}
	}

	// An update whose range covers expectedNextId is in order. This also
	// admits the first update after a rebuild, whose range usually
	// straddles the baseline's lastUpdateId.
	if update.FirstUpdateId <= v.expectedNextId {
		return ValidationResult{Verdict: Verdict_Accept}
	}

	gap := update.FirstUpdateId - v.expectedNextId
	if gap > v.gapTolerance {
		return ValidationResult{Verdict: Verdict_ResyncRequired, Gap: gap}
	}

	// A stalled stream must not grow the buffer forever.
	if v.maxPending > 0 && v.pending.Len() >= v.maxPending {
		return ValidationResult{Verdict: Verdict_ResyncRequired, Gap: gap}
	}
	if v.maxPendingAge > 0 && v.pending.Len() > 0 && v.now().Sub(v.oldestBufferedAt) > v.maxPendingAge {
		return ValidationResult{Verdict: Verdict_ResyncRequired, Gap: gap}
	}

	v.buffer(update)
	return ValidationResult{Verdict: Verdict_Buffered}
}

// Advance moves the expected id past an accepted update.
func (v *SequenceValidator) Advance(update *DepthUpdate) {
	v.expectedNextId = update.LastUpdateId + 1
}

// Drain pops buffered updates that became in-order, advancing past each.
// Returned updates must be applied by the caller, in order.
func (v *SequenceValidator) Drain() []*DepthUpdate {
	var ready []*DepthUpdate
	for v.pending.Len() > 0 {
		head := v.pending.Front()
		if head.LastUpdateId < v.expectedNextId {
			// Made stale by a wider accepted update.
			v.pending.PopFront()
			continue
		}
		if head.FirstUpdateId > v.expectedNextId {
			break
		}
		v.pending.PopFront()
		v.Advance(head)
		ready = append(ready, head)
	}
	if v.pending.Len() == 0 {
		v.oldestBufferedAt = time.Time{}
	}
	return ready
}

// Reset re-primes the validator after a rebuild and discards the buffer.
func (v *SequenceValidator) Reset(expectedNextId int64) {
	v.expectedNextId = expectedNextId
	v.pending.Clear()
	v.oldestBufferedAt = time.Time{}
}

func (v *SequenceValidator) ExpectedNextId() int64 {
	return v.expectedNextId
}

func (v *SequenceValidator) PendingLen() int {
	return v.pending.Len()
}

func (v *SequenceValidator) buffer(update *DepthUpdate) {
	if v.pending.Len() == 0 {
		v.oldestBufferedAt = v.now()
	}

	// Insertion sort by FirstUpdateId; reordered arrivals cluster near the
	// back so the scan is short in practice.
	at := v.pending.Len()
	for at > 0 && v.pending.At(at-1).FirstUpdateId > update.FirstUpdateId {
		at--
	}
	if at > 0 && v.pending.At(at-1).FirstUpdateId == update.FirstUpdateId {
		// Duplicate retransmission of an already buffered range.
		return
	}
	v.pending.Insert(at, update)
}
