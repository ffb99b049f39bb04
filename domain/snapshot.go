package domain

type SnapshotSource string

const (
	// SnapshotSource_Baseline marks a snapshot passed through from the
	// external provider while the local book is still initializing.
	SnapshotSource_Baseline  SnapshotSource = "Baseline"
	SnapshotSource_LocalBook SnapshotSource = "LocalBook"
)

// Snapshot is an immutable point-in-time view of one book, independent of
// the live store after creation. Levels are ranked best-first.
type Snapshot struct {
	Symbol       string
	Source       SnapshotSource
	Status       BookStatus
	LastUpdateId int64
	TakenAt      int64 // micros
	Bids         []Level
	Asks         []Level
}

// SerializeLevels renders levels back to wire format [price, qty] pairs.
func SerializeLevels(levels []Level) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.Price.String(), level.Qty.String()}
	}
	return result
}
