package domain

import "github.com/petar/GoLLRB/llrb"

type levelItem struct {
	level Level
}

func (li levelItem) Less(than llrb.Item) bool {
	return li.level.Price < than.(levelItem).level.Price
}

// bookSide is one side of the book: an ordered map price -> level. Ranking
// depends on the side: best bid is the highest price, best ask the lowest.
type bookSide struct {
	tree *llrb.LLRB
	bids bool
}

func newBookSide(bids bool) *bookSide {
	return &bookSide{tree: llrb.New(), bids: bids}
}

func (s *bookSide) len() int {
	return s.tree.Len()
}

func (s *bookSide) get(price Price) (Level, bool) {
	item := s.tree.Get(levelItem{level: Level{Price: price}})
	if item == nil {
		return Level{}, false
	}
	return item.(levelItem).level, true
}

func (s *bookSide) put(level Level) {
	s.tree.ReplaceOrInsert(levelItem{level: level})
}

func (s *bookSide) remove(price Price) (Level, bool) {
	item := s.tree.Delete(levelItem{level: Level{Price: price}})
	if item == nil {
		return Level{}, false
	}
	return item.(levelItem).level, true
}

func (s *bookSide) best() (Level, bool) {
	var item llrb.Item
	if s.bids {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return Level{}, false
	}
	return item.(levelItem).level, true
}

// evictWorst removes the lowest-ranked level: the lowest bid or the highest ask.
func (s *bookSide) evictWorst() (Level, bool) {
	var item llrb.Item
	if s.bids {
		item = s.tree.DeleteMin()
	} else {
		item = s.tree.DeleteMax()
	}
	if item == nil {
		return Level{}, false
	}
	return item.(levelItem).level, true
}

// top returns up to n levels in rank order, best first. n <= 0 means all.
func (s *bookSide) top(n int) []Level {
	if n <= 0 || n > s.tree.Len() {
		n = s.tree.Len()
	}
	levels := make([]Level, 0, n)
	iter := func(item llrb.Item) bool {
		levels = append(levels, item.(levelItem).level)
		return len(levels) < n
	}
	if s.bids {
		s.tree.DescendLessOrEqual(llrb.Inf(1), iter)
	} else {
		s.tree.AscendGreaterOrEqual(llrb.Inf(-1), iter)
	}
	return levels
}

func (s *bookSide) clear() {
	s.tree = llrb.New()
}
