package exhibit

import "github.com/Sternrassler/exhibit-client/pkg/client"

// Sequencer is the presentation cursor over the orchestrator's items. Its
// index lives on the orchestrator goroutine; every method waits for it.
type Sequencer struct {
	o     *Orchestrator
	index int
}

// Current returns the current artifact and its index. ok is false when no
// items are loaded.
func (s *Sequencer) Current() (item client.Artifact, index int, ok bool) {
	s.o.call(func() {
		if s.index < len(s.o.items) {
			item, index, ok = s.o.items[s.index], s.index, true
		}
	})
	return item, index, ok
}

// Index returns the current index.
func (s *Sequencer) Index() int {
	var index int
	s.o.call(func() { index = s.index })
	return index
}

// SetIndex moves to index i. It reports false when i is out of range.
func (s *Sequencer) SetIndex(i int) bool {
	var moved bool
	s.o.call(func() {
		if i < 0 || i >= len(s.o.items) {
			return
		}
		moved = i != s.index
		s.index = i
		if moved {
			s.emit()
		}
		s.preload(i)
	})
	return moved
}

// Next advances to the following item. At the last loaded item it requests
// the next group instead and reports false.
func (s *Sequencer) Next() bool {
	var moved bool
	s.o.call(func() {
		if s.index+1 < len(s.o.items) {
			s.index++
			moved = true
			s.emit()
			s.preload(s.index)
			return
		}
		s.o.advance()
	})
	return moved
}

// Previous retreats to the preceding item, stopping at the first.
func (s *Sequencer) Previous() bool {
	var moved bool
	s.o.call(func() {
		if s.index > 0 && s.index-1 < len(s.o.items) {
			s.index--
			moved = true
			s.emit()
		}
	})
	return moved
}

// Visible signals that item k is on screen. Past the preload threshold the
// next group is requested.
func (s *Sequencer) Visible(k int) {
	s.o.post(func() { s.preload(k) })
}

// preload requests the next group once k reaches the preload threshold.
// Called on the orchestrator goroutine.
func (s *Sequencer) preload(k int) {
	if len(s.o.items) == 0 {
		return
	}
	if k >= PreloadThreshold(len(s.o.items), s.o.config.PreloadRatio) {
		s.o.advance()
	}
}

// emit reports the current item. Called on the orchestrator goroutine.
func (s *Sequencer) emit() {
	if s.o.config.OnCurrentChanged == nil || s.index >= len(s.o.items) {
		return
	}
	s.o.config.OnCurrentChanged(s.index, s.o.items[s.index])
}

// PreloadThreshold returns the first index that triggers loading the next
// group when count items are loaded.
func PreloadThreshold(count int, ratio float64) int {
	return int(float64(count) * ratio)
}
