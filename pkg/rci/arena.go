package rci

import "sync"

// Arena holds a fixed set of preallocated sessions shared by engines.
// Sessions are referenced by their slot index.
type Arena struct {
	mu       sync.Mutex
	sessions []session
	inUse    []bool
}

// NewArena preallocates n sessions whose spill storage holds maxContent
// bytes. A non-positive maxContent means DefaultMaxContentLength.
func NewArena(n, maxContent int) *Arena {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	a := &Arena{
		sessions: make([]session, n),
		inUse:    make([]bool, n),
	}
	for i := range a.sessions {
		a.sessions[i].slot = i
		a.sessions[i].spill = make([]byte, 0, maxContent)
		a.sessions[i].pending = make([]byte, 0, outputStaging)
	}
	return a
}

// Available returns the number of free sessions.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, used := range a.inUse {
		if !used {
			n++
		}
	}
	return n
}

func (a *Arena) acquire() (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, used := range a.inUse {
		if !used {
			a.inUse[i] = true
			return &a.sessions[i], nil
		}
	}
	return nil, ErrArenaFull
}

func (a *Arena) release(s *session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.slot >= 0 && s.slot < len(a.inUse) && &a.sessions[s.slot] == s {
		a.inUse[s.slot] = false
	}
}
