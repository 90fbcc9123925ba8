package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/vapor-console/internal/uistate"
)

// TermScheme reports the terminal background as the colour scheme for the
// auto theme. Recheck queries the terminal again and notifies watchers when
// the answer changes.
type TermScheme struct {
	detect func() bool

	mu   sync.Mutex
	dark bool
	next int
	fns  map[int]func(bool)
}

var _ uistate.ColorScheme = (*TermScheme)(nil)

// TerminalScheme detects the background once via lipgloss.
func TerminalScheme() *TermScheme {
	return newTermScheme(lipgloss.HasDarkBackground)
}

func newTermScheme(detect func() bool) *TermScheme {
	return &TermScheme{detect: detect, dark: detect(), fns: map[int]func(bool){}}
}

// Dark implements uistate.ColorScheme.
func (s *TermScheme) Dark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Watch implements uistate.ColorScheme.
func (s *TermScheme) Watch(fn func(dark bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

// Watchers reports how many listeners are attached.
func (s *TermScheme) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Recheck re-detects the background.
func (s *TermScheme) Recheck() {
	dark := s.detect()
	s.mu.Lock()
	if dark == s.dark {
		s.mu.Unlock()
		return
	}
	s.dark = dark
	fns := make([]func(bool), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(dark)
	}
}
