package platform

import (
	"context"
	"sync"

	"unilang/internal/replacer"
)

// Key codes understood by Simulated. Any other code is taken as a rune.
const (
	SimBackspace uint32 = '\b'
	SimTab       uint32 = '\t'
	SimReturn    uint32 = '\n'
	SimEscape    uint32 = 0x1b
)

// Simulated is a Backend whose focused application is an in-memory
// replacer.Buffer. Events are produced by Type rather than by hardware.
type Simulated struct {
	replacer.Buffer

	mu      sync.Mutex
	handler Handler
}

// NewSimulated returns an idle simulated backend.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Available() (bool, string) { return true, "" }

func (s *Simulated) Start(_ context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return ErrAlreadyRunning
	}
	s.handler = h
	return nil
}

func (s *Simulated) Stop() error {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

// Resolve implements KeyResolver.
func (s *Simulated) Resolve(ev KeyEvent) Key {
	switch ev.Code {
	case SimBackspace:
		return Key{Kind: KeyBackspace}
	case SimTab, SimReturn, '\r', SimEscape:
		return Key{Kind: KeyReset}
	case 0:
		return Key{Kind: KeyIgnored}
	}
	return Key{Kind: KeyChar, Char: rune(ev.Code)}
}

// Type presses and releases one key per rune of text. Keys the handler
// does not suppress reach the buffer the way a real application would see
// them. It returns the number of suppressed key presses.
func (s *Simulated) Type(text string) int {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	suppressed := 0
	for _, r := range text {
		ev := KeyEvent{Code: uint32(r), Down: true}
		if h != nil && h.HandleKey(ev) {
			suppressed++
		} else {
			s.deliver(ev)
		}
		if h != nil {
			ev.Down = false
			h.HandleKey(ev)
		}
	}
	return suppressed
}

// SwitchFocus reports a focus change to the handler.
func (s *Simulated) SwitchFocus() {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.FocusChanged()
	}
}

func (s *Simulated) deliver(ev KeyEvent) {
	k := s.Resolve(ev)
	switch k.Kind {
	case KeyBackspace:
		s.Backspace()
	case KeyChar:
		s.Deliver(k.Char)
	case KeyReset:
		if ev.Code == SimTab || ev.Code == SimReturn {
			s.Deliver(rune(ev.Code))
		}
	}
}
