package led

import "sync"

// Driver abstracts the LED transport (SPI, console preview, simulation).
type Driver interface {
	Write([]Color) error
	Close() error
}

// Sim captures the last written frame. Used in tests and when running without
// hardware attached.
type Sim struct {
	mu   sync.Mutex
	last []Color
}

func NewSim() *Sim { return &Sim{} }

func (s *Sim) Write(buf []Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.last) < len(buf) {
		s.last = make([]Color, len(buf))
	}
	s.last = s.last[:len(buf)]
	copy(s.last, buf)
	return nil
}

func (s *Sim) Close() error { return nil }

// Last returns a copy of the most recently written frame.
func (s *Sim) Last() []Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Color, len(s.last))
	copy(out, s.last)
	return out
}
