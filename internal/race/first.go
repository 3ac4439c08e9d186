// Package race provides a small primitive for waiting on the first of
// several completion signals. The session orchestrator uses it to race
// pipeline completion against shutdown and room-disconnect signals.
package race

import (
	"context"
	"sync"
)

// Signal is a one-shot completion signal. Fire is idempotent; Done is closed
// at most once.
type Signal struct {
	ch   chan struct{}
	once sync.Once
	name string
}

// NewSignal creates a named one-shot signal.
func NewSignal(name string) *Signal {
	return &Signal{ch: make(chan struct{}), name: name}
}

// Name returns the signal's name, used for logging which source won the race.
func (s *Signal) Name() string { return s.name }

// Fire marks the signal complete. Safe to call multiple times and from
// multiple goroutines.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns the channel closed when the signal fires.
func (s *Signal) Done() <-chan struct{} { return s.ch }

// First blocks until one of the signals fires or ctx is cancelled, and
// returns the name of the winner ("" when ctx won). With no signals it waits
// only on ctx.
func First(ctx context.Context, signals ...*Signal) string {
	if len(signals) == 0 {
		<-ctx.Done()
		return ""
	}

	// 常见情况只有两三个信号，直接展开比反射 select 更可读
	winner := make(chan string, len(signals))
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, s := range signals {
		go func(s *Signal) {
			select {
			case <-s.Done():
				winner <- s.name
			case <-raceCtx.Done():
			}
		}(s)
	}

	select {
	case name := <-winner:
		return name
	case <-ctx.Done():
		return ""
	}
}
