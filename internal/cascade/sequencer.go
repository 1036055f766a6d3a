package cascade

import (
	"context"
	"sync"
)

// sequencer hands out tickets in submission order and admits their
// holders one at a time in that same order. A holder whose context ends
// before its turn abandons the ticket and the turn passes over it.
type sequencer struct {
	mu        sync.Mutex
	cond      *sync.Cond
	issued    uint64
	serving   uint64
	abandoned map[uint64]struct{}
}

func newSequencer() *sequencer {
	s := &sequencer{abandoned: make(map[uint64]struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ticket reserves the next turn.
func (s *sequencer) ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

// wait blocks until it is t's turn or ctx ends. On ctx.Err the ticket is
// abandoned; the caller must still call done.
func (s *sequencer) wait(ctx context.Context, t uint64) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.serving != t {
		if err := ctx.Err(); err != nil {
			s.abandoned[t] = struct{}{}
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// done ends t's turn. Every ticket must be ended exactly once.
func (s *sequencer) done(t uint64) {
	s.mu.Lock()
	if s.serving == t {
		s.serving++
		s.skipAbandoned()
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *sequencer) skipAbandoned() {
	for {
		if _, ok := s.abandoned[s.serving]; !ok {
			return
		}
		delete(s.abandoned, s.serving)
		s.serving++
	}
}
