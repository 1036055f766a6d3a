package cascade

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerAdmitsInTicketOrder(t *testing.T) {
	t.Parallel()

	s := newSequencer()
	const n = 20
	tickets := make([]uint64, n)
	for i := range tickets {
		tickets[i] = s.ticket()
	}

	var (
		mu    sync.Mutex
		order []uint64
		wg    sync.WaitGroup
	)
	rng := rand.New(rand.NewPCG(9, 9))
	for _, i := range rng.Perm(n) {
		wg.Add(1)
		go func(tk uint64) {
			defer wg.Done()
			_ = s.wait(context.Background(), tk)
			mu.Lock()
			order = append(order, tk)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			s.done(tk)
		}(tickets[i])
	}
	wg.Wait()

	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i)
	}
	assert.Equal(t, want, order)
}

func TestSequencerSkipsAbandonedTickets(t *testing.T) {
	t.Parallel()

	s := newSequencer()
	first, second, third := s.ticket(), s.ticket(), s.ticket()
	require.NoError(t, s.wait(context.Background(), first))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.wait(ctx, second), context.DeadlineExceeded)

	admitted := make(chan struct{})
	go func() {
		_ = s.wait(context.Background(), third)
		close(admitted)
	}()

	s.done(first)
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("third ticket not admitted after the abandoned one")
	}
	s.done(second) // late done from the abandoned holder is a no-op
	s.done(third)

	fourth := s.ticket()
	require.NoError(t, s.wait(context.Background(), fourth))
	s.done(fourth)
}

func TestSequencerWaitWithEndedContextAtItsTurn(t *testing.T) {
	t.Parallel()

	s := newSequencer()
	tk := s.ticket()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.wait(ctx, tk), "a ticket already being served is admitted")
	s.done(tk)
}
