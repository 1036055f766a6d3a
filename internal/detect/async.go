package detect

import (
	"context"
	"sync"

	"github.com/banshee-data/behavior-cascade/internal/frame"
)

// SyncModel is the minimal surface of a blocking-only backend.
type SyncModel interface {
	Infer(ctx context.Context, img frame.Frame, params Params) (*Result, error)
	Close() error
}

// asyncModel gives a blocking backend an InferAsync that runs on a
// goroutine, bounded by a fixed number of concurrent calls.
type asyncModel struct {
	SyncModel
	sem     chan struct{}
	pending sync.WaitGroup
}

// NewAsync wraps m so that it satisfies Model. At most concurrency async
// calls run at once; values below 1 mean 1.
func NewAsync(m SyncModel, concurrency int) Model {
	if concurrency < 1 {
		concurrency = 1
	}
	return &asyncModel{SyncModel: m, sem: make(chan struct{}, concurrency)}
}

func (a *asyncModel) InferAsync(img frame.Frame, params Params, done func(*Result, error)) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.sem <- struct{}{}
		res, err := a.SyncModel.Infer(context.Background(), img, params)
		<-a.sem
		if done != nil {
			done(res, err)
		}
	}()
}

func (a *asyncModel) Wait() {
	a.pending.Wait()
}
