package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"signalchart/internal/model"
)

// frameWriter is the subset of FrameCache BufferedCache needs.
type frameWriter interface {
	SaveFrame(ctx context.Context, f model.Frame) error
	DeleteFrame(ctx context.Context, chart string) error
}

// BufferedCache puts a circuit breaker in front of a frame writer. While
// the breaker is open, writes are held locally, keeping only the latest
// frame per chart, and replayed once the breaker closes.
type BufferedCache struct {
	w       frameWriter
	cb      *CircuitBreaker
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*model.Frame // nil value = pending delete
	order   []string
	maxBuf  int

	// OnBuffer and OnFlush feed metrics.
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedCache wraps w. maxCharts bounds the number of charts held
// while the breaker is open; the oldest is dropped beyond it.
func NewBufferedCache(w frameWriter, cb *CircuitBreaker, maxCharts int) *BufferedCache {
	if maxCharts <= 0 {
		maxCharts = 1000
	}
	bc := &BufferedCache{
		w:       w,
		cb:      cb,
		timeout: 2 * time.Second,
		pending: make(map[string]*model.Frame),
		maxBuf:  maxCharts,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bc.Flush(context.Background())
		}
	}
	return bc
}

// SaveFrame implements model.FrameWriter. A write rejected by the open
// breaker is buffered and reported as success.
func (bc *BufferedCache) SaveFrame(ctx context.Context, f model.Frame) error {
	return bc.writeOrHold(ctx, f.Chart, &f)
}

// DeleteFrame implements model.FrameWriter.
func (bc *BufferedCache) DeleteFrame(ctx context.Context, chart string) error {
	return bc.writeOrHold(ctx, chart, nil)
}

func (bc *BufferedCache) writeOrHold(ctx context.Context, chart string, f *model.Frame) error {
	err := bc.write(ctx, chart, f)
	if errors.Is(err, ErrCircuitOpen) {
		bc.hold(chart, f)
		return nil
	}
	return err
}

// write saves f, or deletes chart when f is nil, through the breaker.
func (bc *BufferedCache) write(ctx context.Context, chart string, f *model.Frame) error {
	return bc.cb.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, bc.timeout)
		defer cancel()
		if f == nil {
			return bc.w.DeleteFrame(cctx, chart)
		}
		return bc.w.SaveFrame(cctx, *f)
	})
}

func (bc *BufferedCache) hold(chart string, f *model.Frame) {
	bc.mu.Lock()
	if _, ok := bc.pending[chart]; !ok {
		if len(bc.order) >= bc.maxBuf {
			oldest := bc.order[0]
			bc.order = bc.order[1:]
			delete(bc.pending, oldest)
		}
		bc.order = append(bc.order, chart)
	}
	bc.pending[chart] = f
	bc.mu.Unlock()

	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

// Flush writes every held frame and delete through the breaker. Entries
// that fail stay held. It returns the number written.
func (bc *BufferedCache) Flush(ctx context.Context) int {
	bc.mu.Lock()
	held, order := bc.pending, bc.order
	bc.pending = make(map[string]*model.Frame)
	bc.order = nil
	bc.mu.Unlock()

	flushed := 0
	for _, chart := range order {
		f := held[chart]
		if err := bc.write(ctx, chart, f); err != nil {
			log.Printf("[redis] flush %s failed: %v", chart, err)
			bc.mu.Lock()
			_, newer := bc.pending[chart]
			bc.mu.Unlock()
			if !newer {
				bc.hold(chart, f)
			}
			continue
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[redis] flushed %d buffered frames", flushed)
	}
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
	return flushed
}

// PendingCount returns the number of charts with a held write.
func (bc *BufferedCache) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}
