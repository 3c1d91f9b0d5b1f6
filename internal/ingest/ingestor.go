package ingest

import (
	"context"
	"log/slog"
	"time"

	"example.com/signinledger/internal/domain"
)

// Writer persists a batch and reports how many rows were newly written.
type Writer interface {
	InsertBatch(ctx context.Context, items []domain.Event) (int64, error)
}

// Recorder observes batch outcomes; *metrics.Metrics implements it.
type Recorder interface {
	ArchiveBatch(inserted int64, err error)
	ArchiveDropped(n int)
}

// Ingestor hands stored events to the archive off the request path. It
// batches by size or by max wait, whichever comes first.
type Ingestor struct {
	queue        chan domain.Event
	writer       Writer
	batchMaxSize int
	batchMaxWait time.Duration
	flushTimeout time.Duration
	log          *slog.Logger
	rec          Recorder
	done         chan struct{}
}

func NewIngestor(writer Writer, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration, log *slog.Logger, rec Recorder) *Ingestor {
	if queueMaxSize <= 0 {
		queueMaxSize = 1000
	}
	if batchMaxSize <= 0 {
		batchMaxSize = 100
	}
	if batchMaxWait <= 0 {
		batchMaxWait = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		queue:        make(chan domain.Event, queueMaxSize),
		writer:       writer,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		flushTimeout: 5 * time.Second,
		log:          log,
		rec:          rec,
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is cancelled. Whatever is still
// queued at that point gets one final flush; Wait blocks until it finishes.
func (ig *Ingestor) Start(ctx context.Context) {
	go func() {
		defer close(ig.done)

		batch := make([]domain.Event, 0, ig.batchMaxSize)
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			affected, err := ig.writer.InsertBatch(ctx, batch)
			if err != nil {
				ig.log.Error("archive batch insert failed", "err", err, "dropped", len(batch))
				if ig.rec != nil {
					ig.rec.ArchiveDropped(len(batch))
				}
			} else {
				ig.log.Debug("archive batch insert ok", "inserted", affected, "size", len(batch))
			}
			if ig.rec != nil {
				ig.rec.ArchiveBatch(affected, err)
			}
			clear(batch)
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				// drain what was accepted before shutdown
			drain:
				for {
					select {
					case ev := <-ig.queue:
						batch = append(batch, ev)
					default:
						break drain
					}
				}
				fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ig.flushTimeout)
				flush(fctx)
				cancel()
				return
			case ev := <-ig.queue:
				batch = append(batch, ev)
				if len(batch) >= ig.batchMaxSize {
					flush(ctx)
				}
			case <-t.C:
				flush(ctx)
			}
		}
	}()
}

// Enqueue never blocks; it reports false and counts a drop when the queue is
// full.
func (ig *Ingestor) Enqueue(ev domain.Event) bool {
	select {
	case ig.queue <- ev:
		return true
	default:
		if ig.rec != nil {
			ig.rec.ArchiveDropped(1)
		}
		return false
	}
}

// Wait blocks until the loop started by Start has exited.
func (ig *Ingestor) Wait() { <-ig.done }
