package archive

import (
	"Go2NetTimeline/internal/model"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Worker batches packets evicted from the timeline and hands them to an
// Archiver on a single goroutine.
type Worker struct {
	archiver      model.Archiver
	queue         chan model.PacketRecord
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	dropped  atomic.Int64
	archived atomic.Int64

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorker creates a worker. Call Start to launch it.
func NewWorker(archiver model.Archiver, queueSize, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		archiver:      archiver,
		queue:         make(chan model.PacketRecord, queueSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("archive worker started",
		zap.Int("queue_size", cap(w.queue)),
		zap.Int("batch_size", w.batchSize))
}

// Handle enqueues the packets carried by bufferCleaned events. Other events
// are ignored. It can be subscribed to a timeline bus.
func (w *Worker) Handle(ev model.Event) {
	if ev.Name != model.EventBufferCleaned {
		return
	}
	cleaned, ok := ev.Payload.(model.BufferCleaned)
	if !ok {
		return
	}
	for _, p := range cleaned.Evicted {
		w.Enqueue(p)
	}
}

// Enqueue adds a packet without blocking. The packet is dropped when the queue is full.
func (w *Worker) Enqueue(p model.PacketRecord) {
	select {
	case w.queue <- p:
	default:
		if w.dropped.Add(1)%1000 == 1 {
			w.logger.Warn("archive queue is full, dropping packets", zap.Int64("dropped_total", w.dropped.Load()))
		}
	}
}

// Dropped returns how many packets were discarded because the queue was full.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

// Archived returns how many packets were written successfully.
func (w *Worker) Archived() int64 {
	return w.archived.Load()
}

func (w *Worker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]model.PacketRecord, 0, w.batchSize)
	for {
		select {
		case p := <-w.queue:
			batch = append(batch, p)
			if len(batch) >= w.batchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-w.stopChan:
			for {
				select {
				case p := <-w.queue:
					batch = append(batch, p)
				default:
					w.flush(batch)
					return
				}
			}
		}
	}
}

func (w *Worker) flush(batch []model.PacketRecord) []model.PacketRecord {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.archiver.Archive(ctx, batch); err != nil {
		w.logger.Error("failed to archive packets", zap.Int("count", len(batch)), zap.Error(err))
	} else {
		w.archived.Add(int64(len(batch)))
	}
	return batch[:0]
}

// Stop drains the queue, flushes the last batch and closes the archiver.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		if err := w.archiver.Close(); err != nil {
			w.logger.Warn("failed to close archiver", zap.Error(err))
		}
		w.logger.Info("archive worker stopped",
			zap.Int64("archived", w.archived.Load()),
			zap.Int64("dropped", w.dropped.Load()))
	})
}
