package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/metrics"
)

const recordTimeout = 5 * time.Second

// learnWorker drains feedback events to the recorder in the background
// so learning writes never sit on the request path.
type learnWorker struct {
	recorder Recorder
	queue    chan learning.FeedbackEvent
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func newLearnWorker(recorder Recorder, queueSize int, m *metrics.Metrics, logger *zap.Logger) *learnWorker {
	return &learnWorker{
		recorder: recorder,
		queue:    make(chan learning.FeedbackEvent, queueSize),
		metrics:  m,
		logger:   logger.Named("learn"),
	}
}

// Start launches the drain loop. Calling Start on a running worker is a
// no-op.
func (w *learnWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})

	go w.run(w.stopCh, w.done)
	w.logger.Info("learn worker started", zap.Int("queue_size", cap(w.queue)))
}

// Stop signals the worker and waits for it to drain pending events.
func (w *learnWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("learn worker stopped")
}

// Enqueue hands an event to the worker. A full queue drops the event;
// learning data is advisory and must never block a request.
func (w *learnWorker) Enqueue(event learning.FeedbackEvent) {
	select {
	case w.queue <- event:
	default:
		w.metrics.LearnQueueDropped.Inc()
		w.logger.Warn("learn queue full, dropping event",
			zap.String("session_id", event.SessionID))
	}
}

func (w *learnWorker) run(stopCh, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("learn worker panic",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for {
		select {
		case event := <-w.queue:
			w.record(event)
		case <-stopCh:
			w.drain()
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (w *learnWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.record(event)
		default:
			return
		}
	}
}

func (w *learnWorker) record(event learning.FeedbackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := w.recorder.Record(ctx, event); err != nil {
		w.logger.Warn("recording feedback event failed",
			zap.String("session_id", event.SessionID), zap.Error(err))
	}
}
