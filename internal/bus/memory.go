package bus

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// MemoryDispatcher delivers jobs in-process. Single-node deployments and
// tests use this; multi-node deployments use Kafka.
type MemoryDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	inflight sync.WaitGroup
	log      *logger.Logger
}

// NewMemoryDispatcher creates an in-process dispatcher.
func NewMemoryDispatcher(log *logger.Logger) *MemoryDispatcher {
	return &MemoryDispatcher{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Publish hands the job to every subscriber asynchronously. No subscribers
// is not an error; the job is simply dropped.
func (d *MemoryDispatcher) Publish(_ context.Context, topic string, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return apperrors.ServiceUnavailableError("dispatcher")
	}

	for _, handler := range d.handlers[topic] {
		d.inflight.Add(1)
		go func(h Handler) {
			defer d.inflight.Done()
			// Detached context: the job outlives the upload request.
			if err := h(context.Background(), job); err != nil {
				d.log.WithError(err).Error("job handler failed", "topic", topic, "job", job.ID)
			}
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (d *MemoryDispatcher) Subscribe(_ context.Context, topic string, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return apperrors.ServiceUnavailableError("dispatcher")
	}
	d.handlers[topic] = append(d.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs before shutting down.
func (d *MemoryDispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		d.log.Warn("dispatcher drain timeout, some jobs may be incomplete")
	}

	d.mu.Lock()
	d.handlers = nil
	d.mu.Unlock()
	return nil
}

// Drain waits for in-flight jobs up to the timeout, reporting completion.
func (d *MemoryDispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
