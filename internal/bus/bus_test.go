package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/surisearch/suri-search/internal/pkg/logger"
)

func TestMemoryDispatcherDelivers(t *testing.T) {
	d := NewMemoryDispatcher(logger.Default())
	defer d.Close()

	var mu sync.Mutex
	var received []Job
	done := make(chan struct{}, 1)

	err := d.Subscribe(context.Background(), TopicDocumentProcess, func(_ context.Context, job Job) error {
		mu.Lock()
		received = append(received, job)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	job := NewJob("document", "upload", "인별명세.csv", []byte("사번,수수료\nA11111,1000"))
	if err := d.Publish(context.Background(), TopicDocumentProcess, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].ID != job.ID {
		t.Errorf("received = %+v, want job %s", received, job.ID)
	}
	if received[0].DocumentName != "인별명세.csv" {
		t.Errorf("DocumentName = %q", received[0].DocumentName)
	}
}

func TestMemoryDispatcherNoSubscribers(t *testing.T) {
	d := NewMemoryDispatcher(logger.Default())
	defer d.Close()

	if err := d.Publish(context.Background(), "unknown.topic", NewJob("document", "test", "x", nil)); err != nil {
		t.Fatalf("publish without subscribers should not error: %v", err)
	}
}

func TestMemoryDispatcherClosed(t *testing.T) {
	d := NewMemoryDispatcher(logger.Default())
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if err := d.Publish(context.Background(), TopicDocumentProcess, Job{}); err == nil {
		t.Error("publish after close should error")
	}
	if err := d.Subscribe(context.Background(), TopicDocumentProcess, nil); err == nil {
		t.Error("subscribe after close should error")
	}
}

func TestMemoryDispatcherDrain(t *testing.T) {
	d := NewMemoryDispatcher(logger.Default())
	defer d.Close()

	release := make(chan struct{})
	if err := d.Subscribe(context.Background(), TopicDocumentProcess, func(_ context.Context, _ Job) error {
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.Publish(context.Background(), TopicDocumentProcess, NewJob("document", "test", "x", nil)); err != nil {
		t.Fatal(err)
	}

	if d.Drain(50 * time.Millisecond) {
		t.Error("drain should time out while a handler is blocked")
	}
	close(release)
	if !d.Drain(2 * time.Second) {
		t.Error("drain should complete after the handler returns")
	}
}

func TestNewDispatcherFactory(t *testing.T) {
	d, err := New("memory", KafkaConfig{}, logger.Default())
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	d.Close()

	if _, err := New("rabbitmq", KafkaConfig{}, logger.Default()); err == nil {
		t.Error("unknown dispatcher type should error")
	}

	if _, err := NewKafkaDispatcher(KafkaConfig{}, logger.Default()); err == nil {
		t.Error("kafka dispatcher without brokers should error")
	}
}
