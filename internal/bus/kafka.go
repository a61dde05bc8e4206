package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// KafkaDispatcher delivers jobs through Kafka so ingestion survives server
// restarts and scales past a single consumer.
type KafkaDispatcher struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	client   sarama.Client

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	consumerWg   sync.WaitGroup
	consumerStop chan struct{}
	log          *logger.Logger
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
	Version       string
	Timeout       time.Duration
}

// NewKafkaDispatcher creates a Kafka-backed dispatcher.
func NewKafkaDispatcher(cfg KafkaConfig, log *logger.Logger) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.ValidationError("kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "suri-search-ingest"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "suri-search"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "invalid kafka version", err)
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 3
	// WaitForAll plus idempotent ingestion gives effective at-least-once.
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaConfig.Consumer.Return.Errors = true
	kafkaConfig.Net.DialTimeout = 10 * time.Second
	kafkaConfig.Net.ReadTimeout = 10 * time.Second
	kafkaConfig.Net.WriteTimeout = 10 * time.Second

	client, err := sarama.NewClient(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "creating kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "creating kafka producer", err)
	}

	consumer, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "creating kafka consumer group", err)
	}

	return &KafkaDispatcher{
		config:       cfg,
		producer:     producer,
		consumer:     consumer,
		client:       client,
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		log:          log,
	}, nil
}

// Publish sends the job to a Kafka topic, keyed by job ID.
func (d *KafkaDispatcher) Publish(_ context.Context, topic string, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return apperrors.ServiceUnavailableError("dispatcher")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return apperrors.InternalError("encoding job", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(job.ID),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := d.producer.SendMessage(msg); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "publishing to kafka", err)
	}
	return nil
}

// Subscribe registers a handler and starts the topic consumer on first use.
func (d *KafkaDispatcher) Subscribe(_ context.Context, topic string, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return apperrors.ServiceUnavailableError("dispatcher")
	}

	firstHandler := len(d.handlers[topic]) == 0
	d.handlers[topic] = append(d.handlers[topic], handler)

	if firstHandler {
		d.consumerWg.Add(1)
		go d.consumeTopic(topic)
	}
	return nil
}

func (d *KafkaDispatcher) consumeTopic(topic string) {
	defer d.consumerWg.Done()

	handler := &claimHandler{dispatcher: d, topic: topic}

	for {
		select {
		case <-d.consumerStop:
			return
		default:
		}

		if err := d.consumer.Consume(context.Background(), []string{topic}, handler); err != nil {
			d.log.WithError(err).Warn("kafka consumer error", "topic", topic)
		}

		select {
		case <-d.consumerStop:
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

// Close stops consumers and releases Kafka resources.
func (d *KafkaDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.consumerStop)
	d.consumerWg.Wait()

	var firstErr error
	for _, closer := range []func() error{d.consumer.Close, d.producer.Close, d.client.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	d.mu.Lock()
	d.handlers = nil
	d.mu.Unlock()

	if firstErr != nil {
		return apperrors.InternalError("closing kafka dispatcher", firstErr)
	}
	return nil
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	dispatcher *KafkaDispatcher
	topic      string
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes jobs and runs every registered handler. Messages
// are marked even when a handler fails: ingestion retries belong to the
// operator, not the consumer loop.
func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg := <-claim.Messages():
			if msg == nil {
				return nil
			}

			var job Job
			if err := json.Unmarshal(msg.Value, &job); err != nil {
				h.dispatcher.log.WithError(err).Warn("dropping undecodable job", "topic", h.topic)
				session.MarkMessage(msg, "")
				continue
			}

			h.dispatcher.mu.RLock()
			handlers := h.dispatcher.handlers[h.topic]
			h.dispatcher.mu.RUnlock()

			for _, handler := range handlers {
				if err := handler(session.Context(), job); err != nil {
					h.dispatcher.log.WithError(err).Error("job handler failed",
						"topic", h.topic, "job", job.ID)
				}
			}

			session.MarkMessage(msg, "")
		}
	}
}
