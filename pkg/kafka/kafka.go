package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const (
	maxRetries = 10
	retryDelay = 3 * time.Second
)

func waitForKafka(brokers []string) error {
	for i := 0; i < maxRetries; i++ {
		config := sarama.NewConfig()
		config.Net.DialTimeout = 1 * time.Second
		client, err := sarama.NewClient(brokers, config)
		if err == nil {
			client.Close()
			return nil
		}
		slog.Info("Waiting for Kafka to be ready...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	return fmt.Errorf("kafka not available after %d attempts", maxRetries)
}

func NewProducer(broker string, retryMax int, retryBackoff time.Duration) (sarama.SyncProducer, error) {
	brokers := []string{broker}
	if err := waitForKafka(brokers); err != nil {
		return nil, err
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = retryMax
	config.Producer.Retry.Backoff = retryBackoff

	return sarama.NewSyncProducer(brokers, config)
}

func NewConsumer(broker, group string) (sarama.ConsumerGroup, error) {
	brokers := []string{broker}
	if err := waitForKafka(brokers); err != nil {
		return nil, err
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	return sarama.NewConsumerGroup(brokers, group, config)
}

// Publisher sends JSON-encoded events to a single topic.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Publish encodes v as JSON and sends it keyed by key, so events for the
// same key land on the same partition.
func (p *Publisher) Publish(key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	slog.Debug("Event published", "topic", p.topic, "key", key, "partition", partition, "offset", offset)
	return nil
}
