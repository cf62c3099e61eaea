package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.IEventPublisher = (*KafkaPublisher)(nil)

func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "compliance-payment-service"
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// NewKafkaPublisher dials the brokers, retrying while they come up.
func NewKafkaPublisher(brokers []string, topic string, attempts int) (*KafkaPublisher, error) {
	var (
		producer sarama.SyncProducer
		err      error
	)
	for i := 1; i <= attempts; i++ {
		producer, err = sarama.NewSyncProducer(brokers, NewKafkaConfig())
		if err == nil {
			log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka producer initialized")
			return NewKafkaPublisherWithProducer(producer, topic), nil
		}
		log.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("waiting for kafka")
		if i < attempts {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, fmt.Errorf("failed to start kafka producer: %w", err)
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// PublishStatusChanged keys the message by payment reference so every event
// for one transaction lands on the same partition.
func (p *KafkaPublisher) PublishStatusChanged(_ context.Context, event model.StatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", p.topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PaymentReference),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("payment.status_changed")},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", p.topic, err)
	}

	log.Debug().
		Str("reference", event.PaymentReference).
		Str("new_status", string(event.NewStatus)).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("published status change")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher only logs. It stands in when no broker is configured.
type LogPublisher struct{}

var _ ports.IEventPublisher = LogPublisher{}

func (LogPublisher) PublishStatusChanged(_ context.Context, event model.StatusChangedEvent) error {
	log.Info().
		Str("reference", event.PaymentReference).
		Str("old_status", string(event.OldStatus)).
		Str("new_status", string(event.NewStatus)).
		Str("source", event.Source).
		Msg("payment status changed")
	return nil
}

func (LogPublisher) Close() error { return nil }
