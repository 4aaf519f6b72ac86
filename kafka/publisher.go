package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"shwanortho/clinic-sync-bridge/log"
	syncpkg "shwanortho/clinic-sync-bridge/sync"

	"github.com/Shopify/sarama"
)

// changeEvent is the JSON body announced on the change topic after an outbox
// entry has been applied to the mirror. Consumers (live appointment screens,
// messaging workers) use it to refresh without polling.
type changeEvent struct {
	Table      string     `json:"table"`
	RowID      string     `json:"rowId"`
	Operation  string     `json:"operation"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

type Publisher interface {
	io.Closer
	PublishChange(e *syncpkg.Entry) error
}

type publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(kafkaHost []string, topic string, cfg *sarama.Config) Publisher {
	return NewPublisherWithProducer(newProducer(cfg, kafkaHost), topic)
}

func NewPublisherWithProducer(prod sarama.SyncProducer, topic string) Publisher {
	return &publisher{
		producer: prod,
		topic:    topic,
	}
}

func (p publisher) PublishChange(e *syncpkg.Entry) error {
	ev := changeEvent{
		Table:     e.TableName,
		RowID:     e.RowID,
		Operation: string(e.Operation),
	}
	if e.CreatedAt.Valid {
		ev.OccurredAt = &e.CreatedAt.Time
	}

	body, err := json.Marshal(ev)
	if err != nil {
		wrapErr := fmt.Errorf("error marshalling change event for publishing to Kafka: %w", err)
		log.Logger.Error(wrapErr)
		return wrapErr
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   newMessageKey(fmt.Sprintf("%s:%s", e.TableName, e.RowID), e.TableName),
		Value: sarama.ByteEncoder(body),
	})

	if err != nil {
		wrapErr := fmt.Errorf("error producing change event in Kafka: %w", err)
		log.Logger.Error(wrapErr)
		return wrapErr
	}

	log.Logger.Debugf("produced change event in Kafka (topic: %s, partition: %d, offset: %d)", p.topic, partition, offset)

	return nil
}

func newProducer(cfg *sarama.Config, kafkaHosts []string) sarama.SyncProducer {
	producer, err := sarama.NewSyncProducer(kafkaHosts, cfg)
	if err != nil {
		log.Logger.Panicf("could not start kafka producer: %s", err)
	}

	return producer
}

func (p publisher) Close() error {
	return p.producer.Close()
}
