package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher mirrors audit entries to a topic keyed by action, so
// downstream retention can partition by what happened rather than when.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

type kafkaEntry struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	TableName   string         `json:"table_name,omitempty"`
	RecordCount int64          `json:"record_count,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// NewKafkaPublisher connects to the brokers and ensures the topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
	}

	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(kafkaEntry{
		ID:          entry.ID.String(),
		Action:      string(entry.Action),
		TableName:   entry.TableName,
		RecordCount: entry.RecordCount,
		Details:     entry.Details,
		Actor:       entry.Actor,
		RequestID:   entry.RequestID,
		CreatedAt:   entry.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.Action),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
