package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"civic/internal/quality"
)

// KafkaPublisher writes rejections to a topic as JSON, keyed by ZIP code so
// every rejection for one ZIP lands on the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rej quality.Rejection) error {
	return p.PublishBatch(ctx, []quality.Rejection{rej})
}

// PublishBatch produces every rejection and waits for all acknowledgements.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, rejs []quality.Rejection) error {
	records := make([]*kgo.Record, 0, len(rejs))
	for _, rej := range rejs {
		value, err := json.Marshal(rej)
		if err != nil {
			return fmt.Errorf("encode rejection %s: %w", rej.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(rej.ZipCode),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "kind", Value: []byte(rej.Kind)},
				{Key: "rules_version", Value: []byte(rej.RulesVersion)},
			},
		})
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce rejections: %w", err)
	}
	return nil
}
