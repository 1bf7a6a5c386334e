//go:build integration

package review_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"civic/internal/platform/config"
	"civic/internal/platform/kafka"
	"civic/internal/quality"
	"civic/internal/quality/review"
	"civic/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
	topic    string
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	s.topic = "civic.quality.rejections.test"

	cl, err := kafka.NewProducer(config.KafkaConfig{Brokers: s.redpanda.Brokers, ReviewTopic: s.topic})
	s.Require().NoError(err)
	s.producer = cl

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, cl, s.topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, cl, s.topic, 1, 1), "existing topic is not an error")
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaPublisherSuite) TestPublishedRejectionIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pub := review.NewKafkaPublisher(s.producer, s.topic)
	want := quality.Rejection{
		ID:       "rej-1",
		Kind:     quality.KindRepresentative,
		ZipCode:  "95814",
		Level:    "state",
		RecordID: "ca-sd-12",
		Violations: []quality.Violation{{
			Field: "name", Rule: quality.RulePlaceholderName, Observed: "Senator District 12", Severity: quality.SeverityReject,
		}},
		RulesVersion: "2025-06",
		RejectedAt:   time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(pub.Publish(ctx, want))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	rec := records[0]
	s.Equal("95814", string(rec.Key))
	var got quality.Rejection
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(want, got)
}
