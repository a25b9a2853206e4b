//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"mutuelle/internal/platform/kafka"
	"mutuelle/pkg/testutil/containers"
)

// consume reads n records from topic, starting at the beginning.
func consume(t *testing.T, brokers []string, topic string, n int) []*kgo.Record {
	t.Helper()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var out []*kgo.Record
	for len(out) < n {
		fetches := client.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timed out after %d of %d records", len(out), n)
		fetches.EachRecord(func(r *kgo.Record) {
			out = append(out, r)
		})
	}
	return out
}

func TestProducerPublishes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t)
	topic := "audit-" + uuid.NewString()

	p, err := kafka.NewProducer(broker.Brokers, topic)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.EnsureTopic(ctx, 1, 1))
	require.NoError(t, p.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	require.NoError(t, p.Publish(ctx, []byte("7"), []byte(`{"action":"treatment_recorded"}`)))
	require.NoError(t, p.Publish(ctx, []byte("7"), []byte(`{"action":"payment_applied"}`)))

	records := consume(t, broker.Brokers, topic, 2)
	require.Len(t, records, 2)
	require.Equal(t, "7", string(records[0].Key))
	require.JSONEq(t, `{"action":"treatment_recorded"}`, string(records[0].Value))
	require.JSONEq(t, `{"action":"payment_applied"}`, string(records[1].Value))
}

func TestNewProducerValidates(t *testing.T) {
	_, err := kafka.NewProducer(nil, "t")
	require.Error(t, err)
	_, err = kafka.NewProducer([]string{"localhost:9092"}, "")
	require.Error(t, err)
}
