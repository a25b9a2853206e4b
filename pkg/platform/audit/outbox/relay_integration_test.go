//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"mutuelle/internal/platform/kafka"
	id "mutuelle/pkg/domain"
	audit "mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/outbox"
	"mutuelle/pkg/platform/audit/store/postgres"
	"mutuelle/pkg/testutil/containers"
)

// RelaySuite writes audit events through the Postgres store and relays the
// outbox to a real broker.
type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	brokers  []string
	store    *postgres.Store
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.brokers = mgr.GetRedpanda(s.T()).Brokers
	s.store = postgres.New(s.postgres.DB)
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(context.Background()))
}

func (s *RelaySuite) TestRelaysInOrderAndOnlyOnce() {
	ctx := context.Background()
	topic := "audit-" + uuid.NewString()
	producer, err := kafka.NewProducer(s.brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1))

	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	for _, action := range []audit.AuditEvent{audit.EventPaymentApplied, audit.EventTreatmentRecorded} {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Timestamp:  now,
			OperatorID: id.OperatorID(1),
			MemberID:   id.MemberID(5),
			Action:     string(action),
		}))
	}

	relay := outbox.NewRelay(s.store, producer)
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n, "published entries are not relayed again")

	records := s.consume(topic, 2)
	var actions []string
	for _, r := range records {
		s.Equal("5", string(r.Key))
		var p audit.Payload
		s.Require().NoError(json.Unmarshal(r.Value, &p))
		s.Equal(int64(5), p.MemberID)
		actions = append(actions, p.Action)
	}
	s.Equal([]string{string(audit.EventPaymentApplied), string(audit.EventTreatmentRecorded)}, actions)

	trail, err := s.store.ListByMember(ctx, 5)
	s.Require().NoError(err)
	s.Len(trail, 2)
}

func (s *RelaySuite) TestFailedAppendLeavesNoOutboxRow() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.store.Append(ctx, audit.Event{
		Timestamp: time.Now(),
		MemberID:  id.MemberID(9),
		Action:    string(audit.EventTreatmentRecorded),
	})
	s.Require().Error(err)

	pending, err := s.store.FetchPending(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(pending)
	trail, err := s.store.ListByMember(context.Background(), 9)
	s.Require().NoError(err)
	s.Empty(trail)
}

func (s *RelaySuite) consume(topic string, n int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var out []*kgo.Record
	for len(out) < n {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out after %d of %d records", len(out), n)
		fetches.EachRecord(func(r *kgo.Record) {
			out = append(out, r)
		})
	}
	return out
}
