// Package kafka is an audit.Store that publishes every event straight to a
// topic, for deployments without a database.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "mutuelle/pkg/platform/audit"
)

// Publisher is the producer side of a Kafka client.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Store struct {
	producer Publisher
}

func New(producer Publisher) *Store {
	return &Store{producer: producer}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	value, err := json.Marshal(audit.PayloadOf(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	key := event.ID.String()
	if !event.MemberID.IsNil() {
		key = event.MemberID.String()
	}
	return s.producer.Publish(ctx, []byte(key), value)
}
