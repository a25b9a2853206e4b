package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutuelle/pkg/platform/audit/store/postgres"
)

type fakeSource struct {
	pending []postgres.OutboxEntry
	marked  []uuid.UUID
}

func (f *fakeSource) FetchPending(_ context.Context, limit int) ([]postgres.OutboxEntry, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakeSink struct {
	failOn int
	keys   []string
}

func (f *fakeSink) Publish(_ context.Context, key, _ []byte) error {
	if f.failOn > 0 && len(f.keys)+1 == f.failOn {
		return errors.New("broker unavailable")
	}
	f.keys = append(f.keys, string(key))
	return nil
}

func entries(n int) []postgres.OutboxEntry {
	out := make([]postgres.OutboxEntry, n)
	for i := range out {
		out[i] = postgres.OutboxEntry{ID: uuid.New(), AggregateID: uuid.NewString(), Payload: []byte(`{}`)}
	}
	return out
}

func TestRelayOnce(t *testing.T) {
	t.Run("publishes and marks every pending entry", func(t *testing.T) {
		src := &fakeSource{pending: entries(3)}
		sink := &fakeSink{}
		n, err := NewRelay(src, sink).RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Len(t, src.marked, 3)
		assert.Equal(t, src.pending[0].AggregateID, sink.keys[0])
	})

	t.Run("stops at first failure and marks only the prefix", func(t *testing.T) {
		src := &fakeSource{pending: entries(4)}
		sink := &fakeSink{failOn: 3}
		n, err := NewRelay(src, sink).RelayOnce(context.Background())
		require.Error(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []uuid.UUID{src.pending[0].ID, src.pending[1].ID}, src.marked)
	})

	t.Run("respects batch size", func(t *testing.T) {
		src := &fakeSource{pending: entries(5)}
		n, err := NewRelay(src, &fakeSink{}, WithBatchSize(2)).RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
