//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/internal/testenv"
	"github.com/dmehra2102/storefront/pkg/logging"
)

func TestPostgresStore(t *testing.T) {
	env := testenv.Postgres(t)
	ctx := context.Background()
	store := NewPostgresStore(logging.Discard(), env.Pool, 2)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, Insert(ctx, env.Pool, Record{
			AggregateType: "order",
			AggregateID:   id,
			Type:          "OrderCreated",
			Payload:       []byte(`{"orderId":` + id + `}`),
			Headers:       map[string]string{"source": "test"},
		}))
	}

	events, err := store.LockBatch(ctx, "relay-a", 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "test", events[0].Headers["source"])
	assert.JSONEq(t, `{"orderId":1}`, string(events[0].Payload))

	other, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, other, 1, "leased rows are not handed out twice")
	assert.Equal(t, "3", other[0].AggregateID)

	require.NoError(t, store.MarkSent(ctx, []int64{events[0].ID}))
	require.NoError(t, store.MarkFailed(ctx, events[1].ID, "broker down"))
	require.NoError(t, store.ExtendLease(ctx, "relay-b", []int64{other[0].ID}, time.Minute))

	retry, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, events[1].ID, retry[0].ID)
	assert.Equal(t, 1, retry[0].RetryCount)

	require.NoError(t, store.MarkFailed(ctx, retry[0].ID, "broker down"))
	exhausted, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, exhausted, "rows past the retry limit stay failed")

	_, err = env.Pool.Exec(ctx, `UPDATE outbox SET lease_until = now() - interval '1 second' WHERE id=$1`, other[0].ID)
	require.NoError(t, err)
	reclaimed, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1, "expired leases are reclaimed")
	assert.Equal(t, other[0].ID, reclaimed[0].ID)
}
