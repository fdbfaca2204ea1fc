package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_HistoryNewestFirst(t *testing.T) {
	var m Memory
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "1", CreatedAt: base})
	m.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "2", CreatedAt: base})
	m.Record(ctx, Entry{Action: ActionPaymentConfirmed, EntityID: "1", CreatedAt: base.Add(time.Minute)})

	got, err := m.History(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ActionPaymentConfirmed, got[0].Action)

	got, err = m.History(ctx, "1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.Equal(t, []string{ActionOrderCreated, ActionPaymentConfirmed}, m.Actions("1"))
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.Record(context.Background(), Entry{})
	got, err := l.History(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
