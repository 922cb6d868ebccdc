package refstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SweepsAtMostOncePerInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	m := NewMemory(10 * time.Second)
	m.now = func() time.Time { return clock }
	m.lastSweep = start

	insert := func(key string, at time.Duration) {
		clock = start.Add(at)
		_, err := m.GetOrCreate(context.Background(), key, func() string { return key })
		require.NoError(t, err)
	}

	insert("a", 0)
	insert("b", 6*time.Second)
	assert.Equal(t, start.Add(6*time.Second), m.lastSweep)

	// a has expired but the last sweep is too recent
	insert("c", 10500*time.Millisecond)
	assert.Len(t, m.entries, 3)
	assert.Contains(t, m.entries, "a")

	insert("d", 11500*time.Millisecond)
	assert.Len(t, m.entries, 3)
	assert.NotContains(t, m.entries, "a")
}

func TestMemory_ExpiredKeyIsMissBeforeSweep(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	m := NewMemory(10 * time.Second)
	m.now = func() time.Time { return clock }
	m.lastSweep = start

	id, err := m.GetOrCreate(context.Background(), "k", func() string { return "OLD0001" })
	require.NoError(t, err)
	assert.Equal(t, "OLD0001", id)

	clock = start.Add(11 * time.Second)
	m.lastSweep = clock
	id, err = m.GetOrCreate(context.Background(), "k", func() string { return "NEW0001" })
	require.NoError(t, err)
	assert.Equal(t, "NEW0001", id)
}

func TestNewMemory_SweepIntervalCapped(t *testing.T) {
	assert.Equal(t, maxSweepInterval, NewMemory(DefaultTTL).interval)
	assert.Equal(t, 5*time.Second, NewMemory(10*time.Second).interval)
}
