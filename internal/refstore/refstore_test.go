package refstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chandamin/Shipperman/internal/refstore"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReusesIDForSameKey(t *testing.T) {
	store := refstore.NewMemory(time.Hour)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "delivery-1", shipper.NewReferenceID)
	require.NoError(t, err)
	again, err := store.GetOrCreate(ctx, "delivery-1", shipper.NewReferenceID)
	require.NoError(t, err)
	other, err := store.GetOrCreate(ctx, "delivery-2", func() string { return "OTHER00" })
	require.NoError(t, err)

	assert.True(t, shipper.ValidReferenceID(first))
	assert.Equal(t, first, again)
	assert.Equal(t, "OTHER00", other)
	assert.Equal(t, 2, store.Len())
}

func TestMemory_Expires(t *testing.T) {
	store := refstore.NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	first, _ := store.GetOrCreate(ctx, "k", func() string { return "AAAAAAA" })
	time.Sleep(40 * time.Millisecond)
	second, _ := store.GetOrCreate(ctx, "k", func() string { return "BBBBBBB" })

	assert.Equal(t, "AAAAAAA", first)
	assert.Equal(t, "BBBBBBB", second)
	assert.Equal(t, 1, store.Len())
}

func TestMemory_ConcurrentCallersAgree(t *testing.T) {
	store := refstore.NewMemory(time.Hour)

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = store.GetOrCreate(context.Background(), "same", shipper.NewReferenceID)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestRedis_FirstWriterWins(t *testing.T) {
	rdb := newFakeRedis()
	store := refstore.NewRedis(rdb, 0)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "delivery-9", func() string { return "FIRST00" })
	require.NoError(t, err)
	second, err := store.GetOrCreate(ctx, "delivery-9", func() string { return "SECOND0" })
	require.NoError(t, err)

	assert.Equal(t, "FIRST00", first)
	assert.Equal(t, "FIRST00", second)
	assert.Equal(t, refstore.DefaultTTL, rdb.ttls["shipperman:refid:delivery-9"])
}

func TestRedis_Error(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")

	_, err := refstore.NewRedis(rdb, time.Minute).GetOrCreate(context.Background(), "k", shipper.NewReferenceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := refstore.Dial(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
