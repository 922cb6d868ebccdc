package tenant_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chandamin/Shipperman/internal/tenant"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemory_Resolve(t *testing.T) {
	store := tenant.NewMemory(tenant.Credential{ShopURL: "Acme.myshopify.com", APIKey: "k1", BaseURL: "https://stage.example"})

	cred, err := store.Resolve(context.Background(), " acme.MYSHOPIFY.com ")
	require.NoError(t, err)
	assert.Equal(t, "k1", cred.APIKey)
	assert.Equal(t, "https://stage.example", cred.Endpoint().BaseURL)
}

func TestMemory_Resolve_NotConfigured(t *testing.T) {
	store := tenant.NewMemory(tenant.Credential{ShopURL: "blank.myshopify.com"})

	for _, shop := range []string{"unknown.myshopify.com", "blank.myshopify.com"} {
		_, err := store.Resolve(context.Background(), shop)
		assert.True(t, errors.Is(err, shipper.ErrNotConfigured), shop)
	}
}

func TestMemory_Save_Override(t *testing.T) {
	store := tenant.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, tenant.Credential{ShopURL: "acme.myshopify.com", APIKey: "old"}))
	require.NoError(t, store.Save(ctx, tenant.Credential{ShopURL: "ACME.myshopify.com", APIKey: "new"}))
	assert.Equal(t, 1, store.Count())

	cred, err := store.Resolve(ctx, "acme.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "new", cred.APIKey)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	store := tenant.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		shop := fmt.Sprintf("shop-%d.myshopify.com", i)
		go func() {
			defer wg.Done()
			_ = store.Save(ctx, tenant.Credential{ShopURL: shop, APIKey: "k"})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Resolve(ctx, shop)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, store.Count())
}

func TestCredential_NeverPrintsKey(t *testing.T) {
	cred := tenant.Credential{ShopURL: "acme.myshopify.com", APIKey: "super-secret", BaseURL: "https://x"}

	assert.NotContains(t, cred.String(), "super-secret")
	assert.NotContains(t, fmt.Sprintf("%v", cred), "super-secret")

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("resolved", zap.Object("credential", cred))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fmt.Sprintf("%v", fields), "super-secret")
	assert.Contains(t, fmt.Sprintf("%v", fields), "acme.myshopify.com")
}

// fakeDB records statements and answers QueryRow from a map keyed by shop.
type fakeDB struct {
	rows    map[string][2]string
	execs   []string
	args    [][]any
	failErr error
}

type fakeRow struct {
	vals [2]string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.vals[0]
	*(dest[1].(*string)) = r.vals[1]
	return nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	if f.failErr != nil {
		return pgconn.CommandTag{}, f.failErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.failErr != nil {
		return fakeRow{err: f.failErr}
	}
	vals, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{vals: vals}
}

func TestPostgres_Resolve(t *testing.T) {
	db := &fakeDB{rows: map[string][2]string{
		"acme.myshopify.com":  {"k1", "https://stage.example"},
		"empty.myshopify.com": {"", ""},
	}}
	store := tenant.NewPostgres(db)
	ctx := context.Background()

	cred, err := store.Resolve(ctx, "ACME.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", cred.ShopURL)
	assert.Equal(t, "k1", cred.APIKey)
	assert.Equal(t, "https://stage.example", cred.BaseURL)

	_, err = store.Resolve(ctx, "missing.myshopify.com")
	assert.True(t, errors.Is(err, shipper.ErrNotConfigured))

	_, err = store.Resolve(ctx, "empty.myshopify.com")
	assert.True(t, errors.Is(err, shipper.ErrNotConfigured))
}

func TestPostgres_Resolve_DatabaseError(t *testing.T) {
	store := tenant.NewPostgres(&fakeDB{failErr: errors.New("connection reset")})

	_, err := store.Resolve(context.Background(), "acme.myshopify.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, shipper.ErrNotConfigured), "database failures are not a missing configuration")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgres_SaveUpserts(t *testing.T) {
	db := &fakeDB{}
	store := tenant.NewPostgres(db)

	require.NoError(t, store.Save(context.Background(), tenant.Credential{ShopURL: " Acme.myshopify.com", APIKey: "k2"}))
	require.Len(t, db.execs, 1)
	assert.True(t, strings.Contains(db.execs[0], "ON CONFLICT (shop_url)"))
	assert.Equal(t, []any{"acme.myshopify.com", "k2", ""}, db.args[0])
}

func TestPostgres_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, tenant.NewPostgres(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS api_data")

	db.failErr = errors.New("permission denied")
	assert.Error(t, tenant.NewPostgres(db).EnsureSchema(context.Background()))
}
