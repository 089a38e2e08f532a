package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campusdelivery/internal/testutil"
)

func TestStockLedgerReserve(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	ledger := NewStockLedger(db)
	product := testutil.CreateProduct(t, db, "Chambo meal", 3000, 3)

	require.NoError(t, ledger.Reserve(ctx, product.ID, 2))
	assert.Equal(t, 1, testutil.Stock(t, db, product.ID))

	err := ledger.Reserve(ctx, product.ID, 2)
	requireFailure(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, testutil.Stock(t, db, product.ID), "a failed reservation must not change stock")

	require.NoError(t, ledger.Reserve(ctx, product.ID, 1))
	assert.Equal(t, 0, testutil.Stock(t, db, product.ID))

	requireFailure(t, ledger.Reserve(ctx, product.ID, 0), ErrInvalidInput)
	requireFailure(t, ledger.Reserve(ctx, uuid.New(), 1), ErrInsufficientStock)
}

func TestStockLedgerConcurrentReserveNeverOversells(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	ledger := NewStockLedger(db)
	product := testutil.CreateProduct(t, db, "Nsima", 1500, 5)

	var wg sync.WaitGroup
	var succeeded, refused int32
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, product.ID, 1); err != nil {
				atomic.AddInt32(&refused, 1)
				return
			}
			atomic.AddInt32(&succeeded, 1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, succeeded)
	assert.EqualValues(t, 7, refused)
	assert.Equal(t, 0, testutil.Stock(t, db, product.ID))
}

func TestStockLedgerRelease(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	ledger := NewStockLedger(db)
	product := testutil.CreateProduct(t, db, "Fanta", 700, 0)

	require.NoError(t, ledger.Release(ctx, product.ID, 4))
	assert.Equal(t, 4, testutil.Stock(t, db, product.ID))

	require.NoError(t, ledger.Release(ctx, product.ID, 0))
	require.NoError(t, ledger.Release(ctx, uuid.New(), 2))

	available, err := ledger.Available(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
}
