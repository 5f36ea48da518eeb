package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

func TestCleanupExpiredReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var expired []uuid.UUID
	for i := 0; i < 3; i++ {
		productID := f.seedProduct(t, 20)
		expired = append(expired, productID)
		_, err := f.svc.ReserveForCart(ctx, ReserveCartInput{HolderID: "h", Items: []Item{{ProductID: productID, Quantity: 2}}})
		require.NoError(t, err)
	}
	live := f.seedProduct(t, 20)
	_, err := f.svc.ReserveForCart(ctx, ReserveCartInput{HolderID: "other", Items: []Item{{ProductID: live, Quantity: 2}}, TTL: time.Hour})
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	res, err := f.svc.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Expired: 3}, res)

	for _, id := range expired {
		expectQuantities(t, f.record(t, id), 20, 0, 20)
		f.assertBalanced(t, id)
	}
	expectQuantities(t, f.record(t, live), 18, 2, 20)
	require.Equal(t, 3, countEvents(f.events(t), enums.EventReservationExpired))

	again, err := f.svc.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Expired)

	var releases int64
	f.db.Model(&models.InventoryTransaction{}).Where("transaction_type = ?", enums.InventoryTransactionRelease).Count(&releases)
	require.EqualValues(t, 3, releases)

	mfs, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "inventory_reservations_expired_total" {
			require.EqualValues(t, 3, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestCleanupSkipsRefreshedHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.seedProduct(t, 20)
	item := []Item{{ProductID: productID, Quantity: 2}}

	_, err := f.svc.ReserveForCart(ctx, ReserveCartInput{HolderID: "h", Items: item})
	require.NoError(t, err)
	f.clock.Advance(31 * time.Minute)
	_, err = f.svc.ReserveForCart(ctx, ReserveCartInput{HolderID: "h", Items: item})
	require.NoError(t, err)

	res, err := f.svc.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Expired)
	expectQuantities(t, f.record(t, productID), 18, 2, 20)
}

func TestConcurrentSweepsExpireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var products []uuid.UUID
	for i := 0; i < 4; i++ {
		productID := f.seedProduct(t, 10)
		products = append(products, productID)
		_, err := f.svc.ReserveForCart(ctx, ReserveCartInput{HolderID: uuid.NewString(), Items: []Item{{ProductID: productID, Quantity: 3}}})
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.CleanupExpiredReservations(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				total += res.Expired
			}
		}()
	}
	wg.Wait()

	require.Equal(t, len(products), total)
	for _, id := range products {
		expectQuantities(t, f.record(t, id), 10, 0, 10)
		require.Len(t, f.entries(t, id), 2)
	}
}
