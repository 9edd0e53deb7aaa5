package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))
	return &db.DB{Bun: bunDB, MaxTxAttempts: 3}
}

func seedOrder(t *testing.T, orderDB *db.DB) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New().String(),
		UserID:      "user123",
		ShippingFee: 50,
		Subtotal:    500,
		Total:       550,
		Status:      models.OrderPending,
		RequestAt:   &testNow,
		Version:     1,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	items := []models.OrderLineItem{
		{ID: order.ID + "-b", OrderID: order.ID, ProductID: "mug", Quantity: 2, Price: 150, CreatedAt: testNow, UpdatedAt: testNow},
		{ID: order.ID + "-a", OrderID: order.ID, ProductID: "bowl", Quantity: 1, Price: 200, CreatedAt: testNow, UpdatedAt: testNow},
	}
	err := orderDB.InTx(context.Background(), func(ctx context.Context, q *db.Queries) error {
		return q.InsertOrder(ctx, order, items)
	})
	require.NoError(t, err)
	return order
}

func TestGetOrderWithItems(t *testing.T) {
	orderDB := setupTestDB(t)
	order := seedOrder(t, orderDB)

	// Test case: existing order, items come back ordered by ID
	got, err := orderDB.GetOrderWithItems(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, order.ID+"-a", got.Items[0].ID)
	assert.Equal(t, order.ID+"-b", got.Items[1].ID)

	// Test case: missing order
	_, err = orderDB.GetOrderWithItems(context.Background(), "non-existent")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateOrder_VersionCheck(t *testing.T) {
	orderDB := setupTestDB(t)
	order := seedOrder(t, orderDB)
	ctx := context.Background()

	stale := *order

	err := orderDB.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		current.Status = models.OrderProcessing
		return q.UpdateOrder(ctx, current, testNow, "status")
	})
	require.NoError(t, err)

	// A writer still holding version 1 loses and keeps losing on retry.
	attempts := 0
	err = orderDB.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		attempts++
		o := stale
		o.Status = models.OrderCancelled
		return q.UpdateOrder(ctx, &o, testNow, "status")
	})
	assert.ErrorIs(t, err, database.ErrConflict)
	assert.Equal(t, 3, attempts)

	got, err := orderDB.GetOrderWithItems(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateItem(t *testing.T) {
	orderDB := setupTestDB(t)
	order := seedOrder(t, orderDB)
	ctx := context.Background()

	err := orderDB.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		item, err := q.GetItem(ctx, order.ID+"-b")
		if err != nil {
			return err
		}
		item.Quantity = 3
		item.Discount = 40
		return q.UpdateItem(ctx, item, testNow.Add(time.Minute))
	})
	require.NoError(t, err)

	got, err := orderDB.GetOrderWithItems(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Items[1].Quantity)
	assert.Equal(t, int64(40), got.Items[1].Discount)
	assert.Equal(t, int64(150), got.Items[1].Price)
}

func TestListOrdersByUser(t *testing.T) {
	orderDB := setupTestDB(t)
	first := seedOrder(t, orderDB)
	second := seedOrder(t, orderDB)

	orders, err := orderDB.ListOrdersByUser(context.Background(), "user123")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{orders[0].ID, orders[1].ID})

	orders, err = orderDB.ListOrdersByUser(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
