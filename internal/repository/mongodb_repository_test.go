package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

var (
	anon = domain.AnonymousOwner("7f0c7d5e-0d4f-4b64-9a51-0d0f0d9a3c11")
	acct = domain.AccountOwner("account-42")
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func line(lineID, catalogItemID, price string, qty int) domain.CartLineItem {
	return domain.CartLineItem{
		LineID:        lineID,
		CatalogItemID: catalogItemID,
		UnitPrice:     decimal.RequireFromString(price),
		Quantity:      qty,
		DisplayName:   catalogItemID,
	}
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), anon)

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestUpsertLine_NewCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2))
	require.NoError(t, err)

	cart, err := repo.GetCart(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, anon, cart.Owner)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "l1", cart.Items[0].LineID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("99.98").Equal(cart.Total()))
}

func TestUpsertLine_SameItem_IncrementsQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))
	require.NoError(t, repo.UpsertLine(ctx, anon, line("l2", "kit-1", "49.99", 3)))

	cart, err := repo.GetCart(ctx, anon)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "l1", cart.Items[0].LineID)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestUpsertLine_DifferentItems(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))
	require.NoError(t, repo.UpsertLine(ctx, anon, line("l2", "kit-2", "89.99", 1)))

	cart, err := repo.GetCart(ctx, anon)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.True(t, decimal.RequireFromString("189.97").Equal(cart.Total()))
}

func TestUpdateLineQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))
	require.NoError(t, repo.UpdateLineQuantity(ctx, anon, "l1", 7))

	cart, err := repo.GetCart(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, 7, cart.Items[0].Quantity)
}

func TestUpdateLineQuantity_LineNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))

	err := repo.UpdateLineQuantity(ctx, anon, "missing", 3)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestRemoveLine(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))
	require.NoError(t, repo.UpsertLine(ctx, anon, line("l2", "kit-2", "89.99", 1)))

	require.NoError(t, repo.RemoveLine(ctx, anon, "l1"))
	// removing again leaves the cart untouched
	require.NoError(t, repo.RemoveLine(ctx, anon, "l1"))

	cart, err := repo.GetCart(ctx, anon)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "kit-2", cart.Items[0].CatalogItemID)
}

func TestRemoveLine_CartNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.RemoveLine(context.Background(), anon, "l1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestDeleteCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, acct, line("l1", "kit-1", "49.99", 1)))
	require.NoError(t, repo.DeleteCart(ctx, acct))

	_, err := repo.GetCart(ctx, acct)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, repo.DeleteCart(ctx, acct), ErrCartNotFound)
}

func TestDeleteCartUpdatedBefore(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, acct, line("l1", "kit-1", "49.99", 1)))
	cutoff := time.Now().Add(-time.Minute)

	// the cart was written after the cutoff and survives
	assert.ErrorIs(t, repo.DeleteCartUpdatedBefore(ctx, acct, cutoff), ErrCartNotFound)
	cart, err := repo.GetCart(ctx, acct)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	require.NoError(t, repo.DeleteCartUpdatedBefore(ctx, acct, time.Now().Add(time.Second)))
	_, err = repo.GetCart(ctx, acct)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestTransferCart_NoSource(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, repo.TransferCart(context.Background(), anon, acct))
}

func TestTransferCart_RekeysWhenTargetMissing(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, anon, line("l1", "kit-1", "49.99", 2)))
	require.NoError(t, repo.TransferCart(ctx, anon, acct))

	_, err := repo.GetCart(ctx, anon)
	assert.ErrorIs(t, err, ErrCartNotFound)

	cart, err := repo.GetCart(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, acct, cart.Owner)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestTransferCart_MergesIntoExistingCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLine(ctx, acct, line("a1", "kit-1", "49.99", 1)))
	require.NoError(t, repo.UpsertLine(ctx, anon, line("s1", "kit-1", "45.00", 2)))
	require.NoError(t, repo.UpsertLine(ctx, anon, line("s2", "kit-4", "69.99", 1)))

	require.NoError(t, repo.TransferCart(ctx, anon, acct))

	_, err := repo.GetCart(ctx, anon)
	assert.ErrorIs(t, err, ErrCartNotFound)

	cart, err := repo.GetCart(ctx, acct)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	kit1, ok := cart.LineFor("kit-1")
	require.True(t, ok)
	assert.Equal(t, "a1", kit1.LineID)
	assert.Equal(t, 3, kit1.Quantity)
	assert.True(t, decimal.RequireFromString("49.99").Equal(kit1.UnitPrice))

	kit4, ok := cart.LineFor("kit-4")
	require.True(t, ok)
	assert.Equal(t, 1, kit4.Quantity)
}
