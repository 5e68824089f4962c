package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inventory-engine/internal/models"
)

func newLedgerWithMocks(lowStockThreshold int) (*StockLedger, *MockStockRepository, *fakeOutbox) {
	guard := &stubGuard{}
	stocks := &MockStockRepository{}
	outbox := &fakeOutbox{}
	ledger := NewStockLedger(guard, stocks, outbox, newFakeCache(), lowStockThreshold)
	return ledger, stocks, outbox
}

func TestGetOnHand(t *testing.T) {
	ledger, stocks, _ := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 42}, nil)

	onHand, err := ledger.GetOnHand(context.Background(), "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 42, onHand)
}

func TestGetOnHand_MissingProduct(t *testing.T) {
	ledger, stocks, _ := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-404").Return(nil, nil)

	_, err := ledger.GetOnHand(context.Background(), "PROD-404")
	assert.True(t, models.IsNotFound(err))
}

func TestRestock_FirstStockingEmitsRestockedEvent(t *testing.T) {
	ledger, stocks, outbox := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").Return(nil, nil)
	stocks.On("UpsertAddStock", mock.Anything, mock.Anything, "PROD-001", 10).
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 10}, nil)

	stock, err := ledger.Restock(context.Background(), "PROD-001", 10)

	require.NoError(t, err)
	assert.Equal(t, 10, stock.OnHand)
	assert.Equal(t, []string{models.EventTypeStockRestocked}, outbox.eventTypes())
}

func TestRestock_TopUpDoesNotEmitRestockedEvent(t *testing.T) {
	ledger, stocks, outbox := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 3}, nil)
	stocks.On("UpsertAddStock", mock.Anything, mock.Anything, "PROD-001", 7).
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 10}, nil)

	stock, err := ledger.Restock(context.Background(), "PROD-001", 7)

	require.NoError(t, err)
	assert.Equal(t, 10, stock.OnHand)
	assert.Empty(t, outbox.eventTypes())
}

func TestRestock_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, _, _ := newLedgerWithMocks(5)

	_, err := ledger.Restock(context.Background(), "PROD-001", 0)
	assert.Error(t, err)

	_, err = ledger.Restock(context.Background(), "PROD-001", -5)
	assert.Error(t, err)
}

func TestDecrementTx_InsufficientStock(t *testing.T) {
	ledger, stocks, _ := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 2}, nil)

	_, err := ledger.DecrementTx(context.Background(), nil, "PROD-001", 3)

	require.Error(t, err)
	assert.True(t, models.IsInsufficientStock(err))
	stocks.AssertNotCalled(t, "UpdateOnHand", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecrementTx_DepletionEmitsDepletedEvent(t *testing.T) {
	ledger, stocks, outbox := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 3}, nil)
	stocks.On("UpdateOnHand", mock.Anything, mock.Anything, "PROD-001", 0).Return(nil)

	stock, err := ledger.DecrementTx(context.Background(), nil, "PROD-001", 3)

	require.NoError(t, err)
	assert.Equal(t, 0, stock.OnHand)
	assert.Equal(t, []string{models.EventTypeStockDepleted}, outbox.eventTypes())
}

func TestDecrementTx_CrossingThresholdEmitsLowEvent(t *testing.T) {
	ledger, stocks, outbox := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 8}, nil)
	stocks.On("UpdateOnHand", mock.Anything, mock.Anything, "PROD-001", 4).Return(nil)

	stock, err := ledger.DecrementTx(context.Background(), nil, "PROD-001", 4)

	require.NoError(t, err)
	assert.Equal(t, 4, stock.OnHand)
	assert.Equal(t, []string{models.EventTypeStockLow}, outbox.eventTypes())
}

func TestAdjust_NegativeDeltaObeysFloor(t *testing.T) {
	ledger, stocks, _ := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 2}, nil)

	_, err := ledger.Adjust(context.Background(), "PROD-001", -5)
	assert.True(t, models.IsInsufficientStock(err))
}

func TestAdjust_RejectsZeroDelta(t *testing.T) {
	ledger, _, _ := newLedgerWithMocks(5)

	_, err := ledger.Adjust(context.Background(), "PROD-001", 0)
	assert.Error(t, err)
}

func TestAdjust_PositiveDelta(t *testing.T) {
	ledger, stocks, _ := newLedgerWithMocks(5)

	stocks.On("GetStock", mock.Anything, mock.Anything, "PROD-001").
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 2}, nil)
	stocks.On("UpsertAddStock", mock.Anything, mock.Anything, "PROD-001", 3).
		Return(&models.ProductStock{ProductID: "PROD-001", OnHand: 5}, nil)

	stock, err := ledger.Adjust(context.Background(), "PROD-001", 3)

	require.NoError(t, err)
	assert.Equal(t, 5, stock.OnHand)
}
