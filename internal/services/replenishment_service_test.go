package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

func newTestReplenishmentService(repo repository.StockRepositoryInterface) *ReplenishmentService {
	return NewReplenishmentService(repo, nil, logrus.New())
}

// ===========================================
// Candidate and Estimate Tests
// ===========================================

func TestListCandidates(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	low := testProduct("MUG-CLASSIC", 3, 10, 40, 220)
	mockRepo.On("ListUnderThreshold", ctx, tenantID).Return([]models.ProductStock{*low}, nil)

	candidates, err := service.ListCandidates(ctx, tenantID)

	assert.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, "MUG-CLASSIC", candidates[0].SKU)
	mockRepo.AssertExpectations(t)
}

func TestEstimateCost_UsesSuggestedQuantity(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	product := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	mockRepo.On("GetProduct", ctx, tenantID, product.ID).Return(product, nil)

	cost, err := service.EstimateCost(ctx, tenantID, product.ID)

	assert.NoError(t, err)
	assert.True(t, cost.Equal(decimal.NewFromInt(200)), "20 units at 10 each")
	mockRepo.AssertExpectations(t)
}

func TestEstimateTotalCost_UnknownProductFails(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	known := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	unknown := uuid.New()
	mockRepo.On("GetProduct", ctx, tenantID, known.ID).Return(known, nil)
	mockRepo.On("GetProduct", ctx, tenantID, unknown).Return(nil, gorm.ErrRecordNotFound)

	_, err := service.EstimateTotalCost(ctx, tenantID, []uuid.UUID{known.ID, unknown})

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// ===========================================
// Order Creation Tests
// ===========================================

func TestCreateOrder_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	a := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	b := testProduct("MUG-CLASSIC", 1, 10, 40, 220)
	products := []models.ProductStock{*a, *b}

	mockRepo.On("GetProductsForUpdate", ctx, tenantID, mock.Anything).Return(products, nil)
	mockRepo.On("CreateOrder", ctx, tenantID, mock.AnythingOfType("*models.ReplenishmentOrder")).Return(nil)
	mockRepo.On("SaveProduct", ctx, tenantID, mock.AnythingOfType("*models.ProductStock")).Return(nil)

	order, err := service.CreateOrder(ctx, tenantID, &models.CreateReplenishmentOrderRequest{
		ProductIDs: []uuid.UUID{a.ID, b.ID},
	}, "user-1")

	assert.NoError(t, err)
	assert.Equal(t, models.ReplenishmentOrderStatusOpen, order.Status)
	assert.Len(t, order.Items, 2)
	// 20*10 + 40*220 = 9000
	assert.True(t, order.TotalCost.Equal(decimal.NewFromInt(9000)))
	// Items capture quantity and unit cost at submission time
	assert.Equal(t, 20, order.Items[0].Quantity)
	assert.True(t, order.Items[0].Subtotal.Equal(decimal.NewFromInt(200)))
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNumberOfCalls(t, "SaveProduct", 2)
}

func TestCreateOrder_MixedSelectionFailsAtomically(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	eligible := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	alreadyOrdered := testProduct("MUG-CLASSIC", 1, 10, 40, 220)
	alreadyOrdered.ReplenishmentStatus = models.ReplenishmentStatusOrdered

	mockRepo.On("GetProductsForUpdate", ctx, tenantID, mock.Anything).
		Return([]models.ProductStock{*eligible, *alreadyOrdered}, nil)

	_, err := service.CreateOrder(ctx, tenantID, &models.CreateReplenishmentOrderRequest{
		ProductIDs: []uuid.UUID{eligible.ID, alreadyOrdered.ID},
	}, "user-1")

	assert.Error(t, err)
	assert.Equal(t, KindInvalidSelection, KindOf(err))
	// Nothing is mutated when any selected product is ineligible
	mockRepo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_AboveThresholdRejected(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	healthy := testProduct("TEE-BLK-M", 50, 5, 20, 10)
	mockRepo.On("GetProductsForUpdate", ctx, tenantID, mock.Anything).
		Return([]models.ProductStock{*healthy}, nil)

	_, err := service.CreateOrder(ctx, tenantID, &models.CreateReplenishmentOrderRequest{
		ProductIDs: []uuid.UUID{healthy.ID},
	}, "")

	assert.Error(t, err)
	assert.Equal(t, KindInvalidSelection, KindOf(err))
	mockRepo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	// Lock query returns fewer rows than requested
	mockRepo.On("GetProductsForUpdate", ctx, tenantID, mock.Anything).
		Return([]models.ProductStock{}, nil)

	_, err := service.CreateOrder(ctx, tenantID, &models.CreateReplenishmentOrderRequest{
		ProductIDs: []uuid.UUID{uuid.New()},
	}, "")

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// ===========================================
// Restock Confirmation Tests
// ===========================================

func TestConfirmRestock_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	product := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	product.ReplenishmentStatus = models.ReplenishmentStatusOrdered

	orderID := uuid.New()
	item := &models.ReplenishmentOrderItem{
		ID:        uuid.New(),
		TenantID:  tenantID,
		OrderID:   orderID,
		ProductID: product.ID,
		Quantity:  20,
		UnitCost:  decimal.NewFromInt(10),
		Subtotal:  decimal.NewFromInt(200),
	}
	order := &models.ReplenishmentOrder{
		ID:       orderID,
		TenantID: tenantID,
		Status:   models.ReplenishmentOrderStatusOpen,
		Items:    []models.ReplenishmentOrderItem{*item},
	}

	mockRepo.On("GetProductForUpdate", ctx, tenantID, product.ID).Return(product, nil)
	mockRepo.On("GetOpenOrderItem", ctx, tenantID, product.ID).Return(item, nil)
	mockRepo.On("SaveProduct", ctx, tenantID, product).Return(nil)
	mockRepo.On("CreateMovement", ctx, tenantID, mock.MatchedBy(func(mv *models.StockMovement) bool {
		return mv.Reason == models.MovementReasonPurchase && mv.Delta == 20
	})).Return(nil)
	mockRepo.On("SaveOrderItem", ctx, tenantID, item).Return(nil)
	mockRepo.On("CountUnconfirmedItems", ctx, tenantID, orderID).Return(int64(0), nil)
	mockRepo.On("GetOrderForUpdate", ctx, tenantID, orderID).Return(order, nil)
	mockRepo.On("SaveOrder", ctx, tenantID, order).Return(nil)

	updated, err := service.ConfirmRestock(ctx, tenantID, product.ID, &models.ConfirmRestockRequest{})

	assert.NoError(t, err)
	assert.Equal(t, 23, updated.Stock, "quantity defaults to the order item quantity")
	assert.Equal(t, models.ReplenishmentStatusOnHold, updated.ReplenishmentStatus)
	assert.NotNil(t, updated.LastRestockedAt)
	assert.NotNil(t, item.ConfirmedAt)
	assert.Equal(t, models.ReplenishmentOrderStatusCompleted, order.Status)
	mockRepo.AssertExpectations(t)
}

func TestConfirmRestock_ExplicitQuantity(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	product := testProduct("TEE-BLK-M", 0, 5, 20, 10)
	product.ReplenishmentStatus = models.ReplenishmentStatusOrdered

	orderID := uuid.New()
	item := &models.ReplenishmentOrderItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: product.ID,
		Quantity:  20,
	}

	mockRepo.On("GetProductForUpdate", ctx, tenantID, product.ID).Return(product, nil)
	mockRepo.On("GetOpenOrderItem", ctx, tenantID, product.ID).Return(item, nil)
	mockRepo.On("SaveProduct", ctx, tenantID, product).Return(nil)
	mockRepo.On("CreateMovement", ctx, tenantID, mock.Anything).Return(nil)
	mockRepo.On("SaveOrderItem", ctx, tenantID, item).Return(nil)
	// A second item is still pending, so the order stays open
	mockRepo.On("CountUnconfirmedItems", ctx, tenantID, orderID).Return(int64(1), nil)

	quantity := 15
	updated, err := service.ConfirmRestock(ctx, tenantID, product.ID, &models.ConfirmRestockRequest{Quantity: &quantity})

	assert.NoError(t, err)
	assert.Equal(t, 15, updated.Stock, "partial delivery overrides the planned quantity")
	mockRepo.AssertNotCalled(t, "SaveOrder", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestConfirmRestock_NotOrdered(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	product := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	mockRepo.On("GetProductForUpdate", ctx, tenantID, product.ID).Return(product, nil)

	_, err := service.ConfirmRestock(ctx, tenantID, product.ID, nil)

	assert.Error(t, err)
	assert.Equal(t, KindNotOrdered, KindOf(err))
	assert.Equal(t, 3, product.Stock, "stock is untouched")
	mockRepo.AssertNotCalled(t, "SaveProduct", mock.Anything, mock.Anything, mock.Anything)
}

// ===========================================
// Cancellation Tests
// ===========================================

func TestCancelOrder_ReleasesUnconfirmedProducts(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	product := testProduct("TEE-BLK-M", 3, 5, 20, 10)
	product.ReplenishmentStatus = models.ReplenishmentStatusOrdered

	orderID := uuid.New()
	order := &models.ReplenishmentOrder{
		ID:          orderID,
		TenantID:    tenantID,
		OrderNumber: "RO-202608-000007",
		Status:      models.ReplenishmentOrderStatusOpen,
		Items: []models.ReplenishmentOrderItem{
			{ID: uuid.New(), OrderID: orderID, ProductID: product.ID, Quantity: 20},
		},
	}

	mockRepo.On("GetOrderForUpdate", ctx, tenantID, orderID).Return(order, nil)
	mockRepo.On("GetProductForUpdate", ctx, tenantID, product.ID).Return(product, nil)
	mockRepo.On("SaveProduct", ctx, tenantID, product).Return(nil)
	mockRepo.On("SaveOrder", ctx, tenantID, order).Return(nil)

	cancelled, err := service.CancelOrder(ctx, tenantID, orderID, "user-1")

	assert.NoError(t, err)
	assert.Equal(t, models.ReplenishmentOrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, models.ReplenishmentStatusOnHold, product.ReplenishmentStatus)
	assert.Equal(t, 3, product.Stock, "cancellation never changes stock")
	mockRepo.AssertExpectations(t)
}

func TestCancelOrder_CompletedOrderRejected(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockStockRepository)
	service := newTestReplenishmentService(mockRepo)

	orderID := uuid.New()
	order := &models.ReplenishmentOrder{
		ID:     orderID,
		Status: models.ReplenishmentOrderStatusCompleted,
	}
	mockRepo.On("GetOrderForUpdate", ctx, tenantID, orderID).Return(order, nil)

	_, err := service.CancelOrder(ctx, tenantID, orderID, "")

	assert.Error(t, err)
	assert.Equal(t, KindInvalidStateTransition, KindOf(err))
	mockRepo.AssertNotCalled(t, "SaveOrder", mock.Anything, mock.Anything, mock.Anything)
}
