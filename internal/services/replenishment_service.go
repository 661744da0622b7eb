package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"logistics-service/internal/events"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

// ReplenishmentService turns under-threshold products into replenishment
// orders and walks them through confirmation.
type ReplenishmentService struct {
	repo      repository.StockRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Logger
}

func NewReplenishmentService(repo repository.StockRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *ReplenishmentService {
	return &ReplenishmentService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ListCandidates returns the products at or below their threshold, ordered
// by product id.
func (s *ReplenishmentService) ListCandidates(ctx context.Context, tenantID string) ([]models.ProductStock, error) {
	products, err := s.repo.ListUnderThreshold(ctx, tenantID)
	if err != nil {
		return nil, WrapError(KindInternal, err, "failed to list restock candidates")
	}
	return products, nil
}

// EstimateCost returns the projected restock cost for one product
func (s *ReplenishmentService) EstimateCost(ctx context.Context, tenantID string, id uuid.UUID) (decimal.Decimal, error) {
	product, err := s.repo.GetProduct(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, NewError(KindNotFound, "product %s not found", id)
		}
		return decimal.Zero, WrapError(KindInternal, err, "failed to load product")
	}
	return product.EstimatedCost(), nil
}

// EstimateTotalCost sums the projected restock cost over a product selection.
// Any unknown product id fails the whole estimate.
func (s *ReplenishmentService) EstimateTotalCost(ctx context.Context, tenantID string, ids []uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range ids {
		cost, err := s.EstimateCost(ctx, tenantID, id)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

// CreateOrder submits a selection of products as one replenishment order.
// Every selected product must currently need restocking and be ON_HOLD;
// otherwise nothing is mutated. On success all selected products flip to
// ORDERED and the order captures quantity and cost per item.
func (s *ReplenishmentService) CreateOrder(ctx context.Context, tenantID string, req *models.CreateReplenishmentOrderRequest, actorID string) (*models.ReplenishmentOrder, error) {
	ids := dedupeIDs(req.ProductIDs)
	if len(ids) == 0 {
		return nil, NewError(KindValidation, "no products selected")
	}

	var order *models.ReplenishmentOrder
	err := s.repo.WithTransaction(ctx, func(txRepo repository.StockRepositoryInterface) error {
		products, err := txRepo.GetProductsForUpdate(ctx, tenantID, ids)
		if err != nil {
			return WrapError(KindInternal, err, "failed to lock products")
		}
		if len(products) != len(ids) {
			return NewError(KindNotFound, "selection contains unknown products")
		}

		for i := range products {
			p := &products[i]
			if !p.NeedsRestock() {
				return NewError(KindInvalidSelection, "product %s (%s) is above its restock threshold", p.SKU, p.ID)
			}
			if p.ReplenishmentStatus != models.ReplenishmentStatusOnHold {
				return NewError(KindInvalidSelection, "product %s (%s) is already on an order", p.SKU, p.ID)
			}
		}

		newOrder := &models.ReplenishmentOrder{
			Status:    models.ReplenishmentOrderStatusOpen,
			TotalCost: decimal.Zero,
		}
		if actorID != "" {
			newOrder.CreatedBy = &actorID
		}

		for i := range products {
			p := &products[i]
			subtotal := p.EstimatedCost()
			newOrder.Items = append(newOrder.Items, models.ReplenishmentOrderItem{
				ProductID: p.ID,
				Quantity:  p.SuggestedQuantity,
				UnitCost:  p.UnitCost,
				Subtotal:  subtotal,
			})
			newOrder.TotalCost = newOrder.TotalCost.Add(subtotal)
		}

		if err := txRepo.CreateOrder(ctx, tenantID, newOrder); err != nil {
			return WrapError(KindInternal, err, "failed to create replenishment order")
		}

		for i := range products {
			p := &products[i]
			p.ReplenishmentStatus = models.ReplenishmentStatusOrdered
			if err := txRepo.SaveProduct(ctx, tenantID, p); err != nil {
				return WrapError(KindInternal, err, "failed to mark product as ordered")
			}
		}

		order = newOrder
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, tenantID, order.ID.String(), order.OrderNumber, order.TotalCost.String(), actorID); err != nil {
			s.logger.WithError(err).WithField("orderId", order.ID).Warn("Failed to publish order created event")
		}
	}

	return order, nil
}

// ConfirmRestock records delivery for one ORDERED product: stock goes up,
// the product returns to ON_HOLD, and the open order item is marked
// confirmed. When the last item on an order confirms, the order completes.
// Quantity defaults to the quantity captured on the order item.
func (s *ReplenishmentService) ConfirmRestock(ctx context.Context, tenantID string, productID uuid.UUID, req *models.ConfirmRestockRequest) (*models.ProductStock, error) {
	if req != nil && req.Quantity != nil && *req.Quantity <= 0 {
		return nil, NewError(KindValidation, "quantity must be positive")
	}

	var updated *models.ProductStock
	var previousStock int
	var orderID uuid.UUID
	err := s.repo.WithTransaction(ctx, func(txRepo repository.StockRepositoryInterface) error {
		product, err := txRepo.GetProductForUpdate(ctx, tenantID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(KindNotFound, "product %s not found", productID)
			}
			return WrapError(KindInternal, err, "failed to lock product")
		}

		if product.ReplenishmentStatus != models.ReplenishmentStatusOrdered {
			return NewError(KindNotOrdered, "product %s (%s) has no pending replenishment order", product.SKU, product.ID)
		}

		item, err := txRepo.GetOpenOrderItem(ctx, tenantID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(KindNotOrdered, "product %s (%s) has no pending replenishment order", product.SKU, product.ID)
			}
			return WrapError(KindInternal, err, "failed to load order item")
		}

		quantity := item.Quantity
		if req != nil && req.Quantity != nil {
			quantity = *req.Quantity
		}

		previousStock = product.Stock
		product.Stock += quantity
		product.ReplenishmentStatus = models.ReplenishmentStatusOnHold
		product.LastRestockedAt = restockTimestamp()
		if err := txRepo.SaveProduct(ctx, tenantID, product); err != nil {
			return WrapError(KindInternal, err, "failed to save restocked product")
		}

		movement := &models.StockMovement{
			ProductID:     product.ID,
			Delta:         quantity,
			Reason:        models.MovementReasonPurchase,
			PreviousStock: previousStock,
			NewStock:      product.Stock,
		}
		if err := txRepo.CreateMovement(ctx, tenantID, movement); err != nil {
			return WrapError(KindInternal, err, "failed to record restock movement")
		}

		item.ConfirmedAt = restockTimestamp()
		if err := txRepo.SaveOrderItem(ctx, tenantID, item); err != nil {
			return WrapError(KindInternal, err, "failed to confirm order item")
		}

		remaining, err := txRepo.CountUnconfirmedItems(ctx, tenantID, item.OrderID)
		if err != nil {
			return WrapError(KindInternal, err, "failed to count pending items")
		}
		if remaining == 0 {
			order, err := txRepo.GetOrderForUpdate(ctx, tenantID, item.OrderID)
			if err != nil {
				return WrapError(KindInternal, err, "failed to lock order")
			}
			order.Status = models.ReplenishmentOrderStatusCompleted
			order.CompletedAt = restockTimestamp()
			if err := txRepo.SaveOrder(ctx, tenantID, order); err != nil {
				return WrapError(KindInternal, err, "failed to complete order")
			}
		}

		orderID = item.OrderID
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRestockConfirmed(ctx, tenantID, updated.ID.String(), updated.SKU, orderID.String(), previousStock, updated.Stock); err != nil {
			s.logger.WithError(err).WithField("productId", updated.ID).Warn("Failed to publish restock confirmed event")
		}
	}

	return updated, nil
}

// CancelOrder cancels an OPEN order. Products on unconfirmed items return to
// ON_HOLD; stock already confirmed stays untouched.
func (s *ReplenishmentService) CancelOrder(ctx context.Context, tenantID string, orderID uuid.UUID, actorID string) (*models.ReplenishmentOrder, error) {
	var cancelled *models.ReplenishmentOrder
	err := s.repo.WithTransaction(ctx, func(txRepo repository.StockRepositoryInterface) error {
		order, err := txRepo.GetOrderForUpdate(ctx, tenantID, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(KindNotFound, "order %s not found", orderID)
			}
			return WrapError(KindInternal, err, "failed to lock order")
		}

		if order.Status != models.ReplenishmentOrderStatusOpen {
			return NewError(KindInvalidStateTransition, "order %s is %s and cannot be cancelled", order.OrderNumber, order.Status)
		}

		for i := range order.Items {
			item := &order.Items[i]
			if item.ConfirmedAt != nil {
				continue
			}
			product, err := txRepo.GetProductForUpdate(ctx, tenantID, item.ProductID)
			if err != nil {
				return WrapError(KindInternal, err, "failed to lock product for cancellation")
			}
			product.ReplenishmentStatus = models.ReplenishmentStatusOnHold
			if err := txRepo.SaveProduct(ctx, tenantID, product); err != nil {
				return WrapError(KindInternal, err, "failed to release product")
			}
		}

		order.Status = models.ReplenishmentOrderStatusCancelled
		order.CancelledAt = restockTimestamp()
		if err := txRepo.SaveOrder(ctx, tenantID, order); err != nil {
			return WrapError(KindInternal, err, "failed to cancel order")
		}

		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCancelled(ctx, tenantID, cancelled.ID.String(), cancelled.OrderNumber, actorID); err != nil {
			s.logger.WithError(err).WithField("orderId", cancelled.ID).Warn("Failed to publish order cancelled event")
		}
	}

	return cancelled, nil
}

// GetOrder returns an order with its items
func (s *ReplenishmentService) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReplenishmentOrder, error) {
	order, err := s.repo.GetOrder(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "order %s not found", id)
		}
		return nil, WrapError(KindInternal, err, "failed to load order")
	}
	return order, nil
}

// ListOrders returns orders, optionally filtered by status
func (s *ReplenishmentService) ListOrders(ctx context.Context, tenantID string, status *models.ReplenishmentOrderStatus, page, limit int) ([]models.ReplenishmentOrder, int64, error) {
	orders, total, err := s.repo.ListOrders(ctx, tenantID, status, page, limit)
	if err != nil {
		return nil, 0, WrapError(KindInternal, err, "failed to list orders")
	}
	return orders, total, nil
}

// dedupeIDs removes duplicate product ids while preserving order
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
