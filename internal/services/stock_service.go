package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"logistics-service/internal/events"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

// StockService handles the stock ledger: quantities, adjustments and the
// per-product replenishment lifecycle.
type StockService struct {
	repo      repository.StockRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Logger
}

// NewStockService creates a new StockService. The publisher may be nil when
// NATS is not configured; events are then skipped.
func NewStockService(repo repository.StockRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *StockService {
	return &StockService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// GetProduct returns one ledger record
func (s *StockService) GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProductStock, error) {
	product, err := s.repo.GetProduct(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "product %s not found", id)
		}
		return nil, WrapError(KindInternal, err, "failed to load product")
	}
	return product, nil
}

// ListProducts returns the ledger with pagination
func (s *StockService) ListProducts(ctx context.Context, tenantID string, page, limit int) ([]models.ProductStock, int64, error) {
	products, total, err := s.repo.ListProducts(ctx, tenantID, page, limit)
	if err != nil {
		return nil, 0, WrapError(KindInternal, err, "failed to list products")
	}
	return products, total, nil
}

// UpsertProduct creates or updates a ledger record keyed by SKU
func (s *StockService) UpsertProduct(ctx context.Context, tenantID string, req *models.UpsertProductStockRequest) (*models.ProductStock, error) {
	if req.UnitCost.IsNegative() {
		return nil, NewError(KindValidation, "unit cost cannot be negative")
	}

	product := &models.ProductStock{
		SKU:                 req.SKU,
		Name:                req.Name,
		Stock:               req.Stock,
		MinThreshold:        req.MinThreshold,
		SuggestedQuantity:   req.SuggestedQuantity,
		UnitCost:            req.UnitCost,
		ReplenishmentStatus: models.ReplenishmentStatusOnHold,
	}
	if err := s.repo.UpsertProduct(ctx, tenantID, product); err != nil {
		return nil, WrapError(KindInternal, err, "failed to upsert product")
	}
	return product, nil
}

// NeedsRestock reports whether a product sits at or below its threshold
func (s *StockService) NeedsRestock(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	product, err := s.GetProduct(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	return product.NeedsRestock(), nil
}

// AdjustStock applies a signed delta to a product's stock inside a
// transaction. Stock never goes below zero; the delta is clamped and the
// movement records the stock actually applied. Emits a low-stock event when
// the product lands at or below its threshold.
func (s *StockService) AdjustStock(ctx context.Context, tenantID string, id uuid.UUID, req *models.AdjustStockRequest, actorID string) (*models.ProductStock, error) {
	if req.Delta == 0 {
		return nil, NewError(KindValidation, "delta cannot be zero")
	}
	if !models.ValidMovementReason(req.Reason) {
		return nil, NewError(KindValidation, "unknown movement reason %q", req.Reason)
	}

	var updated *models.ProductStock
	var previousStock int
	err := s.repo.WithTransaction(ctx, func(txRepo repository.StockRepositoryInterface) error {
		product, err := txRepo.GetProductForUpdate(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(KindNotFound, "product %s not found", id)
			}
			return WrapError(KindInternal, err, "failed to lock product")
		}

		previous := product.Stock
		previousStock = previous
		next := previous + req.Delta
		if next < 0 {
			next = 0
		}
		product.Stock = next

		if err := txRepo.SaveProduct(ctx, tenantID, product); err != nil {
			return WrapError(KindInternal, err, "failed to save stock")
		}

		movement := &models.StockMovement{
			ProductID:     product.ID,
			Delta:         next - previous,
			Reason:        req.Reason,
			PreviousStock: previous,
			NewStock:      next,
			Notes:         req.Notes,
		}
		if actorID != "" {
			movement.AdjustedBy = &actorID
		}
		if err := txRepo.CreateMovement(ctx, tenantID, movement); err != nil {
			return WrapError(KindInternal, err, "failed to record movement")
		}

		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAdjustment(ctx, tenantID, updated, previousStock, actorID, string(req.Reason))
	return updated, nil
}

func (s *StockService) publishAdjustment(ctx context.Context, tenantID string, product *models.ProductStock, previousStock int, actorID, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStockAdjusted(ctx, tenantID, product.ID.String(), product.SKU, product.Name, previousStock, product.Stock, reason, actorID); err != nil {
		s.logger.WithError(err).WithField("productId", product.ID).Warn("Failed to publish stock adjustment event")
	}
	if product.NeedsRestock() {
		if err := s.publisher.PublishLowStock(ctx, tenantID, product.ID.String(), product.SKU, product.Name, product.Stock, product.MinThreshold); err != nil {
			s.logger.WithError(err).WithField("productId", product.ID).Warn("Failed to publish low stock event")
		}
	}
}

// SetReplenishmentStatus switches a product between ON_HOLD and ORDERED.
// The only legal edges are ON_HOLD to ORDERED and back; anything else,
// including a same-state call, is an invalid transition.
func (s *StockService) SetReplenishmentStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.ReplenishmentStatus) (*models.ProductStock, error) {
	if status != models.ReplenishmentStatusOnHold && status != models.ReplenishmentStatusOrdered {
		return nil, NewError(KindInvalidStateTransition, "unknown replenishment status %q", status)
	}

	var updated *models.ProductStock
	err := s.repo.WithTransaction(ctx, func(txRepo repository.StockRepositoryInterface) error {
		product, err := txRepo.GetProductForUpdate(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(KindNotFound, "product %s not found", id)
			}
			return WrapError(KindInternal, err, "failed to lock product")
		}

		if product.ReplenishmentStatus == status {
			return NewError(KindInvalidStateTransition, "product %s (%s) is already %s", product.SKU, product.ID, status)
		}

		product.ReplenishmentStatus = status
		if err := txRepo.SaveProduct(ctx, tenantID, product); err != nil {
			return WrapError(KindInternal, err, "failed to save replenishment status")
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListMovements returns the adjustment history for a product
func (s *StockService) ListMovements(ctx context.Context, tenantID string, productID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	if _, err := s.GetProduct(ctx, tenantID, productID); err != nil {
		return nil, 0, err
	}
	movements, total, err := s.repo.ListMovements(ctx, tenantID, productID, page, limit)
	if err != nil {
		return nil, 0, WrapError(KindInternal, err, "failed to list movements")
	}
	return movements, total, nil
}

// restockTimestamp is split out so confirmations share one clock source
func restockTimestamp() *time.Time {
	now := time.Now().UTC()
	return &now
}
