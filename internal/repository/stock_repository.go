package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"logistics-service/internal/models"
)

// Cache TTL constants
const (
	ProductCacheTTL   = 5 * time.Minute // Single product lookups - changes on adjustments
	CandidateCacheTTL = 1 * time.Minute // Restock candidates - needs to be fresh
	cacheKeyPrefix    = "tesseract:logistics:"
)

// StockRepositoryInterface is the persistence contract for the stock ledger
// and replenishment orders. WithTransaction yields a repository bound to a
// single database transaction; row-locking reads are only meaningful inside
// one.
type StockRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(txRepo StockRepositoryInterface) error) error

	GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProductStock, error)
	GetProductForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProductStock, error)
	GetProductsForUpdate(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.ProductStock, error)
	ListProducts(ctx context.Context, tenantID string, page, limit int) ([]models.ProductStock, int64, error)
	ListUnderThreshold(ctx context.Context, tenantID string) ([]models.ProductStock, error)
	UpsertProduct(ctx context.Context, tenantID string, product *models.ProductStock) error
	SaveProduct(ctx context.Context, tenantID string, product *models.ProductStock) error

	CreateMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error
	ListMovements(ctx context.Context, tenantID string, productID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error)

	GenerateOrderNumber(ctx context.Context, tenantID string) (string, error)
	CreateOrder(ctx context.Context, tenantID string, order *models.ReplenishmentOrder) error
	GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReplenishmentOrder, error)
	GetOrderForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReplenishmentOrder, error)
	ListOrders(ctx context.Context, tenantID string, status *models.ReplenishmentOrderStatus, page, limit int) ([]models.ReplenishmentOrder, int64, error)
	SaveOrder(ctx context.Context, tenantID string, order *models.ReplenishmentOrder) error
	GetOpenOrderItem(ctx context.Context, tenantID string, productID uuid.UUID) (*models.ReplenishmentOrderItem, error)
	SaveOrderItem(ctx context.Context, tenantID string, item *models.ReplenishmentOrderItem) error
	CountUnconfirmedItems(ctx context.Context, tenantID string, orderID uuid.UUID) (int64, error)
}

// StockRepository is the gorm/Postgres implementation with optional Redis caching
type StockRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

var _ StockRepositoryInterface = (*StockRepository)(nil)

func NewStockRepository(db *gorm.DB, redisClient *redis.Client) *StockRepository {
	return &StockRepository{db: db, redis: redisClient}
}

// WithTransaction runs fn against a transaction-bound repository. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *StockRepository) WithTransaction(ctx context.Context, fn func(txRepo StockRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&StockRepository{db: tx, redis: r.redis})
	})
}

func productCacheKey(tenantID string, id uuid.UUID) string {
	return fmt.Sprintf("%sproduct:%s:%s", cacheKeyPrefix, tenantID, id.String())
}

func candidatesCacheKey(tenantID string) string {
	return fmt.Sprintf("%scandidates:%s", cacheKeyPrefix, tenantID)
}

// invalidateProductCaches drops the cached product and the candidates list
func (r *StockRepository) invalidateProductCaches(ctx context.Context, tenantID string, id uuid.UUID) {
	if r.redis == nil {
		return
	}
	r.redis.Del(ctx, productCacheKey(tenantID, id), candidatesCacheKey(tenantID))
}

// RedisHealth returns the health status of the Redis connection
func (r *StockRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

// ========== Product Stock Operations ==========

// GetProduct retrieves a product stock record with caching
func (r *StockRepository) GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProductStock, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, productCacheKey(tenantID, id)).Result()
		if err == nil {
			var product models.ProductStock
			if err := json.Unmarshal([]byte(val), &product); err == nil {
				return &product, nil
			}
		}
	}

	var product models.ProductStock
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(product); marshalErr == nil {
			r.redis.Set(ctx, productCacheKey(tenantID, id), data, ProductCacheTTL)
		}
	}

	return &product, nil
}

// GetProductForUpdate retrieves a product with a row lock. Must run inside a
// transaction-bound repository.
func (r *StockRepository) GetProductForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProductStock, error) {
	var product models.ProductStock
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsForUpdate locks multiple products in product-id order so that
// overlapping batch operations cannot deadlock each other.
func (r *StockRepository) GetProductsForUpdate(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.ProductStock, error) {
	var products []models.ProductStock
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

// ListProducts retrieves all product stock records with pagination
func (r *StockRepository) ListProducts(ctx context.Context, tenantID string, page, limit int) ([]models.ProductStock, int64, error) {
	var products []models.ProductStock
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if err := query.Model(&models.ProductStock{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("id ASC").Find(&products).Error
	return products, total, err
}

// ListUnderThreshold returns products at or below their minimum threshold,
// ordered by product id for stable output, with short-TTL caching.
func (r *StockRepository) ListUnderThreshold(ctx context.Context, tenantID string) ([]models.ProductStock, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, candidatesCacheKey(tenantID)).Result()
		if err == nil {
			var products []models.ProductStock
			if err := json.Unmarshal([]byte(val), &products); err == nil {
				return products, nil
			}
		}
	}

	var products []models.ProductStock
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND stock <= min_threshold", tenantID).
		Order("id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(products); marshalErr == nil {
			r.redis.Set(ctx, candidatesCacheKey(tenantID), data, CandidateCacheTTL)
		}
	}

	return products, nil
}

// UpsertProduct creates or updates a product stock record by tenant+SKU
func (r *StockRepository) UpsertProduct(ctx context.Context, tenantID string, product *models.ProductStock) error {
	product.TenantID = tenantID
	product.UpdatedAt = time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = product.UpdatedAt
	}
	if product.ReplenishmentStatus == "" {
		product.ReplenishmentStatus = models.ReplenishmentStatusOnHold
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"stock",
			"min_threshold",
			"suggested_quantity",
			"unit_cost",
			"updated_at",
		}),
	}).Create(product).Error
	if err != nil {
		return err
	}

	r.invalidateProductCaches(ctx, tenantID, product.ID)
	return nil
}

// SaveProduct persists a mutated product record and invalidates caches
func (r *StockRepository) SaveProduct(ctx context.Context, tenantID string, product *models.ProductStock) error {
	product.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("tenant_id = ? AND id = ?", tenantID, product.ID).
		Updates(map[string]interface{}{
			"stock":                product.Stock,
			"min_threshold":        product.MinThreshold,
			"suggested_quantity":   product.SuggestedQuantity,
			"unit_cost":            product.UnitCost,
			"replenishment_status": product.ReplenishmentStatus,
			"last_restocked_at":    product.LastRestockedAt,
			"updated_at":           product.UpdatedAt,
		}).Error
	if err != nil {
		return err
	}

	r.invalidateProductCaches(ctx, tenantID, product.ID)
	return nil
}

// ========== Stock Movement Operations ==========

// CreateMovement appends an audit record for a stock adjustment
func (r *StockRepository) CreateMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error {
	movement.TenantID = tenantID
	movement.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(movement).Error
}

// ListMovements retrieves the adjustment history for a product
func (r *StockRepository) ListMovements(ctx context.Context, tenantID string, productID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	var movements []models.StockMovement
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND product_id = ?", tenantID, productID)

	if err := query.Model(&models.StockMovement{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&movements).Error
	return movements, total, err
}

// ========== Replenishment Order Operations ==========

// GenerateOrderNumber generates a unique replenishment order number
func (r *StockRepository) GenerateOrderNumber(ctx context.Context, tenantID string) (string, error) {
	var count int64
	r.db.WithContext(ctx).Model(&models.ReplenishmentOrder{}).Where("tenant_id = ?", tenantID).Count(&count)
	return fmt.Sprintf("RO-%s-%06d", time.Now().Format("200601"), count+1), nil
}

// CreateOrder creates a replenishment order with its items
func (r *StockRepository) CreateOrder(ctx context.Context, tenantID string, order *models.ReplenishmentOrder) error {
	if order.OrderNumber == "" {
		orderNumber, err := r.GenerateOrderNumber(ctx, tenantID)
		if err != nil {
			return err
		}
		order.OrderNumber = orderNumber
	}

	order.TenantID = tenantID
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	for i := range order.Items {
		order.Items[i].TenantID = tenantID
		order.Items[i].CreatedAt = time.Now()
		order.Items[i].UpdatedAt = time.Now()
	}

	return r.db.WithContext(ctx).Create(order).Error
}

// GetOrder retrieves an order with its items
func (r *StockRepository) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReplenishmentOrder, error) {
	var order models.ReplenishmentOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Preload("Items").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate retrieves an order with a row lock
func (r *StockRepository) GetOrderForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReplenishmentOrder, error) {
	var order models.ReplenishmentOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Preload("Items").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves replenishment orders with pagination
func (r *StockRepository) ListOrders(ctx context.Context, tenantID string, status *models.ReplenishmentOrderStatus, page, limit int) ([]models.ReplenishmentOrder, int64, error) {
	var orders []models.ReplenishmentOrder
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Model(&models.ReplenishmentOrder{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Preload("Items").Order("created_at DESC").Find(&orders).Error
	return orders, total, err
}

// SaveOrder persists order status changes
func (r *StockRepository) SaveOrder(ctx context.Context, tenantID string, order *models.ReplenishmentOrder) error {
	order.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&models.ReplenishmentOrder{}).
		Where("tenant_id = ? AND id = ?", tenantID, order.ID).
		Updates(map[string]interface{}{
			"status":       order.Status,
			"completed_at": order.CompletedAt,
			"cancelled_at": order.CancelledAt,
			"updated_at":   order.UpdatedAt,
		}).Error
}

// GetOpenOrderItem finds the unconfirmed item for a product on an OPEN order
func (r *StockRepository) GetOpenOrderItem(ctx context.Context, tenantID string, productID uuid.UUID) (*models.ReplenishmentOrderItem, error) {
	var item models.ReplenishmentOrderItem
	err := r.db.WithContext(ctx).
		Joins("JOIN replenishment_orders ON replenishment_orders.id = replenishment_order_items.order_id").
		Where("replenishment_order_items.tenant_id = ?", tenantID).
		Where("replenishment_order_items.product_id = ?", productID).
		Where("replenishment_order_items.confirmed_at IS NULL").
		Where("replenishment_orders.status = ?", models.ReplenishmentOrderStatusOpen).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveOrderItem persists item confirmation
func (r *StockRepository) SaveOrderItem(ctx context.Context, tenantID string, item *models.ReplenishmentOrderItem) error {
	item.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&models.ReplenishmentOrderItem{}).
		Where("tenant_id = ? AND id = ?", tenantID, item.ID).
		Updates(map[string]interface{}{
			"confirmed_at": item.ConfirmedAt,
			"updated_at":   item.UpdatedAt,
		}).Error
}

// CountUnconfirmedItems counts the items on an order still awaiting restock
func (r *StockRepository) CountUnconfirmedItems(ctx context.Context, tenantID string, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReplenishmentOrderItem{}).
		Where("tenant_id = ? AND order_id = ? AND confirmed_at IS NULL", tenantID, orderID).
		Count(&count).Error
	return count, err
}
