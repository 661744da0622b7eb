package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReplenishmentStatus represents the replenishment lifecycle of a product
type ReplenishmentStatus string

const (
	ReplenishmentStatusOnHold  ReplenishmentStatus = "ON_HOLD"
	ReplenishmentStatusOrdered ReplenishmentStatus = "ORDERED"
)

// MovementReason represents why a stock adjustment happened
type MovementReason string

const (
	MovementReasonPurchase   MovementReason = "PURCHASE"
	MovementReasonSale       MovementReason = "SALE"
	MovementReasonReturn     MovementReason = "RETURN"
	MovementReasonDamage     MovementReason = "DAMAGE"
	MovementReasonLoss       MovementReason = "LOSS"
	MovementReasonCorrection MovementReason = "CORRECTION"
	MovementReasonOther      MovementReason = "OTHER"
)

// ValidMovementReason reports whether the reason is one of the known audit reasons
func ValidMovementReason(r MovementReason) bool {
	switch r {
	case MovementReasonPurchase, MovementReasonSale, MovementReasonReturn,
		MovementReasonDamage, MovementReasonLoss, MovementReasonCorrection, MovementReasonOther:
		return true
	}
	return false
}

// ProductStock represents the stock ledger record for a product.
// The catalog owns product details; this service owns quantities and the
// replenishment lifecycle.
type ProductStock struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_product_sku"`
	SKU      string    `json:"sku" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_product_sku"`
	Name     string    `json:"name" gorm:"type:varchar(255);not null"`

	Stock             int             `json:"stock" gorm:"not null;default:0"`
	MinThreshold      int             `json:"minThreshold" gorm:"not null;default:0"`
	SuggestedQuantity int             `json:"suggestedQuantity" gorm:"not null;default:0"`
	UnitCost          decimal.Decimal `json:"unitCost" gorm:"type:decimal(12,2);not null;default:0"`

	ReplenishmentStatus ReplenishmentStatus `json:"replenishmentStatus" gorm:"type:varchar(20);not null;default:'ON_HOLD';index"`

	LastRestockedAt *time.Time `json:"lastRestockedAt,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// NeedsRestock reports whether the product is a replenishment candidate.
func (p *ProductStock) NeedsRestock() bool {
	return p.Stock <= p.MinThreshold
}

// EstimatedCost is the projected cost of restocking the product at its
// suggested quantity.
func (p *ProductStock) EstimatedCost() decimal.Decimal {
	return p.UnitCost.Mul(decimal.NewFromInt(int64(p.SuggestedQuantity)))
}

// StockMovement is the audit trail for every stock adjustment
type StockMovement struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string         `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ProductID uuid.UUID      `json:"productId" gorm:"type:uuid;not null;index"`
	Delta     int            `json:"delta" gorm:"not null"`
	Reason    MovementReason `json:"reason" gorm:"type:varchar(20);not null"`

	PreviousStock int `json:"previousStock" gorm:"not null"`
	NewStock      int `json:"newStock" gorm:"not null"`

	AdjustedBy *string `json:"adjustedBy,omitempty" gorm:"type:varchar(255)"`
	Notes      *string `json:"notes,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt"`
}

// ReplenishmentOrderStatus represents the status of a replenishment order
type ReplenishmentOrderStatus string

const (
	ReplenishmentOrderStatusOpen      ReplenishmentOrderStatus = "OPEN"
	ReplenishmentOrderStatusCompleted ReplenishmentOrderStatus = "COMPLETED"
	ReplenishmentOrderStatusCancelled ReplenishmentOrderStatus = "CANCELLED"
)

// ReplenishmentOrder groups under-threshold products submitted for restocking
type ReplenishmentOrder struct {
	ID          uuid.UUID                `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string                   `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	OrderNumber string                   `json:"orderNumber" gorm:"type:varchar(50);not null;uniqueIndex"`
	Status      ReplenishmentOrderStatus `json:"status" gorm:"type:varchar(20);not null;default:'OPEN';index"`

	TotalCost decimal.Decimal `json:"totalCost" gorm:"type:decimal(14,2);not null;default:0"`

	CreatedBy   *string    `json:"createdBy,omitempty" gorm:"type:varchar(255)"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items []ReplenishmentOrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// ReplenishmentOrderItem captures a product's quantity and cost at submission time
type ReplenishmentOrderItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	OrderID   uuid.UUID `json:"orderId" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`

	Quantity int             `json:"quantity" gorm:"not null"`
	UnitCost decimal.Decimal `json:"unitCost" gorm:"type:decimal(12,2);not null"`
	Subtotal decimal.Decimal `json:"subtotal" gorm:"type:decimal(14,2);not null"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName implementations
func (ProductStock) TableName() string {
	return "product_stocks"
}

func (StockMovement) TableName() string {
	return "stock_movements"
}

func (ReplenishmentOrder) TableName() string {
	return "replenishment_orders"
}

func (ReplenishmentOrderItem) TableName() string {
	return "replenishment_order_items"
}

// Request/Response models

type UpsertProductStockRequest struct {
	SKU               string          `json:"sku" binding:"required,min=1,max=100"`
	Name              string          `json:"name" binding:"required,min=1,max=255"`
	Stock             int             `json:"stock" binding:"gte=0"`
	MinThreshold      int             `json:"minThreshold" binding:"gte=0"`
	SuggestedQuantity int             `json:"suggestedQuantity" binding:"gte=0"`
	UnitCost          decimal.Decimal `json:"unitCost"`
}

type AdjustStockRequest struct {
	Delta  int            `json:"delta" binding:"required"`
	Reason MovementReason `json:"reason" binding:"required"`
	Notes  *string        `json:"notes,omitempty"`
}

type SetReplenishmentStatusRequest struct {
	Status ReplenishmentStatus `json:"status" binding:"required"`
}

type EstimateCostRequest struct {
	ProductIDs []uuid.UUID `json:"productIds" binding:"required,min=1"`
}

type CreateReplenishmentOrderRequest struct {
	ProductIDs []uuid.UUID `json:"productIds" binding:"required,min=1"`
}

type ConfirmRestockRequest struct {
	// Quantity defaults to the quantity captured on the open order item
	Quantity *int `json:"quantity,omitempty" binding:"omitempty,gt=0"`
}

type AdjustStockResponse struct {
	Success  bool `json:"success"`
	NewStock int  `json:"newStock"`
}

type EstimateCostResponse struct {
	Success   bool            `json:"success"`
	TotalCost decimal.Decimal `json:"totalCost"`
}

type ProductStockResponse struct {
	Success bool          `json:"success"`
	Data    *ProductStock `json:"data,omitempty"`
	Message *string       `json:"message,omitempty"`
}

type ProductStockListResponse struct {
	Success    bool            `json:"success"`
	Data       []ProductStock  `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type ReplenishmentOrderResponse struct {
	Success bool                `json:"success"`
	Data    *ReplenishmentOrder `json:"data,omitempty"`
	Message *string             `json:"message,omitempty"`
}

type ReplenishmentOrderListResponse struct {
	Success    bool                 `json:"success"`
	Data       []ReplenishmentOrder `json:"data"`
	Pagination *PaginationMeta      `json:"pagination,omitempty"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}
