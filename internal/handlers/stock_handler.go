package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"logistics-service/internal/middleware"
	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

// StockHandler exposes the stock ledger and replenishment planner over HTTP
type StockHandler struct {
	stock         *services.StockService
	replenishment *services.ReplenishmentService
}

func NewStockHandler(stock *services.StockService, replenishment *services.ReplenishmentService) *StockHandler {
	return &StockHandler{
		stock:         stock,
		replenishment: replenishment,
	}
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func paginationMeta(page, limit int, total int64) *models.PaginationMeta {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// ========== Stock Ledger ==========

// ListProducts returns the stock ledger
func (h *StockHandler) ListProducts(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, limit := parsePagination(c)

	products, total, err := h.stock.ListProducts(c.Request.Context(), tenantID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockListResponse{
		Success:    true,
		Data:       products,
		Pagination: paginationMeta(page, limit, total),
	})
}

// UpsertProduct creates or updates a ledger record by SKU
func (h *StockHandler) UpsertProduct(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.UpsertProductStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.stock.UpsertProduct(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockResponse{Success: true, Data: product})
}

// GetProduct returns one ledger record
func (h *StockHandler) GetProduct(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	product, err := h.stock.GetProduct(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockResponse{Success: true, Data: product})
}

// AdjustStock applies a signed delta to a product's stock
func (h *StockHandler) AdjustStock(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	var req models.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.stock.AdjustStock(c.Request.Context(), tenantID, id, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockResponse{Success: true, Data: product})
}

// SetReplenishmentStatus flips a product between ON_HOLD and ORDERED
func (h *StockHandler) SetReplenishmentStatus(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	var req models.SetReplenishmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.stock.SetReplenishmentStatus(c.Request.Context(), tenantID, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockResponse{Success: true, Data: product})
}

// NeedsRestock reports whether a product sits at or below its threshold
func (h *StockHandler) NeedsRestock(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	needsRestock, err := h.stock.NeedsRestock(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    gin.H{"needsRestock": needsRestock},
	})
}

// ListMovements returns the adjustment history for a product
func (h *StockHandler) ListMovements(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	page, limit := parsePagination(c)
	movements, total, err := h.stock.ListMovements(c.Request.Context(), tenantID, id, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data: gin.H{
			"movements":  movements,
			"pagination": paginationMeta(page, limit, total),
		},
	})
}

// ========== Replenishment Planner ==========

// ListCandidates returns the products currently needing restock
func (h *StockHandler) ListCandidates(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	candidates, err := h.replenishment.ListCandidates(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockListResponse{Success: true, Data: candidates})
}

// EstimateCost sums the projected restock cost for a selection
func (h *StockHandler) EstimateCost(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.EstimateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	total, err := h.replenishment.EstimateTotalCost(c.Request.Context(), tenantID, req.ProductIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.EstimateCostResponse{Success: true, TotalCost: total})
}

// CreateOrder submits a product selection as a replenishment order
func (h *StockHandler) CreateOrder(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.CreateReplenishmentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.replenishment.CreateOrder(c.Request.Context(), tenantID, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ReplenishmentOrderResponse{Success: true, Data: order})
}

// GetOrder returns one replenishment order with its items
func (h *StockHandler) GetOrder(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		respondBadID(c, "order ID")
		return
	}

	order, err := h.replenishment.GetOrder(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReplenishmentOrderResponse{Success: true, Data: order})
}

// ListOrders returns replenishment orders, optionally filtered by status
func (h *StockHandler) ListOrders(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, limit := parsePagination(c)

	var status *models.ReplenishmentOrderStatus
	if raw := c.Query("status"); raw != "" {
		s := models.ReplenishmentOrderStatus(raw)
		status = &s
	}

	orders, total, err := h.replenishment.ListOrders(c.Request.Context(), tenantID, status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReplenishmentOrderListResponse{
		Success:    true,
		Data:       orders,
		Pagination: paginationMeta(page, limit, total),
	})
}

// CancelOrder cancels an open replenishment order
func (h *StockHandler) CancelOrder(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		respondBadID(c, "order ID")
		return
	}

	order, err := h.replenishment.CancelOrder(c.Request.Context(), tenantID, id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReplenishmentOrderResponse{Success: true, Data: order})
}

// ConfirmRestock records delivery for one ordered product
func (h *StockHandler) ConfirmRestock(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondBadID(c, "product ID")
		return
	}

	var req models.ConfirmRestockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	product, err := h.replenishment.ConfirmRestock(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProductStockResponse{Success: true, Data: product})
}
