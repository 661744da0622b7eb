package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"logistics-service/internal/middleware"
	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

// ShippingHandler exposes zones, rate rules, the shipping policy and rate
// resolution over HTTP
type ShippingHandler struct {
	rates *services.RateService
}

func NewShippingHandler(rates *services.RateService) *ShippingHandler {
	return &ShippingHandler{rates: rates}
}

// ========== Zones ==========

// CreateZone creates a shipping zone with its carriers
func (h *ShippingHandler) CreateZone(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.CreateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	zone, err := h.rates.CreateZone(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ZoneResponse{Success: true, Data: zone})
}

// GetZone returns one zone with its carriers
func (h *ShippingHandler) GetZone(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("zoneId"))
	if err != nil {
		respondBadID(c, "zone ID")
		return
	}

	zone, err := h.rates.GetZone(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ZoneResponse{Success: true, Data: zone})
}

// ListZones returns the tenant's zones
func (h *ShippingHandler) ListZones(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	activeOnly := c.Query("active") == "true"

	zones, err := h.rates.ListZones(c.Request.Context(), tenantID, activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ZoneListResponse{Success: true, Data: zones})
}

// UpdateZone applies a partial update to a zone
func (h *ShippingHandler) UpdateZone(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("zoneId"))
	if err != nil {
		respondBadID(c, "zone ID")
		return
	}

	var req models.UpdateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	zone, err := h.rates.UpdateZone(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ZoneResponse{Success: true, Data: zone})
}

// DeleteZone removes a zone with its carriers and rate rules
func (h *ShippingHandler) DeleteZone(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("zoneId"))
	if err != nil {
		respondBadID(c, "zone ID")
		return
	}

	if err := h.rates.DeleteZone(c.Request.Context(), tenantID, id); err != nil {
		respondError(c, err)
		return
	}

	message := "Zone deleted"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// ========== Rate Rules ==========

// UpsertRule creates or updates a weight band
func (h *ShippingHandler) UpsertRule(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.UpsertRateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rule, err := h.rates.UpsertRule(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if req.ID != nil {
		status = http.StatusOK
	}
	c.JSON(status, models.RateRuleResponse{Success: true, Data: rule})
}

// ListRules returns rate bands, optionally filtered by zone
func (h *ShippingHandler) ListRules(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var zoneID *uuid.UUID
	if raw := c.Query("zoneId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondBadID(c, "zone ID")
			return
		}
		zoneID = &id
	}

	rules, err := h.rates.ListRules(c.Request.Context(), tenantID, zoneID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RateRuleListResponse{Success: true, Data: rules})
}

// DeleteRule removes a weight band
func (h *ShippingHandler) DeleteRule(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		respondBadID(c, "rule ID")
		return
	}

	if err := h.rates.DeleteRule(c.Request.Context(), tenantID, id); err != nil {
		respondError(c, err)
		return
	}

	message := "Rate rule deleted"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// ========== Policy ==========

// GetPolicy returns the tenant's shipping policy
func (h *ShippingHandler) GetPolicy(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	policy, err := h.rates.GetPolicy(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PolicyResponse{Success: true, Data: policy})
}

// SetPolicy upserts the tenant's shipping policy
func (h *ShippingHandler) SetPolicy(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.SetPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	policy, err := h.rates.SetPolicy(c.Request.Context(), tenantID, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PolicyResponse{Success: true, Data: policy})
}

// ========== Resolution ==========

// ResolveRate prices one shipment against the rate table
func (h *ShippingHandler) ResolveRate(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req models.ResolveRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rate, err := h.rates.Resolve(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ResolvedRateResponse{Success: true, Data: rate})
}
