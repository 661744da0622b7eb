package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StringArray custom type for PostgreSQL text[]
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return "{" + stringArrayJoin(s) + "}", nil
}

func stringArrayJoin(arr []string) string {
	result := ""
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		result += "\"" + v + "\""
	}
	return result
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return s.parsePostgresArray(string(v))
	case string:
		return s.parsePostgresArray(v)
	}
	return nil
}

func (s *StringArray) parsePostgresArray(str string) error {
	if str == "{}" || str == "" {
		*s = []string{}
		return nil
	}

	str = str[1 : len(str)-1]

	var result []string
	var current string
	inQuotes := false

	for _, char := range str {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				result = append(result, current)
				current = ""
				continue
			}
			current += string(char)
		default:
			current += string(char)
		}
	}
	result = append(result, current)

	*s = result
	return nil
}

// ShippingZone represents a named destination grouping with per-carrier pricing
type ShippingZone struct {
	ID       uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string      `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_zone_name"`
	Name     string      `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_zone_name"`
	Cities   StringArray `json:"cities" gorm:"type:text[];not null"`
	IsActive bool        `json:"isActive" gorm:"not null;default:true"`

	Carriers []ZoneCarrier `json:"carriers,omitempty" gorm:"foreignKey:ZoneID"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ZoneCarrier is one carrier's service entry for a zone
type ZoneCarrier struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ZoneID   uuid.UUID `json:"zoneId" gorm:"type:uuid;not null;uniqueIndex:idx_zone_carrier"`

	CarrierID   string `json:"carrierId" gorm:"type:varchar(100);not null;uniqueIndex:idx_zone_carrier"`
	CarrierName string `json:"carrierName" gorm:"type:varchar(255)"`

	Price                decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null;default:0"`
	DeliveryTimeEstimate string          `json:"deliveryTimeEstimate" gorm:"type:varchar(100)"`
	IsActive             bool            `json:"isActive" gorm:"not null;default:true"`
	SortOrder            int             `json:"sortOrder" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShippingRateRule is a weight-banded price for one zone/carrier pair.
// The band is half-open: it covers weightMin <= w < weightMax.
type ShippingRateRule struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ZoneID   uuid.UUID `json:"zoneId" gorm:"type:uuid;not null;index:idx_rate_zone_carrier"`

	CarrierID string  `json:"carrierId" gorm:"type:varchar(100);not null;index:idx_rate_zone_carrier"`
	WeightMin float64 `json:"weightMin" gorm:"type:decimal(10,2);not null"`
	WeightMax float64 `json:"weightMax" gorm:"type:decimal(10,2);not null"`

	Price    decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	IsActive bool            `json:"isActive" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Contains reports whether the band covers the given weight
func (r *ShippingRateRule) Contains(weight float64) bool {
	return weight >= r.WeightMin && weight < r.WeightMax
}

// Overlaps reports whether two half-open bands intersect
func (r *ShippingRateRule) Overlaps(other *ShippingRateRule) bool {
	return r.WeightMin < other.WeightMax && other.WeightMin < r.WeightMax
}

// ShippingPolicy is the per-tenant singleton shipping policy
type ShippingPolicy struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex"`

	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold" gorm:"type:decimal(14,2);not null;default:0"`
	MaxWeight             float64         `json:"maxWeight" gorm:"type:decimal(10,2);not null;default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RateReason explains how a shipping price was resolved
type RateReason string

const (
	RateReasonFreeShipping RateReason = "free_shipping"
	RateReasonMatchedRule  RateReason = "matched_rule"
)

// ResolvedRate is the outcome of resolving a shipment against the rate table
type ResolvedRate struct {
	Price                decimal.Decimal `json:"price"`
	Reason               RateReason      `json:"reason"`
	DeliveryTimeEstimate string          `json:"deliveryTimeEstimate,omitempty"`
	ZoneID               uuid.UUID       `json:"zoneId,omitempty"`
	CarrierID            string          `json:"carrierId,omitempty"`
	RuleID               *uuid.UUID      `json:"ruleId,omitempty"`
}

// TableName implementations
func (ShippingZone) TableName() string {
	return "shipping_zones"
}

func (ZoneCarrier) TableName() string {
	return "zone_carriers"
}

func (ShippingRateRule) TableName() string {
	return "shipping_rate_rules"
}

func (ShippingPolicy) TableName() string {
	return "shipping_policies"
}

// Request/Response models

type ZoneCarrierInput struct {
	CarrierID            string          `json:"carrierId" binding:"required,min=1,max=100"`
	CarrierName          string          `json:"carrierName"`
	Price                decimal.Decimal `json:"price"`
	DeliveryTimeEstimate string          `json:"deliveryTimeEstimate"`
	IsActive             *bool           `json:"isActive,omitempty"`
	SortOrder            *int            `json:"sortOrder,omitempty"`
}

type CreateZoneRequest struct {
	Name     string             `json:"name" binding:"required,min=1,max=100"`
	Cities   []string           `json:"cities" binding:"required,min=1"`
	IsActive *bool              `json:"isActive,omitempty"`
	Carriers []ZoneCarrierInput `json:"carriers,omitempty"`
}

type UpdateZoneRequest struct {
	Name     *string            `json:"name,omitempty"`
	Cities   []string           `json:"cities,omitempty"`
	IsActive *bool              `json:"isActive,omitempty"`
	Carriers []ZoneCarrierInput `json:"carriers,omitempty"`
}

type UpsertRateRuleRequest struct {
	ID        *uuid.UUID      `json:"id,omitempty"`
	ZoneID    uuid.UUID       `json:"zoneId" binding:"required"`
	CarrierID string          `json:"carrierId" binding:"required,min=1,max=100"`
	WeightMin float64         `json:"weightMin" binding:"gte=0"`
	WeightMax float64         `json:"weightMax" binding:"required,gt=0"`
	Price     decimal.Decimal `json:"price"`
	IsActive  *bool           `json:"isActive,omitempty"`
}

type SetPolicyRequest struct {
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	MaxWeight             float64         `json:"maxWeight" binding:"required,gt=0"`
}

type ResolveRateRequest struct {
	Zone         string          `json:"zone" binding:"required"`
	CarrierID    string          `json:"carrierId" binding:"required"`
	Weight       float64         `json:"weight" binding:"required,gt=0"`
	CartSubtotal decimal.Decimal `json:"cartSubtotal"`
}

type ZoneResponse struct {
	Success bool          `json:"success"`
	Data    *ShippingZone `json:"data,omitempty"`
	Message *string       `json:"message,omitempty"`
}

type ZoneListResponse struct {
	Success bool           `json:"success"`
	Data    []ShippingZone `json:"data"`
}

type RateRuleResponse struct {
	Success bool              `json:"success"`
	Data    *ShippingRateRule `json:"data,omitempty"`
	Message *string           `json:"message,omitempty"`
}

type RateRuleListResponse struct {
	Success bool               `json:"success"`
	Data    []ShippingRateRule `json:"data"`
}

type PolicyResponse struct {
	Success bool            `json:"success"`
	Data    *ShippingPolicy `json:"data,omitempty"`
	Message *string         `json:"message,omitempty"`
}

type ResolvedRateResponse struct {
	Success bool          `json:"success"`
	Data    *ResolvedRate `json:"data,omitempty"`
}
