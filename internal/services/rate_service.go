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

// RateService manages shipping zones, weight-banded rate rules and the
// tenant shipping policy, and resolves shipments to a price.
type RateService struct {
	repo      repository.RateRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Logger
}

func NewRateService(repo repository.RateRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *RateService {
	return &RateService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ========== Zones ==========

// CreateZone creates a zone with its carrier entries
func (s *RateService) CreateZone(ctx context.Context, tenantID string, req *models.CreateZoneRequest) (*models.ShippingZone, error) {
	if len(req.Cities) == 0 {
		return nil, NewError(KindValidation, "zone needs at least one city")
	}

	zone := &models.ShippingZone{
		Name:     req.Name,
		Cities:   models.StringArray(req.Cities),
		IsActive: true,
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}
	for _, c := range req.Carriers {
		zone.Carriers = append(zone.Carriers, carrierFromInput(c))
	}

	if err := s.repo.CreateZone(ctx, tenantID, zone); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, NewError(KindValidation, "zone %q already exists", req.Name)
		}
		return nil, WrapError(KindInternal, err, "failed to create zone")
	}
	return zone, nil
}

func carrierFromInput(in models.ZoneCarrierInput) models.ZoneCarrier {
	carrier := models.ZoneCarrier{
		CarrierID:            in.CarrierID,
		CarrierName:          in.CarrierName,
		Price:                in.Price,
		DeliveryTimeEstimate: in.DeliveryTimeEstimate,
		IsActive:             true,
	}
	if in.IsActive != nil {
		carrier.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		carrier.SortOrder = *in.SortOrder
	}
	return carrier
}

// GetZone returns a zone with its carriers
func (s *RateService) GetZone(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingZone, error) {
	zone, err := s.repo.GetZoneByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "zone %s not found", id)
		}
		return nil, WrapError(KindInternal, err, "failed to load zone")
	}
	return zone, nil
}

// ListZones returns the tenant's zones
func (s *RateService) ListZones(ctx context.Context, tenantID string, activeOnly bool) ([]models.ShippingZone, error) {
	zones, err := s.repo.ListZones(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, WrapError(KindInternal, err, "failed to list zones")
	}
	return zones, nil
}

// UpdateZone applies a partial update to a zone, optionally replacing its
// carrier list.
func (s *RateService) UpdateZone(ctx context.Context, tenantID string, id uuid.UUID, req *models.UpdateZoneRequest) (*models.ShippingZone, error) {
	zone, err := s.GetZone(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		zone.Name = *req.Name
	}
	if req.Cities != nil {
		if len(req.Cities) == 0 {
			return nil, NewError(KindValidation, "zone needs at least one city")
		}
		zone.Cities = models.StringArray(req.Cities)
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateZone(ctx, tenantID, zone); err != nil {
		return nil, WrapError(KindInternal, err, "failed to update zone")
	}

	if req.Carriers != nil {
		carriers := make([]models.ZoneCarrier, 0, len(req.Carriers))
		for _, c := range req.Carriers {
			carriers = append(carriers, carrierFromInput(c))
		}
		if err := s.repo.ReplaceZoneCarriers(ctx, tenantID, id, carriers); err != nil {
			return nil, WrapError(KindInternal, err, "failed to replace zone carriers")
		}
	}

	return s.GetZone(ctx, tenantID, id)
}

// DeleteZone removes a zone, its carriers and its rate rules
func (s *RateService) DeleteZone(ctx context.Context, tenantID string, id uuid.UUID) error {
	if err := s.repo.DeleteZone(ctx, tenantID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewError(KindNotFound, "zone %s not found", id)
		}
		return WrapError(KindInternal, err, "failed to delete zone")
	}
	return nil
}

// ========== Rate Rules ==========

// UpsertRule creates or updates a weight band. Bands are half-open
// [weightMin, weightMax) and may not overlap another active band for the
// same zone/carrier pair.
func (s *RateService) UpsertRule(ctx context.Context, tenantID string, req *models.UpsertRateRuleRequest) (*models.ShippingRateRule, error) {
	if req.WeightMin < 0 {
		return nil, NewError(KindValidation, "weightMin cannot be negative")
	}
	if req.WeightMin >= req.WeightMax {
		return nil, NewError(KindValidation, "weightMin must be below weightMax")
	}
	if req.Price.IsNegative() {
		return nil, NewError(KindValidation, "price cannot be negative")
	}

	if _, err := s.GetZone(ctx, tenantID, req.ZoneID); err != nil {
		return nil, err
	}

	var saved *models.ShippingRateRule
	err := s.repo.WithTransaction(ctx, func(txRepo repository.RateRepositoryInterface) error {
		rule := &models.ShippingRateRule{
			ZoneID:    req.ZoneID,
			CarrierID: req.CarrierID,
			WeightMin: req.WeightMin,
			WeightMax: req.WeightMax,
			Price:     req.Price,
			IsActive:  true,
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}

		if req.ID != nil {
			existing, err := txRepo.GetRule(ctx, tenantID, *req.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return NewError(KindNotFound, "rate rule %s not found", *req.ID)
				}
				return WrapError(KindInternal, err, "failed to load rate rule")
			}
			rule.ID = existing.ID
			rule.CreatedAt = existing.CreatedAt
		}

		if rule.IsActive {
			active, err := txRepo.FindActiveRulesForUpdate(ctx, tenantID, rule.ZoneID, rule.CarrierID)
			if err != nil {
				return WrapError(KindInternal, err, "failed to lock rate rules")
			}
			for i := range active {
				other := &active[i]
				if req.ID != nil && other.ID == *req.ID {
					continue
				}
				if rule.Overlaps(other) {
					return NewError(KindOverlapConflict,
						"band [%.2f, %.2f) overlaps existing band [%.2f, %.2f)",
						rule.WeightMin, rule.WeightMax, other.WeightMin, other.WeightMax)
				}
			}
		}

		if err := txRepo.SaveRule(ctx, tenantID, rule); err != nil {
			return WrapError(KindInternal, err, "failed to save rate rule")
		}
		saved = rule
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRateRuleSaved(ctx, tenantID, saved.ID.String(), saved.ZoneID.String(), saved.CarrierID, saved.WeightMin, saved.WeightMax); err != nil {
			s.logger.WithError(err).WithField("ruleId", saved.ID).Warn("Failed to publish rate rule event")
		}
	}

	return saved, nil
}

// DeleteRule removes a rate band
func (s *RateService) DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error {
	rule, err := s.repo.GetRule(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewError(KindNotFound, "rate rule %s not found", id)
		}
		return WrapError(KindInternal, err, "failed to load rate rule")
	}

	if err := s.repo.DeleteRule(ctx, tenantID, id); err != nil {
		return WrapError(KindInternal, err, "failed to delete rate rule")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRateRuleDeleted(ctx, tenantID, id.String(), rule.ZoneID.String(), rule.CarrierID); err != nil {
			s.logger.WithError(err).WithField("ruleId", id).Warn("Failed to publish rate rule deleted event")
		}
	}
	return nil
}

// ListRules returns rate bands, optionally filtered by zone
func (s *RateService) ListRules(ctx context.Context, tenantID string, zoneID *uuid.UUID) ([]models.ShippingRateRule, error) {
	rules, err := s.repo.ListRules(ctx, tenantID, zoneID)
	if err != nil {
		return nil, WrapError(KindInternal, err, "failed to list rate rules")
	}
	return rules, nil
}

// ========== Policy ==========

// GetPolicy returns the tenant's shipping policy, falling back to a zero
// policy (no free shipping, no weight cap) when none is configured.
func (s *RateService) GetPolicy(ctx context.Context, tenantID string) (*models.ShippingPolicy, error) {
	policy, err := s.repo.GetPolicy(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.ShippingPolicy{TenantID: tenantID}, nil
		}
		return nil, WrapError(KindInternal, err, "failed to load shipping policy")
	}
	return policy, nil
}

// SetPolicy upserts the tenant's shipping policy
func (s *RateService) SetPolicy(ctx context.Context, tenantID string, req *models.SetPolicyRequest, actorID string) (*models.ShippingPolicy, error) {
	if req.FreeShippingThreshold.IsNegative() {
		return nil, NewError(KindValidation, "free shipping threshold cannot be negative")
	}
	if req.MaxWeight <= 0 {
		return nil, NewError(KindValidation, "max weight must be positive")
	}

	policy := &models.ShippingPolicy{
		FreeShippingThreshold: req.FreeShippingThreshold,
		MaxWeight:             req.MaxWeight,
	}
	if err := s.repo.SavePolicy(ctx, tenantID, policy); err != nil {
		return nil, WrapError(KindInternal, err, "failed to save shipping policy")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishPolicyUpdated(ctx, tenantID, actorID); err != nil {
			s.logger.WithError(err).Warn("Failed to publish policy updated event")
		}
	}
	return policy, nil
}

// ========== Resolution ==========

// Resolve prices one shipment against the rate table. The checks run in a
// fixed order: weight cap, free shipping, zone and carrier lookup, then the
// band match. Free shipping applies before the zone is consulted, so a cart
// over the threshold resolves even when no band covers its weight.
func (s *RateService) Resolve(ctx context.Context, tenantID string, req *models.ResolveRateRequest) (*models.ResolvedRate, error) {
	if req.Weight <= 0 {
		return nil, NewError(KindValidation, "weight must be positive")
	}

	policy, err := s.GetPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if policy.MaxWeight > 0 && req.Weight > policy.MaxWeight {
		return nil, NewError(KindWeightExceedsMax,
			"weight %.2f exceeds the maximum shippable weight %.2f", req.Weight, policy.MaxWeight)
	}

	if policy.FreeShippingThreshold.IsPositive() && req.CartSubtotal.GreaterThanOrEqual(policy.FreeShippingThreshold) {
		return &models.ResolvedRate{
			Price:     decimal.Zero,
			Reason:    models.RateReasonFreeShipping,
			CarrierID: req.CarrierID,
		}, nil
	}

	zone, err := s.repo.GetActiveZoneByName(ctx, tenantID, req.Zone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(KindNotFound, "zone %q not found", req.Zone)
		}
		return nil, WrapError(KindInternal, err, "failed to load zone")
	}

	var carrier *models.ZoneCarrier
	for i := range zone.Carriers {
		c := &zone.Carriers[i]
		if c.CarrierID == req.CarrierID && c.IsActive {
			carrier = c
			break
		}
	}
	if carrier == nil {
		return nil, NewError(KindNotFound, "carrier %q does not serve zone %q", req.CarrierID, req.Zone)
	}

	rules, err := s.repo.FindActiveRules(ctx, tenantID, zone.ID, req.CarrierID)
	if err != nil {
		return nil, WrapError(KindInternal, err, "failed to load rate rules")
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Contains(req.Weight) {
			ruleID := rule.ID
			return &models.ResolvedRate{
				Price:                rule.Price,
				Reason:               models.RateReasonMatchedRule,
				DeliveryTimeEstimate: carrier.DeliveryTimeEstimate,
				ZoneID:               zone.ID,
				CarrierID:            carrier.CarrierID,
				RuleID:               &ruleID,
			}, nil
		}
	}

	return nil, NewError(KindNoApplicableRate,
		"no rate band covers weight %.2f for carrier %q in zone %q", req.Weight, req.CarrierID, req.Zone)
}
