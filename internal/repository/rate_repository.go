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

const rateCacheTTL = 5 * time.Minute

// RateRepositoryInterface is the persistence contract for shipping zones,
// weight-banded rate rules and the tenant shipping policy.
type RateRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(txRepo RateRepositoryInterface) error) error

	GetZoneByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingZone, error)
	GetActiveZoneByName(ctx context.Context, tenantID, name string) (*models.ShippingZone, error)
	CreateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error
	ListZones(ctx context.Context, tenantID string, activeOnly bool) ([]models.ShippingZone, error)
	UpdateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error
	DeleteZone(ctx context.Context, tenantID string, id uuid.UUID) error
	ReplaceZoneCarriers(ctx context.Context, tenantID string, zoneID uuid.UUID, carriers []models.ZoneCarrier) error

	FindActiveRules(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error)
	FindActiveRulesForUpdate(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error)
	GetRule(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingRateRule, error)
	SaveRule(ctx context.Context, tenantID string, rule *models.ShippingRateRule) error
	DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error
	ListRules(ctx context.Context, tenantID string, zoneID *uuid.UUID) ([]models.ShippingRateRule, error)

	GetPolicy(ctx context.Context, tenantID string) (*models.ShippingPolicy, error)
	SavePolicy(ctx context.Context, tenantID string, policy *models.ShippingPolicy) error
}

// RateRepository is the gorm/Postgres implementation with Redis caching on
// the rate-lookup hot path.
type RateRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

var _ RateRepositoryInterface = (*RateRepository)(nil)

func NewRateRepository(db *gorm.DB, redisClient *redis.Client) *RateRepository {
	return &RateRepository{db: db, redis: redisClient}
}

func (r *RateRepository) WithTransaction(ctx context.Context, fn func(txRepo RateRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RateRepository{db: tx, redis: r.redis})
	})
}

func rulesCacheKey(tenantID string, zoneID uuid.UUID, carrierID string) string {
	return fmt.Sprintf("%srates:%s:%s:%s", cacheKeyPrefix, tenantID, zoneID.String(), carrierID)
}

func zoneCacheKey(tenantID, name string) string {
	return fmt.Sprintf("%szone:%s:%s", cacheKeyPrefix, tenantID, name)
}

func policyCacheKey(tenantID string) string {
	return fmt.Sprintf("%spolicy:%s", cacheKeyPrefix, tenantID)
}

func (r *RateRepository) invalidateRuleCache(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) {
	if r.redis == nil {
		return
	}
	r.redis.Del(ctx, rulesCacheKey(tenantID, zoneID, carrierID))
}

// zoneInvalidationKeys returns the name-keyed cache entries a zone write
// must drop. A rename passes both the old and the new name.
func zoneInvalidationKeys(tenantID string, names ...string) []string {
	seen := make(map[string]struct{}, len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := zoneCacheKey(tenantID, name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func (r *RateRepository) invalidateZoneCache(ctx context.Context, tenantID string, names ...string) {
	if r.redis == nil || len(names) == 0 {
		return
	}
	r.redis.Del(ctx, zoneInvalidationKeys(tenantID, names...)...)
}

// ========== Zone Operations ==========

func (r *RateRepository) GetZoneByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingZone, error) {
	var zone models.ShippingZone
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Preload("Carriers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		First(&zone).Error
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// GetActiveZoneByName looks up an active zone by its unique name, with
// caching since this runs on every rate resolution.
func (r *RateRepository) GetActiveZoneByName(ctx context.Context, tenantID, name string) (*models.ShippingZone, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, zoneCacheKey(tenantID, name)).Result()
		if err == nil {
			var zone models.ShippingZone
			if err := json.Unmarshal([]byte(val), &zone); err == nil {
				return &zone, nil
			}
		}
	}

	var zone models.ShippingZone
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ? AND is_active = ?", tenantID, name, true).
		Preload("Carriers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		First(&zone).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(zone); marshalErr == nil {
			r.redis.Set(ctx, zoneCacheKey(tenantID, name), data, rateCacheTTL)
		}
	}

	return &zone, nil
}

func (r *RateRepository) CreateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error {
	zone.TenantID = tenantID
	zone.CreatedAt = time.Now()
	zone.UpdatedAt = time.Now()
	for i := range zone.Carriers {
		zone.Carriers[i].TenantID = tenantID
		zone.Carriers[i].CreatedAt = time.Now()
		zone.Carriers[i].UpdatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(zone).Error
}

func (r *RateRepository) ListZones(ctx context.Context, tenantID string, activeOnly bool) ([]models.ShippingZone, error) {
	var zones []models.ShippingZone
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.
		Preload("Carriers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Order("name ASC").
		Find(&zones).Error
	return zones, err
}

func (r *RateRepository) UpdateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error {
	var current models.ShippingZone
	if err := r.db.WithContext(ctx).
		Select("name").
		Where("tenant_id = ? AND id = ?", tenantID, zone.ID).
		First(&current).Error; err != nil {
		return err
	}

	zone.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).
		Model(&models.ShippingZone{}).
		Where("tenant_id = ? AND id = ?", tenantID, zone.ID).
		Updates(map[string]interface{}{
			"name":       zone.Name,
			"cities":     zone.Cities,
			"is_active":  zone.IsActive,
			"updated_at": zone.UpdatedAt,
		}).Error
	if err != nil {
		return err
	}
	// A rename leaves the cache entry under the old name behind otherwise
	r.invalidateZoneCache(ctx, tenantID, current.Name, zone.Name)
	return nil
}

func (r *RateRepository) DeleteZone(ctx context.Context, tenantID string, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var zone models.ShippingZone
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&zone).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND zone_id = ?", tenantID, id).
			Delete(&models.ZoneCarrier{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND zone_id = ?", tenantID, id).
			Delete(&models.ShippingRateRule{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&zone).Error; err != nil {
			return err
		}
		r.invalidateZoneCache(ctx, tenantID, zone.Name)
		return nil
	})
}

// ReplaceZoneCarriers swaps the full carrier list for a zone
func (r *RateRepository) ReplaceZoneCarriers(ctx context.Context, tenantID string, zoneID uuid.UUID, carriers []models.ZoneCarrier) error {
	var zoneName string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var zone models.ShippingZone
		if err := tx.Select("name").
			Where("tenant_id = ? AND id = ?", tenantID, zoneID).
			First(&zone).Error; err != nil {
			return err
		}
		zoneName = zone.Name

		if err := tx.Where("tenant_id = ? AND zone_id = ?", tenantID, zoneID).
			Delete(&models.ZoneCarrier{}).Error; err != nil {
			return err
		}
		for i := range carriers {
			carriers[i].TenantID = tenantID
			carriers[i].ZoneID = zoneID
			carriers[i].CreatedAt = time.Now()
			carriers[i].UpdatedAt = time.Now()
		}
		if len(carriers) == 0 {
			return nil
		}
		return tx.Create(&carriers).Error
	})
	if err != nil {
		return err
	}
	// The name-keyed cache holds the zone with its preloaded carriers
	r.invalidateZoneCache(ctx, tenantID, zoneName)
	return nil
}

// ========== Rate Rule Operations ==========

// FindActiveRules returns the active bands for a zone/carrier pair ordered
// by weight_min, with caching since this is the resolution hot path.
func (r *RateRepository) FindActiveRules(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, rulesCacheKey(tenantID, zoneID, carrierID)).Result()
		if err == nil {
			var rules []models.ShippingRateRule
			if err := json.Unmarshal([]byte(val), &rules); err == nil {
				return rules, nil
			}
		}
	}

	var rules []models.ShippingRateRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND zone_id = ? AND carrier_id = ? AND is_active = ?", tenantID, zoneID, carrierID, true).
		Order("weight_min ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(rules); marshalErr == nil {
			r.redis.Set(ctx, rulesCacheKey(tenantID, zoneID, carrierID), data, rateCacheTTL)
		}
	}

	return rules, nil
}

// FindActiveRulesForUpdate locks the bands for a pair so concurrent rule
// writes serialize and overlap checks stay sound. Must run inside a
// transaction-bound repository.
func (r *RateRepository) FindActiveRulesForUpdate(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error) {
	var rules []models.ShippingRateRule
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND zone_id = ? AND carrier_id = ? AND is_active = ?", tenantID, zoneID, carrierID, true).
		Order("weight_min ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RateRepository) GetRule(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingRateRule, error) {
	var rule models.ShippingRateRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RateRepository) SaveRule(ctx context.Context, tenantID string, rule *models.ShippingRateRule) error {
	rule.TenantID = tenantID
	rule.UpdatedAt = time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = rule.UpdatedAt
	}
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return err
	}
	r.invalidateRuleCache(ctx, tenantID, rule.ZoneID, rule.CarrierID)
	return nil
}

func (r *RateRepository) DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error {
	var rule models.ShippingRateRule
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&rule).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&rule).Error; err != nil {
		return err
	}
	r.invalidateRuleCache(ctx, tenantID, rule.ZoneID, rule.CarrierID)
	return nil
}

func (r *RateRepository) ListRules(ctx context.Context, tenantID string, zoneID *uuid.UUID) ([]models.ShippingRateRule, error) {
	var rules []models.ShippingRateRule
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if zoneID != nil {
		query = query.Where("zone_id = ?", *zoneID)
	}
	err := query.Order("carrier_id ASC, weight_min ASC").Find(&rules).Error
	return rules, err
}

// ========== Policy Operations ==========

// GetPolicy returns the tenant's shipping policy, or gorm.ErrRecordNotFound
// when none has been configured yet.
func (r *RateRepository) GetPolicy(ctx context.Context, tenantID string) (*models.ShippingPolicy, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, policyCacheKey(tenantID)).Result()
		if err == nil {
			var policy models.ShippingPolicy
			if err := json.Unmarshal([]byte(val), &policy); err == nil {
				return &policy, nil
			}
		}
	}

	var policy models.ShippingPolicy
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&policy).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(policy); marshalErr == nil {
			r.redis.Set(ctx, policyCacheKey(tenantID), data, rateCacheTTL)
		}
	}

	return &policy, nil
}

// SavePolicy upserts the per-tenant policy singleton
func (r *RateRepository) SavePolicy(ctx context.Context, tenantID string, policy *models.ShippingPolicy) error {
	policy.TenantID = tenantID
	policy.UpdatedAt = time.Now()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = policy.UpdatedAt
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"free_shipping_threshold",
			"max_weight",
			"updated_at",
		}),
	}).Create(policy).Error
	if err != nil {
		return err
	}

	if r.redis != nil {
		r.redis.Del(ctx, policyCacheKey(tenantID))
	}
	return nil
}
