package repository

import (
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"logistics-service/internal/models"
)

// SeedShippingDefaults seeds a starter shipping configuration for a tenant:
// a shipping policy plus two domestic zones with a default carrier.
// This is idempotent - it uses upsert to avoid duplicates.
func SeedShippingDefaults(db *gorm.DB, tenantID string) error {
	policy := models.ShippingPolicy{
		TenantID:              tenantID,
		FreeShippingThreshold: decimal.NewFromInt(5000),
		MaxWeight:             30,
	}

	// Use upsert (ON CONFLICT DO UPDATE) for idempotency
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"free_shipping_threshold",
			"max_weight",
			"updated_at",
		}),
	}).Create(&policy)
	if result.Error != nil {
		return result.Error
	}

	zones := []models.ShippingZone{
		{
			TenantID: tenantID,
			Name:     "Alger",
			Cities:   models.StringArray{"Alger Centre", "Bab El Oued", "Hydra", "Kouba"},
			IsActive: true,
		},
		{
			TenantID: tenantID,
			Name:     "Oran",
			Cities:   models.StringArray{"Oran", "Es Senia", "Bir El Djir"},
			IsActive: true,
		},
	}

	result = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cities",
			"is_active",
			"updated_at",
		}),
	}).Create(&zones)
	if result.Error != nil {
		return result.Error
	}

	for _, zone := range zones {
		carrier := models.ZoneCarrier{
			TenantID:             tenantID,
			ZoneID:               zone.ID,
			CarrierID:            "yalidine",
			CarrierName:          "Yalidine Express",
			Price:                decimal.NewFromInt(600),
			DeliveryTimeEstimate: "24-48h",
			IsActive:             true,
			SortOrder:            0,
		}
		result = db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "zone_id"}, {Name: "carrier_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"carrier_name",
				"price",
				"delivery_time_estimate",
				"is_active",
				"sort_order",
				"updated_at",
			}),
		}).Create(&carrier)
		if result.Error != nil {
			return result.Error
		}
	}

	log.Printf("Seeded shipping defaults for tenant %s (%d zones)", tenantID, len(zones))
	return nil
}
