package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

// MockRateRepository is a mock implementation of RateRepositoryInterface
type MockRateRepository struct {
	mock.Mock
}

func (m *MockRateRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.RateRepositoryInterface) error) error {
	return fn(m)
}

func (m *MockRateRepository) GetZoneByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingZone, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShippingZone), args.Error(1)
}

func (m *MockRateRepository) GetActiveZoneByName(ctx context.Context, tenantID, name string) (*models.ShippingZone, error) {
	args := m.Called(ctx, tenantID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShippingZone), args.Error(1)
}

func (m *MockRateRepository) CreateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error {
	args := m.Called(ctx, tenantID, zone)
	if args.Error(0) == nil && zone.ID == uuid.Nil {
		zone.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockRateRepository) ListZones(ctx context.Context, tenantID string, activeOnly bool) ([]models.ShippingZone, error) {
	args := m.Called(ctx, tenantID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ShippingZone), args.Error(1)
}

func (m *MockRateRepository) UpdateZone(ctx context.Context, tenantID string, zone *models.ShippingZone) error {
	args := m.Called(ctx, tenantID, zone)
	return args.Error(0)
}

func (m *MockRateRepository) DeleteZone(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockRateRepository) ReplaceZoneCarriers(ctx context.Context, tenantID string, zoneID uuid.UUID, carriers []models.ZoneCarrier) error {
	args := m.Called(ctx, tenantID, zoneID, carriers)
	return args.Error(0)
}

func (m *MockRateRepository) FindActiveRules(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error) {
	args := m.Called(ctx, tenantID, zoneID, carrierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ShippingRateRule), args.Error(1)
}

func (m *MockRateRepository) FindActiveRulesForUpdate(ctx context.Context, tenantID string, zoneID uuid.UUID, carrierID string) ([]models.ShippingRateRule, error) {
	args := m.Called(ctx, tenantID, zoneID, carrierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ShippingRateRule), args.Error(1)
}

func (m *MockRateRepository) GetRule(ctx context.Context, tenantID string, id uuid.UUID) (*models.ShippingRateRule, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShippingRateRule), args.Error(1)
}

func (m *MockRateRepository) SaveRule(ctx context.Context, tenantID string, rule *models.ShippingRateRule) error {
	args := m.Called(ctx, tenantID, rule)
	if args.Error(0) == nil && rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockRateRepository) DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockRateRepository) ListRules(ctx context.Context, tenantID string, zoneID *uuid.UUID) ([]models.ShippingRateRule, error) {
	args := m.Called(ctx, tenantID, zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ShippingRateRule), args.Error(1)
}

func (m *MockRateRepository) GetPolicy(ctx context.Context, tenantID string) (*models.ShippingPolicy, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShippingPolicy), args.Error(1)
}

func (m *MockRateRepository) SavePolicy(ctx context.Context, tenantID string, policy *models.ShippingPolicy) error {
	args := m.Called(ctx, tenantID, policy)
	return args.Error(0)
}

// ===========================================
// Test Fixtures
// ===========================================

func newTestRateService(repo repository.RateRepositoryInterface) *RateService {
	return NewRateService(repo, nil, logrus.New())
}

func testZone(name, carrierID string, price int64) *models.ShippingZone {
	return &models.ShippingZone{
		ID:       uuid.New(),
		TenantID: "tenant-123",
		Name:     name,
		Cities:   models.StringArray{name},
		IsActive: true,
		Carriers: []models.ZoneCarrier{
			{
				ID:                   uuid.New(),
				CarrierID:            carrierID,
				CarrierName:          "Yalidine Express",
				Price:                decimal.NewFromInt(price),
				DeliveryTimeEstimate: "24-48h",
				IsActive:             true,
			},
		},
	}
}

func testRule(zoneID uuid.UUID, carrierID string, min, max float64, price int64) models.ShippingRateRule {
	return models.ShippingRateRule{
		ID:        uuid.New(),
		TenantID:  "tenant-123",
		ZoneID:    zoneID,
		CarrierID: carrierID,
		WeightMin: min,
		WeightMax: max,
		Price:     decimal.NewFromInt(price),
		IsActive:  true,
	}
}

func testPolicy(threshold int64, maxWeight float64) *models.ShippingPolicy {
	return &models.ShippingPolicy{
		ID:                    uuid.New(),
		TenantID:              "tenant-123",
		FreeShippingThreshold: decimal.NewFromInt(threshold),
		MaxWeight:             maxWeight,
	}
}

// ===========================================
// Rate Rule Tests
// ===========================================

func TestUpsertRule_OverlapRejected(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	existing := testRule(zone.ID, "yalidine", 1, 3, 500)

	mockRepo.On("GetZoneByID", ctx, tenantID, zone.ID).Return(zone, nil)
	mockRepo.On("FindActiveRulesForUpdate", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{existing}, nil)

	_, err := service.UpsertRule(ctx, tenantID, &models.UpsertRateRuleRequest{
		ZoneID:    zone.ID,
		CarrierID: "yalidine",
		WeightMin: 2,
		WeightMax: 5,
		Price:     decimal.NewFromInt(800),
	})

	assert.Error(t, err)
	assert.Equal(t, KindOverlapConflict, KindOf(err))
	mockRepo.AssertNotCalled(t, "SaveRule", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpsertRule_TouchingBandsAllowed(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	existing := testRule(zone.ID, "yalidine", 0, 2, 400)

	mockRepo.On("GetZoneByID", ctx, tenantID, zone.ID).Return(zone, nil)
	mockRepo.On("FindActiveRulesForUpdate", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{existing}, nil)
	mockRepo.On("SaveRule", ctx, tenantID, mock.AnythingOfType("*models.ShippingRateRule")).Return(nil)

	// [0,2) and [2,5) share a boundary but do not overlap
	rule, err := service.UpsertRule(ctx, tenantID, &models.UpsertRateRuleRequest{
		ZoneID:    zone.ID,
		CarrierID: "yalidine",
		WeightMin: 2,
		WeightMax: 5,
		Price:     decimal.NewFromInt(800),
	})

	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rule.ID)
	mockRepo.AssertExpectations(t)
}

func TestUpsertRule_InvalidBounds(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	_, err := service.UpsertRule(ctx, tenantID, &models.UpsertRateRuleRequest{
		ZoneID:    uuid.New(),
		CarrierID: "yalidine",
		WeightMin: 5,
		WeightMax: 5,
		Price:     decimal.NewFromInt(800),
	})

	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	mockRepo.AssertNotCalled(t, "GetZoneByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpsertRule_UpdateExcludesItself(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	existing := testRule(zone.ID, "yalidine", 1, 3, 500)

	mockRepo.On("GetZoneByID", ctx, tenantID, zone.ID).Return(zone, nil)
	mockRepo.On("GetRule", ctx, tenantID, existing.ID).Return(&existing, nil)
	mockRepo.On("FindActiveRulesForUpdate", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{existing}, nil)
	mockRepo.On("SaveRule", ctx, tenantID, mock.AnythingOfType("*models.ShippingRateRule")).Return(nil)

	// Widening a band over its own old extent is not a conflict
	rule, err := service.UpsertRule(ctx, tenantID, &models.UpsertRateRuleRequest{
		ID:        &existing.ID,
		ZoneID:    zone.ID,
		CarrierID: "yalidine",
		WeightMin: 1,
		WeightMax: 4,
		Price:     decimal.NewFromInt(550),
	})

	assert.NoError(t, err)
	assert.Equal(t, existing.ID, rule.ID)
	assert.Equal(t, 4.0, rule.WeightMax)
	mockRepo.AssertExpectations(t)
}

// ===========================================
// Resolution Tests
// ===========================================

func TestResolve_MatchedRule(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	rule := testRule(zone.ID, "yalidine", 0, 5, 800)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Alger").Return(zone, nil)
	mockRepo.On("FindActiveRules", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{rule}, nil)

	resolved, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       2.5,
		CartSubtotal: decimal.NewFromInt(1200),
	})

	assert.NoError(t, err)
	assert.True(t, resolved.Price.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, models.RateReasonMatchedRule, resolved.Reason)
	assert.Equal(t, "24-48h", resolved.DeliveryTimeEstimate)
	assert.NotNil(t, resolved.RuleID)
	assert.Equal(t, rule.ID, *resolved.RuleID)
	mockRepo.AssertExpectations(t)
}

func TestResolve_FreeShippingSkipsZoneLookup(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)

	// Over-threshold carts resolve free even for zones with no bands at all
	resolved, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Tamanrasset",
		CarrierID:    "yalidine",
		Weight:       2,
		CartSubtotal: decimal.NewFromInt(5000),
	})

	assert.NoError(t, err)
	assert.True(t, resolved.Price.IsZero())
	assert.Equal(t, models.RateReasonFreeShipping, resolved.Reason)
	assert.Nil(t, resolved.RuleID)
	mockRepo.AssertNotCalled(t, "GetActiveZoneByName", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_WeightExceedsMax(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)

	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       40,
		CartSubtotal: decimal.NewFromInt(9000),
	})

	assert.Error(t, err)
	assert.Equal(t, KindWeightExceedsMax, KindOf(err))
	// The cap applies even to carts that would qualify for free shipping
	mockRepo.AssertNotCalled(t, "GetActiveZoneByName", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_UnknownZone(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Atlantis").Return(nil, gorm.ErrRecordNotFound)

	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Atlantis",
		CarrierID:    "yalidine",
		Weight:       2,
		CartSubtotal: decimal.NewFromInt(1000),
	})

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestResolve_InactiveCarrierNotServing(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	zone.Carriers[0].IsActive = false

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Alger").Return(zone, nil)

	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       2,
		CartSubtotal: decimal.NewFromInt(1000),
	})

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	mockRepo.AssertNotCalled(t, "FindActiveRules", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_GapBetweenBands(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	rules := []models.ShippingRateRule{
		testRule(zone.ID, "yalidine", 0, 2, 400),
		testRule(zone.ID, "yalidine", 5, 10, 900),
	}

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Alger").Return(zone, nil)
	mockRepo.On("FindActiveRules", ctx, tenantID, zone.ID, "yalidine").Return(rules, nil)

	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       3,
		CartSubtotal: decimal.NewFromInt(1000),
	})

	assert.Error(t, err)
	assert.Equal(t, KindNoApplicableRate, KindOf(err))
}

func TestResolve_UpperBoundExcluded(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	rule := testRule(zone.ID, "yalidine", 0, 5, 800)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(testPolicy(5000, 30), nil)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Alger").Return(zone, nil)
	mockRepo.On("FindActiveRules", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{rule}, nil)

	// Bands are half-open: weight 5 falls outside [0, 5)
	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       5,
		CartSubtotal: decimal.NewFromInt(1000),
	})

	assert.Error(t, err)
	assert.Equal(t, KindNoApplicableRate, KindOf(err))
}

func TestResolve_NoPolicyMeansNoCapAndNoFreeShipping(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	zone := testZone("Alger", "yalidine", 600)
	rule := testRule(zone.ID, "yalidine", 0, 100, 1500)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("GetActiveZoneByName", ctx, tenantID, "Alger").Return(zone, nil)
	mockRepo.On("FindActiveRules", ctx, tenantID, zone.ID, "yalidine").
		Return([]models.ShippingRateRule{rule}, nil)

	resolved, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:         "Alger",
		CarrierID:    "yalidine",
		Weight:       60,
		CartSubtotal: decimal.NewFromInt(1000000),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.RateReasonMatchedRule, resolved.Reason)
	assert.True(t, resolved.Price.Equal(decimal.NewFromInt(1500)))
}

func TestResolve_NonPositiveWeight(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	_, err := service.Resolve(ctx, tenantID, &models.ResolveRateRequest{
		Zone:      "Alger",
		CarrierID: "yalidine",
		Weight:    0,
	})

	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	mockRepo.AssertNotCalled(t, "GetPolicy", mock.Anything, mock.Anything)
}

// ===========================================
// Zone and Policy Tests
// ===========================================

func TestCreateZone_RequiresCities(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	_, err := service.CreateZone(ctx, tenantID, &models.CreateZoneRequest{Name: "Alger"})

	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	mockRepo.AssertNotCalled(t, "CreateZone", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateZone_DuplicateName(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	mockRepo.On("CreateZone", ctx, tenantID, mock.AnythingOfType("*models.ShippingZone")).
		Return(gorm.ErrDuplicatedKey)

	_, err := service.CreateZone(ctx, tenantID, &models.CreateZoneRequest{
		Name:   "Alger",
		Cities: []string{"Alger Centre"},
	})

	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestGetPolicy_FallsBackToZeroPolicy(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	mockRepo.On("GetPolicy", ctx, tenantID).Return(nil, gorm.ErrRecordNotFound)

	policy, err := service.GetPolicy(ctx, tenantID)

	assert.NoError(t, err)
	assert.Equal(t, tenantID, policy.TenantID)
	assert.True(t, policy.FreeShippingThreshold.IsZero())
	assert.Zero(t, policy.MaxWeight)
}

func TestSetPolicy_RejectsNonPositiveMaxWeight(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockRateRepository)
	service := newTestRateService(mockRepo)

	_, err := service.SetPolicy(ctx, tenantID, &models.SetPolicyRequest{
		FreeShippingThreshold: decimal.NewFromInt(5000),
		MaxWeight:             0,
	}, "user-1")

	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	mockRepo.AssertNotCalled(t, "SavePolicy", mock.Anything, mock.Anything, mock.Anything)
}
