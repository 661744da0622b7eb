// Package events provides NATS event publishing for logistics-service
package events

import (
	"context"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"
)

// Logistics event types
const (
	StockAdjusted    = "logistics.stock_adjusted"
	LowStock         = "logistics.low_stock"
	OrderCreated     = "logistics.replenishment_order_created"
	RestockConfirmed = "logistics.restock_confirmed"
	OrderCancelled   = "logistics.replenishment_order_cancelled"
	RateRuleSaved    = "logistics.rate_rule_saved"
	RateRuleDeleted  = "logistics.rate_rule_deleted"
	PolicyUpdated    = "logistics.policy_updated"
)

// LogisticsEvent represents a stock or rate-table event
type LogisticsEvent struct {
	events.BaseEvent
	ProductID     string  `json:"productId,omitempty"`
	SKU           string  `json:"sku,omitempty"`
	ProductName   string  `json:"productName,omitempty"`
	PreviousStock int     `json:"previousStock,omitempty"`
	NewStock      int     `json:"newStock,omitempty"`
	Threshold     int     `json:"threshold,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	OrderID       string  `json:"orderId,omitempty"`
	OrderNumber   string  `json:"orderNumber,omitempty"`
	TotalCost     string  `json:"totalCost,omitempty"`
	ZoneID        string  `json:"zoneId,omitempty"`
	CarrierID     string  `json:"carrierId,omitempty"`
	RuleID        string  `json:"ruleId,omitempty"`
	WeightMin     float64 `json:"weightMin,omitempty"`
	WeightMax     float64 `json:"weightMax,omitempty"`
	ActorID       string  `json:"actorId,omitempty"`
}

func (e *LogisticsEvent) GetSubject() string {
	return e.EventType
}

func (e *LogisticsEvent) GetStream() string {
	return "LOGISTICS_EVENTS"
}

// Publisher wraps the shared events publisher for logistics-specific events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new logistics events publisher
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "logistics-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publisher.EnsureStream(ctx, "LOGISTICS_EVENTS", []string{"logistics.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure LOGISTICS_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishStockAdjusted publishes a stock adjustment event
func (p *Publisher) PublishStockAdjusted(ctx context.Context, tenantID, productID, sku, productName string, previousStock, newStock int, reason, actorID string) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: StockAdjusted,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		ProductID:     productID,
		SKU:           sku,
		ProductName:   productName,
		PreviousStock: previousStock,
		NewStock:      newStock,
		Reason:        reason,
		ActorID:       actorID,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishLowStock publishes an alert when a product sinks to its threshold
func (p *Publisher) PublishLowStock(ctx context.Context, tenantID, productID, sku, productName string, newStock, threshold int) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: LowStock,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		ProductID:   productID,
		SKU:         sku,
		ProductName: productName,
		NewStock:    newStock,
		Threshold:   threshold,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishOrderCreated publishes a replenishment order created event
func (p *Publisher) PublishOrderCreated(ctx context.Context, tenantID, orderID, orderNumber, totalCost, actorID string) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: OrderCreated,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     orderID,
		OrderNumber: orderNumber,
		TotalCost:   totalCost,
		ActorID:     actorID,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishRestockConfirmed publishes a restock confirmation event
func (p *Publisher) PublishRestockConfirmed(ctx context.Context, tenantID, productID, sku, orderID string, previousStock, newStock int) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: RestockConfirmed,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		ProductID:     productID,
		SKU:           sku,
		OrderID:       orderID,
		PreviousStock: previousStock,
		NewStock:      newStock,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishOrderCancelled publishes a replenishment order cancellation event
func (p *Publisher) PublishOrderCancelled(ctx context.Context, tenantID, orderID, orderNumber, actorID string) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: OrderCancelled,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     orderID,
		OrderNumber: orderNumber,
		ActorID:     actorID,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishRateRuleSaved publishes a rate rule create/update event
func (p *Publisher) PublishRateRuleSaved(ctx context.Context, tenantID, ruleID, zoneID, carrierID string, weightMin, weightMax float64) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: RateRuleSaved,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		RuleID:    ruleID,
		ZoneID:    zoneID,
		CarrierID: carrierID,
		WeightMin: weightMin,
		WeightMax: weightMax,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishRateRuleDeleted publishes a rate rule deletion event
func (p *Publisher) PublishRateRuleDeleted(ctx context.Context, tenantID, ruleID, zoneID, carrierID string) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: RateRuleDeleted,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		RuleID:    ruleID,
		ZoneID:    zoneID,
		CarrierID: carrierID,
	}

	return p.publisher.Publish(ctx, event)
}

// PublishPolicyUpdated publishes a shipping policy change event
func (p *Publisher) PublishPolicyUpdated(ctx context.Context, tenantID, actorID string) error {
	event := &LogisticsEvent{
		BaseEvent: events.BaseEvent{
			EventType: PolicyUpdated,
			TenantID:  tenantID,
			Timestamp: time.Now().UTC(),
		},
		ActorID: actorID,
	}

	return p.publisher.Publish(ctx, event)
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	p.publisher.Close()
}
