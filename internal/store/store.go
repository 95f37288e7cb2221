package store

import (
	"context"
	"errors"
	"time"

	"dispatchd/internal/model"
)

// Store is the persistence interface used by the API server. Driver and
// order records are snapshots owned by their external services; the
// engine reads them at cycle start and only writes driver state through
// UpdateDriverStatus reconciliation.
type Store interface {
	// Drivers
	UpsertDrivers(ctx context.Context, drivers []model.Courier) (int, error)
	ListDrivers(ctx context.Context, state model.CourierState, serviceType model.ServiceType) ([]model.Courier, error)
	GetDriver(ctx context.Context, id string) (model.Courier, error)
	UpdateDriverStatus(ctx context.Context, id string, status model.CourierState, loc *model.GeoPoint) (model.Courier, error)
	SetDriverTargets(ctx context.Context, targets []model.DriverTarget) error
	ResetDailyCounters(ctx context.Context) error
	IncrementDeliveries(ctx context.Context, driverID string) error

	// Orders
	UpsertOrders(ctx context.Context, orders []model.Order) (int, error)
	ListPendingOrders(ctx context.Context, serviceType model.ServiceType, limit int) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, courierID string) (model.Order, error)

	// Assignment history
	SaveAssignments(ctx context.Context, assignments []model.Assignment) error
	ListAssignments(ctx context.Context, cycleID string, limit int) ([]model.Assignment, error)

	// Engine config overrides, persisted per deployment
	GetEngineConfig(ctx context.Context) (map[string]any, error)
	SaveEngineConfig(ctx context.Context, cfg map[string]any) error

	// Webhook subscriptions and delivery queue
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
