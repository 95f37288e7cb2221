package model

import "time"

// Core domain types for the assignment engine.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ServiceType is the order's service tier. Each tier carries its own SLA
// target duration (see config.SLATargets).
type ServiceType string

const (
	ServiceExpress  ServiceType = "express"
	ServiceStandard ServiceType = "standard"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool { return s == OrderDelivered || s == OrderCancelled }

type Order struct {
	ID          string      `json:"id"`
	Pickup      GeoPoint    `json:"pickup"`
	Dropoff     GeoPoint    `json:"dropoff"`
	ServiceType ServiceType `json:"serviceType"`
	CreatedAt   time.Time   `json:"createdAt"`
	// SLADeadline is fixed at creation (createdAt + service-type target)
	// and never changes afterwards.
	SLADeadline time.Time   `json:"slaDeadline"`
	Status      OrderStatus `json:"status"`
	CourierID   string      `json:"courierId,omitempty"`
}

type CourierState string

const (
	CourierAvailable CourierState = "available"
	CourierBusy      CourierState = "busy"
	CourierOnBreak   CourierState = "on_break"
	CourierOffline   CourierState = "offline"
	CourierReturning CourierState = "returning"
)

// ValidCourierState reports whether s is one of the known states.
func ValidCourierState(s CourierState) bool {
	switch s {
	case CourierAvailable, CourierBusy, CourierOnBreak, CourierOffline, CourierReturning:
		return true
	}
	return false
}

type Courier struct {
	ID              string        `json:"id"`
	Location        GeoPoint      `json:"location"`
	State           CourierState  `json:"state"`
	Capabilities    []ServiceType `json:"capabilities,omitempty"`
	DailyTarget     int           `json:"dailyTarget,omitempty"`
	DeliveriesToday int           `json:"deliveriesToday,omitempty"`
	IdleMinutes     float64       `json:"idleMinutes,omitempty"`
	LastAssignedAt  *time.Time    `json:"lastAssignedAt,omitempty"`
}

// CanServe reports whether the courier's capability set includes the
// service type. An empty capability set means all types.
func (c Courier) CanServe(t ServiceType) bool {
	if len(c.Capabilities) == 0 {
		return true
	}
	for _, ct := range c.Capabilities {
		if ct == t {
			return true
		}
	}
	return false
}

// Assignment pairs an order with a courier for one solver cycle.
type Assignment struct {
	OrderID     string    `json:"orderId"`
	CourierID   string    `json:"courierId"`
	Cost        float64   `json:"cost"`
	CycleID     string    `json:"cycleId"`
	CommittedAt time.Time `json:"committedAt"`
}

// UnassignedOrder is an order the cycle could not place. It is a normal
// result, not an error; the order is carried to the next cycle.
type UnassignedOrder struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// Options are per-invocation engine overrides. Pointer fields so absent
// keys fall through to the configured defaults.
type Options struct {
	WSLA              *float64 `json:"wSla,omitempty"`
	WETA              *float64 `json:"wEta,omitempty"`
	WFairDeliveries   *float64 `json:"wFairD,omitempty"`
	WFairTarget       *float64 `json:"wFairM,omitempty"`
	WIdle             *float64 `json:"wIdle,omitempty"`
	MaxEtaToPickupMin *float64 `json:"maxEtaToPickupMin,omitempty"`
	SLASoftSlackMin   *float64 `json:"slaSoftSlackMin,omitempty"`
	IdleThresholdMin  *float64 `json:"idleThresholdMin,omitempty"`
	ChurnHysteresis   *float64 `json:"churnHysteresis,omitempty"`
	SolveTimeoutMs    *int     `json:"solveTimeoutMs,omitempty"`
	DryRun            *bool    `json:"dryRun,omitempty"`
}

type AssignRequest struct {
	Orders       []Order    `json:"orders"`
	Couriers     []Courier  `json:"couriers"`
	PickupPoints []GeoPoint `json:"pickupPoints,omitempty"` // optional per-order pickup overrides
	Options      *Options   `json:"options,omitempty"`
}

type ReoptimizeRequest struct {
	CurrentAssignments []Assignment `json:"currentAssignments"`
	NewOrders          []Order      `json:"newOrders"`
	Couriers           []Courier    `json:"couriers"`
	PickupPoints       []GeoPoint   `json:"pickupPoints,omitempty"`
	Options            *Options     `json:"options,omitempty"`
}

type AssignResponse struct {
	CycleID     string            `json:"cycleId"`
	Assignments []Assignment      `json:"assignments"`
	Unassigned  []UnassignedOrder `json:"unassigned"`
	DryRun      bool              `json:"dryRun,omitempty"`
}

// RiskLevel classifies time-to-breach severity.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "normal"
	RiskAtRisk   RiskLevel = "at_risk"
	RiskCritical RiskLevel = "critical"
	RiskBreached RiskLevel = "breached"
)

type OrderRisk struct {
	OrderID          string    `json:"orderId"`
	RemainingMinutes float64   `json:"remainingMinutes"`
	Urgency          RiskLevel `json:"urgency"`
}

type AtRiskResponse struct {
	Orders  []OrderRisk       `json:"orders"`
	Summary map[RiskLevel]int `json:"summary"`
}

// DriverTarget sets a courier's daily delivery target.
type DriverTarget struct {
	DriverID    string `json:"driverId"`
	DailyTarget int    `json:"dailyTarget"`
}

type TargetStatus struct {
	DriverID    string  `json:"driverId"`
	DailyTarget int     `json:"dailyTarget"`
	Delivered   int     `json:"delivered"`
	Achieved    bool    `json:"achieved"`
	GapRatio    float64 `json:"gapRatio"` // fraction of target still unmet, 0 when achieved
}

type DriverStatusUpdate struct {
	Status   CourierState `json:"status"`
	Location *GeoPoint    `json:"location,omitempty"`
}

// Webhook subscription models.

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
