package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatchd/internal/model"
)

func sortDrivers(ds []model.Courier) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
}

func sortOrders(os []model.Order) {
	sort.Slice(os, func(i, j int) bool {
		if !os[i].SLADeadline.Equal(os[j].SLADeadline) {
			return os[i].SLADeadline.Before(os[j].SLADeadline)
		}
		return os[i].ID < os[j].ID
	})
}

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	drivers     map[string]model.Courier
	orders      map[string]model.Order
	assignments []model.Assignment
	engineCfg   map[string]any
	subs        map[string]model.Subscription
	deliveries  map[string]*memDelivery
}

func NewMemory() *Memory {
	return &Memory{
		drivers:    map[string]model.Courier{},
		orders:     map[string]model.Order{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) UpsertDrivers(ctx context.Context, drivers []model.Courier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range drivers {
		if d.ID == "" {
			continue
		}
		if d.State == "" {
			d.State = model.CourierAvailable
		}
		m.drivers[d.ID] = d
		n++
	}
	return n, nil
}

func (m *Memory) ListDrivers(ctx context.Context, state model.CourierState, serviceType model.ServiceType) ([]model.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Courier{}
	for _, d := range m.drivers {
		if state != "" && d.State != state {
			continue
		}
		if serviceType != "" && !d.CanServe(serviceType) {
			continue
		}
		out = append(out, d)
	}
	sortDrivers(out)
	return out, nil
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Courier{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpdateDriverStatus(ctx context.Context, id string, status model.CourierState, loc *model.GeoPoint) (model.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		d = model.Courier{ID: id}
	}
	d.State = status
	if loc != nil {
		d.Location = *loc
	}
	m.drivers[id] = d
	return d, nil
}

func (m *Memory) SetDriverTargets(ctx context.Context, targets []model.DriverTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range targets {
		d, ok := m.drivers[t.DriverID]
		if !ok {
			d = model.Courier{ID: t.DriverID, State: model.CourierOffline}
		}
		d.DailyTarget = t.DailyTarget
		m.drivers[t.DriverID] = d
	}
	return nil
}

func (m *Memory) ResetDailyCounters(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.drivers {
		d.DeliveriesToday = 0
		d.IdleMinutes = 0
		d.LastAssignedAt = nil
		m.drivers[id] = d
	}
	return nil
}

func (m *Memory) IncrementDeliveries(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	d.DeliveriesToday++
	m.drivers[driverID] = d
	return nil
}

func (m *Memory) UpsertOrders(ctx context.Context, orders []model.Order) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.Status == "" {
			o.Status = model.OrderPending
		}
		m.orders[o.ID] = o
		n++
	}
	return n, nil
}

func (m *Memory) ListPendingOrders(ctx context.Context, serviceType model.ServiceType, limit int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 500
	}
	out := []model.Order{}
	for _, o := range m.orders {
		if o.Status != model.OrderPending {
			continue
		}
		if serviceType != "" && o.ServiceType != serviceType {
			continue
		}
		out = append(out, o)
	}
	sortOrders(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, courierID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	o.Status = status
	if courierID != "" {
		o.CourierID = courierID
	}
	m.orders[id] = o
	return o, nil
}

func (m *Memory) SaveAssignments(ctx context.Context, assignments []model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, assignments...)
	return nil
}

func (m *Memory) ListAssignments(ctx context.Context, cycleID string, limit int) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 500
	}
	out := []model.Assignment{}
	for i := len(m.assignments) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.assignments[i]
		if cycleID != "" && a.CycleID != cycleID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) GetEngineConfig(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engineCfg == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m.engineCfg))
	for k, v := range m.engineCfg {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveEngineConfig(ctx context.Context, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineCfg = cfg
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: "sub_" + uuid.New().String()[:8], URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[sub.ID] = sub
	return sub, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs {
		s.Secret = ""
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "whd_" + uuid.New().String()[:8]
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, SubscriptionID: subscriptionID, EventType: eventType,
			URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
