package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dispatchd/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping() error { return p.db.Ping() }

// Migrate creates the schema if missing (dev helper; production uses
// managed migrations).
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drivers (
			id TEXT PRIMARY KEY,
			lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'offline',
			capabilities JSONB,
			daily_target INT NOT NULL DEFAULT 0,
			deliveries_today INT NOT NULL DEFAULT 0,
			idle_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_assigned_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			pickup_lat DOUBLE PRECISION NOT NULL,
			pickup_lng DOUBLE PRECISION NOT NULL,
			dropoff_lat DOUBLE PRECISION NOT NULL,
			dropoff_lng DOUBLE PRECISION NOT NULL,
			service_type TEXT NOT NULL DEFAULT 'standard',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			sla_deadline TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			courier_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, sla_deadline)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			courier_id TEXT NOT NULL,
			cost DOUBLE PRECISION NOT NULL,
			cycle_id TEXT NOT NULL,
			committed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_cycle ON assignments (cycle_id)`,
		`CREATE TABLE IF NOT EXISTS engine_config (
			id INT PRIMARY KEY DEFAULT 1,
			cfg JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			events JSONB NOT NULL,
			secret TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			subscription_id TEXT,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_due ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) UpsertDrivers(ctx context.Context, drivers []model.Courier) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n := 0
	for _, d := range drivers {
		if d.ID == "" {
			continue
		}
		if d.State == "" {
			d.State = model.CourierAvailable
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO drivers (id, lat, lng, state, capabilities, daily_target, deliveries_today, idle_minutes, last_assigned_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET lat=$2, lng=$3, state=$4, capabilities=$5, daily_target=$6, deliveries_today=$7, idle_minutes=$8, last_assigned_at=$9`,
			d.ID, d.Location.Lat, d.Location.Lng, string(d.State), toJSON(d.Capabilities), d.DailyTarget, d.DeliveriesToday, d.IdleMinutes, d.LastAssignedAt)
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, tx.Commit()
}

func (p *Postgres) ListDrivers(ctx context.Context, state model.CourierState, serviceType model.ServiceType) ([]model.Courier, error) {
	q := `SELECT id, lat, lng, state, capabilities, daily_target, deliveries_today, idle_minutes, last_assigned_at FROM drivers`
	args := []any{}
	if state != "" {
		q += ` WHERE state=$1`
		args = append(args, string(state))
	}
	q += ` ORDER BY id`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Courier{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		if serviceType != "" && !d.CanServe(serviceType) {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDriver(ctx context.Context, id string) (model.Courier, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, lat, lng, state, capabilities, daily_target, deliveries_today, idle_minutes, last_assigned_at FROM drivers WHERE id=$1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Courier{}, ErrNotFound
	}
	return d, err
}

func (p *Postgres) UpdateDriverStatus(ctx context.Context, id string, status model.CourierState, loc *model.GeoPoint) (model.Courier, error) {
	var err error
	if loc != nil {
		_, err = p.db.ExecContext(ctx, `INSERT INTO drivers (id, lat, lng, state) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET lat=$2, lng=$3, state=$4`, id, loc.Lat, loc.Lng, string(status))
	} else {
		_, err = p.db.ExecContext(ctx, `INSERT INTO drivers (id, state) VALUES ($1,$2)
			ON CONFLICT (id) DO UPDATE SET state=$2`, id, string(status))
	}
	if err != nil {
		return model.Courier{}, err
	}
	return p.GetDriver(ctx, id)
}

func (p *Postgres) SetDriverTargets(ctx context.Context, targets []model.DriverTarget) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, t := range targets {
		_, err = tx.ExecContext(ctx, `INSERT INTO drivers (id, state, daily_target) VALUES ($1,'offline',$2)
			ON CONFLICT (id) DO UPDATE SET daily_target=$2`, t.DriverID, t.DailyTarget)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ResetDailyCounters(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `UPDATE drivers SET deliveries_today=0, idle_minutes=0, last_assigned_at=NULL`)
	return err
}

func (p *Postgres) IncrementDeliveries(ctx context.Context, driverID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET deliveries_today=deliveries_today+1, last_assigned_at=now() WHERE id=$1`, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertOrders(ctx context.Context, orders []model.Order) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n := 0
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.Status == "" {
			o.Status = model.OrderPending
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, service_type, created_at, sla_deadline, status, courier_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET status=$9, courier_id=$10`,
			o.ID, o.Pickup.Lat, o.Pickup.Lng, o.Dropoff.Lat, o.Dropoff.Lng, string(o.ServiceType), o.CreatedAt, o.SLADeadline, string(o.Status), nullIfEmpty(o.CourierID))
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, tx.Commit()
}

func (p *Postgres) ListPendingOrders(ctx context.Context, serviceType model.ServiceType, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	q := `SELECT id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, service_type, created_at, sla_deadline, status, COALESCE(courier_id,'') FROM orders WHERE status='pending'`
	args := []any{}
	if serviceType != "" {
		q += ` AND service_type=$1 ORDER BY sla_deadline, id LIMIT $2`
		args = append(args, string(serviceType), limit)
	} else {
		q += ` ORDER BY sla_deadline, id LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		var o model.Order
		var st, status string
		if err := rows.Scan(&o.ID, &o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng, &st, &o.CreatedAt, &o.SLADeadline, &status, &o.CourierID); err != nil {
			return nil, err
		}
		o.ServiceType = model.ServiceType(st)
		o.Status = model.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, courierID string) (model.Order, error) {
	var err error
	if courierID != "" {
		_, err = p.db.ExecContext(ctx, `UPDATE orders SET status=$2, courier_id=$3 WHERE id=$1`, id, string(status), courierID)
	} else {
		_, err = p.db.ExecContext(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, id, string(status))
	}
	if err != nil {
		return model.Order{}, err
	}
	row := p.db.QueryRowContext(ctx, `SELECT id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, service_type, created_at, sla_deadline, status, COALESCE(courier_id,'') FROM orders WHERE id=$1`, id)
	var o model.Order
	var st, stat string
	err = row.Scan(&o.ID, &o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng, &st, &o.CreatedAt, &o.SLADeadline, &stat, &o.CourierID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	o.ServiceType = model.ServiceType(st)
	o.Status = model.OrderStatus(stat)
	return o, err
}

func (p *Postgres) SaveAssignments(ctx context.Context, assignments []model.Assignment) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, a := range assignments {
		_, err = tx.ExecContext(ctx, `INSERT INTO assignments (order_id, courier_id, cost, cycle_id, committed_at) VALUES ($1,$2,$3,$4,$5)`,
			a.OrderID, a.CourierID, a.Cost, a.CycleID, a.CommittedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListAssignments(ctx context.Context, cycleID string, limit int) ([]model.Assignment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	q := `SELECT order_id, courier_id, cost, cycle_id, committed_at FROM assignments`
	args := []any{}
	if cycleID != "" {
		q += ` WHERE cycle_id=$1 ORDER BY id DESC LIMIT $2`
		args = append(args, cycleID, limit)
	} else {
		q += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Assignment{}
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.OrderID, &a.CourierID, &a.Cost, &a.CycleID, &a.CommittedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) GetEngineConfig(ctx context.Context) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT cfg FROM engine_config WHERE id=1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveEngineConfig(ctx context.Context, cfg map[string]any) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO engine_config (id, cfg, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET cfg=$1, updated_at=now()`, toJSON(cfg))
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: "sub_" + uuid.New().String()[:8], URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		sub.ID, sub.URL, toJSON(sub.Events), sub.Secret)
	return sub, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &ev, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := "whd_" + uuid.New().String()[:8]
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, COALESCE(subscription_id,''), event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries WHERE status='pending' AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	status := "pending"
	if success {
		status = "delivered"
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	} else {
		next = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status=$2, attempts=attempts+1, next_attempt_at=$3, last_error=$4, response_code=$5, latency_ms=$6 WHERE id=$1`,
		id, status, next, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func scanDriver(row interface{ Scan(...any) error }) (model.Courier, error) {
	var d model.Courier
	var state string
	var caps []byte
	var last sql.NullTime
	if err := row.Scan(&d.ID, &d.Location.Lat, &d.Location.Lng, &state, &caps, &d.DailyTarget, &d.DeliveriesToday, &d.IdleMinutes, &last); err != nil {
		return model.Courier{}, err
	}
	d.State = model.CourierState(state)
	if len(caps) > 0 {
		_ = json.Unmarshal(caps, &d.Capabilities)
	}
	if last.Valid {
		t := last.Time
		d.LastAssignedAt = &t
	}
	return d, nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
