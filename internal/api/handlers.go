package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"dispatchd/internal/assign"
	"dispatchd/internal/buildinfo"
	"dispatchd/internal/metrics"
	"dispatchd/internal/model"
	"dispatchd/internal/store"
)

// AssignDynamicHandler handles POST /v1/assignments/dynamic
func (s *Server) AssignDynamicHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateAssignRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid assign request", err.Error(), r.URL.Path)
		return
	}
	resp, err := s.Engine.AssignDynamic(r.Context(), req)
	if err != nil {
		writeEngineError(w, err, r.URL.Path)
		return
	}
	s.recordCycle(r.Context(), resp)
	writeJSON(w, http.StatusOK, resp)
}

// ReoptimizeHandler handles POST /v1/assignments/reoptimize
func (s *Server) ReoptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ReoptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateReoptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid reoptimize request", err.Error(), r.URL.Path)
		return
	}
	resp, err := s.Engine.Reoptimize(r.Context(), req)
	if err != nil {
		writeEngineError(w, err, r.URL.Path)
		return
	}
	s.recordCycle(r.Context(), resp)
	writeJSON(w, http.StatusOK, resp)
}

// recordCycle persists committed pairs and updates solver metrics after
// a successful cycle.
func (s *Server) recordCycle(ctx context.Context, resp model.AssignResponse) {
	if !resp.DryRun && len(resp.Assignments) > 0 {
		_ = s.Store.SaveAssignments(ctx, resp.Assignments)
		for _, a := range resp.Assignments {
			_, _ = s.Store.UpdateOrderStatus(ctx, a.OrderID, model.OrderAssigned, a.CourierID)
		}
	}
	outcome := "completed"
	if resp.DryRun {
		outcome = "dry_run"
	}
	metrics.Cycles.WithLabelValues(outcome).Inc()
	metrics.AssignmentsCommitted.WithLabelValues("new").Add(float64(len(resp.Assignments)))
	for _, u := range resp.Unassigned {
		metrics.OrdersUnassigned.WithLabelValues(u.Reason).Inc()
	}
	if recs := s.Engine.History().Recent(1); len(recs) > 0 && recs[0].CycleID == resp.CycleID {
		metrics.CycleDuration.Observe(recs[0].Duration.Seconds())
		n := recs[0].Orders
		if recs[0].Couriers > n {
			n = recs[0].Couriers
		}
		metrics.MatrixSize.Observe(float64(n))
	}
}

// AssignmentsHandler handles GET /v1/assignments (current committed set,
// or historical by ?cycleId=)
func (s *Server) AssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if cycleID := r.URL.Query().Get("cycleId"); cycleID != "" {
		limit := 500
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListAssignments(r.Context(), cycleID, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List assignments failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Engine.Assignments()})
}

// AtRiskHandler handles GET /v1/orders/at-risk (pending orders from the
// store) and POST with an explicit order list.
func (s *Server) AtRiskHandler(w http.ResponseWriter, r *http.Request) {
	mon := assign.NewRiskMonitor(s.Engine.Config())
	var orders []model.Order
	switch r.Method {
	case http.MethodGet:
		var err error
		orders, err = s.Store.ListPendingOrders(r.Context(), "", 0)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
			return
		}
	case http.MethodPost:
		var req struct {
			Orders []model.Order `json:"orders"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		orders = req.Orders
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := mon.AtRiskOrders(orders, time.Now().UTC())
	for _, lvl := range []model.RiskLevel{model.RiskAtRisk, model.RiskCritical, model.RiskBreached} {
		metrics.OrdersAtRisk.WithLabelValues(string(lvl)).Set(float64(resp.Summary[lvl]))
	}
	if n := resp.Summary[model.RiskCritical] + resp.Summary[model.RiskBreached]; n > 0 {
		evt := Event{Type: "sla.at_risk", Data: map[string]any{
			"critical": resp.Summary[model.RiskCritical],
			"breached": resp.Summary[model.RiskBreached],
			"atRisk":   resp.Summary[model.RiskAtRisk],
		}}
		s.Broker.Publish(TopicOrders, evt)
		s.Pub.Emit(r.Context(), evt.Type, evt.Data)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DriversHandler handles GET/POST /v1/drivers
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state := model.CourierState(r.URL.Query().Get("state"))
		if state != "" && !model.ValidCourierState(state) {
			writeProblem(w, http.StatusBadRequest, "Invalid state filter", string(state), r.URL.Path)
			return
		}
		svc := model.ServiceType(r.URL.Query().Get("serviceType"))
		items, err := s.Store.ListDrivers(r.Context(), state, svc)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List drivers failed", err.Error(), r.URL.Path)
			return
		}
		// With a pickup hint the list comes back nearest first.
		if latS, lngS := r.URL.Query().Get("pickupLat"), r.URL.Query().Get("pickupLng"); latS != "" && lngS != "" {
			lat, errLat := strconv.ParseFloat(latS, 64)
			lng, errLng := strconv.ParseFloat(lngS, 64)
			if errLat != nil || errLng != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid pickup hint", "pickupLat and pickupLng must be numbers", r.URL.Path)
				return
			}
			hint := model.GeoPoint{Lat: lat, Lng: lng}
			eta := assign.HaversineETA{SpeedKph: s.Engine.Config().SpeedKph}
			sort.SliceStable(items, func(i, j int) bool {
				return eta.ETAMinutes(items[i].Location, hint) < eta.ETAMinutes(items[j].Location, hint)
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req struct {
			Drivers []model.Courier `json:"drivers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		n, err := s.Store.UpsertDrivers(r.Context(), req.Drivers)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Upsert drivers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// DriverByIDHandler handles /v1/drivers/{id} and /v1/drivers/{id}/status
func (s *Server) DriverByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/drivers/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 && parts[1] == "status" {
		s.updateDriverStatus(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d, err := s.Store.GetDriver(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Driver not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get driver failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) updateDriverStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var upd model.DriverStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if !model.ValidCourierState(upd.Status) {
		writeProblem(w, http.StatusBadRequest, "Invalid status", string(upd.Status), r.URL.Path)
		return
	}
	d, err := s.Store.UpdateDriverStatus(r.Context(), id, upd.Status, upd.Location)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Update status failed", err.Error(), r.URL.Path)
		return
	}
	// Reconcile the engine's provisional hold. Becoming available after
	// a delivery completes the order and bumps the courier's daily count.
	now := time.Now().UTC()
	switch upd.Status {
	case model.CourierAvailable:
		s.Engine.ReleaseCourier(id, true, now)
		_ = s.Store.IncrementDeliveries(r.Context(), id)
	case model.CourierOffline, model.CourierOnBreak:
		s.Engine.ReleaseCourier(id, false, now)
	}
	s.Broker.Publish(TopicAssignments, Event{Type: "driver.status", Data: map[string]any{
		"driverId": id, "status": string(upd.Status), "ts": now.Format(time.RFC3339),
	}})
	writeJSON(w, http.StatusOK, d)
}

// DriverTargetsHandler handles PUT /v1/drivers/targets and its
// achievement/reset subpaths.
func (s *Server) DriverTargetsHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/drivers/targets" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		var req struct {
			Targets []model.DriverTarget `json:"targets"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for i, t := range req.Targets {
			if t.DriverID == "" {
				writeProblem(w, http.StatusBadRequest, "Invalid target", fmt.Sprintf("targets[%d] missing driverId", i), r.URL.Path)
				return
			}
			if t.DailyTarget < 0 {
				writeProblem(w, http.StatusBadRequest, "Invalid target", fmt.Sprintf("targets[%d] dailyTarget must be >= 0", i), r.URL.Path)
				return
			}
		}
		if err := s.Store.SetDriverTargets(r.Context(), req.Targets); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Set targets failed", err.Error(), r.URL.Path)
			return
		}
		s.Engine.Fairness().SetTargets(req.Targets)
		writeJSON(w, http.StatusOK, map[string]int{"updated": len(req.Targets)})
	case r.URL.Path == "/v1/drivers/targets/achievement" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Engine.Fairness().TargetStatuses()})
	case r.URL.Path == "/v1/drivers/targets/reset" && r.Method == http.MethodPost:
		if err := s.Store.ResetDailyCounters(r.Context()); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Reset failed", err.Error(), r.URL.Path)
			return
		}
		s.Engine.Fairness().ResetDaily(time.Now().UTC())
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Orders []model.Order `json:"orders"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		cfg := s.Engine.Config()
		now := time.Now().UTC()
		for i := range req.Orders {
			o := &req.Orders[i]
			if o.ServiceType == "" {
				o.ServiceType = model.ServiceStandard
			}
			if o.CreatedAt.IsZero() {
				o.CreatedAt = now
			}
			if o.SLADeadline.IsZero() {
				o.SLADeadline = o.CreatedAt.Add(time.Duration(cfg.SLATargetMin[o.ServiceType] * float64(time.Minute)))
			}
		}
		n, err := s.Store.UpsertOrders(r.Context(), req.Orders)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Upsert orders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
	case http.MethodGet:
		svc := model.ServiceType(r.URL.Query().Get("serviceType"))
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListPendingOrders(r.Context(), svc, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OrderStatusHandler handles PATCH /v1/orders/{id}/status
func (s *Server) OrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	if rest == r.URL.Path || !strings.HasSuffix(rest, "/status") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSuffix(rest, "/status")
	var req struct {
		Status    model.OrderStatus `json:"status"`
		CourierID string            `json:"courierId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	o, err := s.Store.UpdateOrderStatus(r.Context(), id, req.Status, req.CourierID)
	if err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Order not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Update order failed", err.Error(), r.URL.Path)
		return
	}
	if req.Status.Terminal() {
		s.Engine.RetireOrder(id, time.Now().UTC())
	}
	writeJSON(w, http.StatusOK, o)
}

// engineConfigPatch is the wire shape for engine tuning updates.
type engineConfigPatch struct {
	Weights           *assign.Weights    `json:"weights,omitempty"`
	MaxEtaToPickupMin *float64           `json:"maxEtaToPickupMin,omitempty"`
	SLASoftSlackMin   *float64           `json:"slaSoftSlackMin,omitempty"`
	IdleThresholdMin  *float64           `json:"idleThresholdMin,omitempty"`
	RiskWindowMin     *float64           `json:"riskWindowMin,omitempty"`
	CriticalWindowMin *float64           `json:"criticalWindowMin,omitempty"`
	ChurnHysteresis   *float64           `json:"churnHysteresis,omitempty"`
	SolveTimeoutMs    *int               `json:"solveTimeoutMs,omitempty"`
	SpeedKph          *float64           `json:"speedKph,omitempty"`
	SLATargetMin      map[string]float64 `json:"slaTargetMin,omitempty"`
}

func applyEnginePatch(cfg assign.Config, p engineConfigPatch) assign.Config {
	if p.Weights != nil {
		cfg.Weights = *p.Weights
	}
	if p.MaxEtaToPickupMin != nil {
		cfg.MaxEtaToPickupMin = *p.MaxEtaToPickupMin
	}
	if p.SLASoftSlackMin != nil {
		cfg.SLASoftSlackMin = *p.SLASoftSlackMin
	}
	if p.IdleThresholdMin != nil {
		cfg.IdleThresholdMin = *p.IdleThresholdMin
	}
	if p.RiskWindowMin != nil {
		cfg.RiskWindowMin = *p.RiskWindowMin
	}
	if p.CriticalWindowMin != nil {
		cfg.CriticalWindowMin = *p.CriticalWindowMin
	}
	if p.ChurnHysteresis != nil {
		cfg.ChurnHysteresis = *p.ChurnHysteresis
	}
	if p.SolveTimeoutMs != nil {
		cfg.SolveTimeout = time.Duration(*p.SolveTimeoutMs) * time.Millisecond
	}
	if p.SpeedKph != nil {
		cfg.SpeedKph = *p.SpeedKph
	}
	if len(p.SLATargetMin) > 0 {
		m := map[model.ServiceType]float64{}
		for k, v := range cfg.SLATargetMin {
			m[k] = v
		}
		for k, v := range p.SLATargetMin {
			m[model.ServiceType(k)] = v
		}
		cfg.SLATargetMin = m
	}
	return cfg
}

// overlayEngineConfig re-applies a stored raw patch on startup.
func overlayEngineConfig(cfg assign.Config, saved map[string]any) assign.Config {
	raw, err := json.Marshal(saved)
	if err != nil {
		return cfg
	}
	var p engineConfigPatch
	if err := json.Unmarshal(raw, &p); err != nil {
		return cfg
	}
	return applyEnginePatch(cfg, p)
}

// EngineConfigHandler handles GET/PUT /v1/engine/config
func (s *Server) EngineConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.Engine.Config()
		writeJSON(w, http.StatusOK, map[string]any{
			"weights":           cfg.Weights,
			"maxEtaToPickupMin": cfg.MaxEtaToPickupMin,
			"slaSoftSlackMin":   cfg.SLASoftSlackMin,
			"idleThresholdMin":  cfg.IdleThresholdMin,
			"riskWindowMin":     cfg.RiskWindowMin,
			"criticalWindowMin": cfg.CriticalWindowMin,
			"churnHysteresis":   cfg.ChurnHysteresis,
			"solveTimeoutMs":    int(cfg.SolveTimeout / time.Millisecond),
			"speedKph":          cfg.SpeedKph,
			"slaTargetMin":      cfg.SLATargetMin,
		})
	case http.MethodPut:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		body, _ := json.Marshal(raw)
		var p engineConfigPatch
		if err := json.Unmarshal(body, &p); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		cfg := applyEnginePatch(s.Engine.Config(), p)
		if cfg.MaxEtaToPickupMin <= 0 || cfg.SolveTimeout <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid config", "maxEtaToPickupMin and solveTimeoutMs must be > 0", r.URL.Path)
			return
		}
		s.Engine.SetConfig(cfg)
		if err := s.Store.SaveEngineConfig(r.Context(), raw); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save config failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CyclesHandler handles GET /v1/admin/cycles
func (s *Server) CyclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": string(s.Engine.State()),
		"items": s.Engine.History().Recent(limit),
	})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz; checks DB connectivity when using
// the Postgres store.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping() error }
	if pg, ok := s.Store.(pinger); ok {
		if err := pg.Ping(); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
