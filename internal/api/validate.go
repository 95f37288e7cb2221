package api

import (
	"fmt"

	"dispatchd/internal/model"
)

// Request-shape checks only. Per-order semantics (ids, coordinates,
// lifecycle state) are validated by the engine before anything commits.
func validateAssignRequest(req *model.AssignRequest) error {
	if len(req.Orders) == 0 {
		return fmt.Errorf("orders must not be empty")
	}
	if len(req.PickupPoints) > 0 && len(req.PickupPoints) != len(req.Orders) {
		return fmt.Errorf("pickupPoints must match orders length (%d != %d)", len(req.PickupPoints), len(req.Orders))
	}
	return validateOptions(req.Options)
}

func validateReoptimizeRequest(req *model.ReoptimizeRequest) error {
	if len(req.NewOrders) == 0 && len(req.CurrentAssignments) == 0 {
		return fmt.Errorf("nothing to reoptimize: no new orders and no current assignments")
	}
	if len(req.PickupPoints) > 0 && len(req.PickupPoints) != len(req.NewOrders) {
		return fmt.Errorf("pickupPoints must match newOrders length (%d != %d)", len(req.PickupPoints), len(req.NewOrders))
	}
	for i, a := range req.CurrentAssignments {
		if a.OrderID == "" || a.CourierID == "" {
			return fmt.Errorf("currentAssignments[%d] missing orderId or courierId", i)
		}
	}
	return validateOptions(req.Options)
}

func validateOptions(o *model.Options) error {
	if o == nil {
		return nil
	}
	for name, w := range map[string]*float64{
		"wSla": o.WSLA, "wEta": o.WETA, "wFairD": o.WFairDeliveries, "wFairM": o.WFairTarget, "wIdle": o.WIdle,
	} {
		if w != nil && *w < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if o.MaxEtaToPickupMin != nil && *o.MaxEtaToPickupMin <= 0 {
		return fmt.Errorf("maxEtaToPickupMin must be > 0")
	}
	if o.ChurnHysteresis != nil && *o.ChurnHysteresis < 0 {
		return fmt.Errorf("churnHysteresis must be >= 0")
	}
	if o.SolveTimeoutMs != nil && *o.SolveTimeoutMs <= 0 {
		return fmt.Errorf("solveTimeoutMs must be > 0")
	}
	return nil
}
