package assign

import (
	"testing"

	"dispatchd/internal/model"
)

func TestEligible(t *testing.T) {
	order := model.Order{ServiceType: model.ServiceExpress}
	base := model.Courier{State: model.CourierAvailable}

	if !Eligible(order, base, 10, 40) {
		t.Fatal("available courier within range should be eligible")
	}
	for _, st := range []model.CourierState{model.CourierBusy, model.CourierOffline, model.CourierOnBreak, model.CourierReturning} {
		c := base
		c.State = st
		if Eligible(order, c, 10, 40) {
			t.Fatalf("state %s must not be eligible", st)
		}
	}
	far := base
	if Eligible(order, far, 40.1, 40) {
		t.Fatal("beyond eta cutoff must not be eligible")
	}
	limited := base
	limited.Capabilities = []model.ServiceType{model.ServiceStandard}
	if Eligible(order, limited, 10, 40) {
		t.Fatal("courier without the service capability must not be eligible")
	}
	limited.Capabilities = []model.ServiceType{model.ServiceStandard, model.ServiceExpress}
	if !Eligible(order, limited, 10, 40) {
		t.Fatal("courier with the capability should be eligible")
	}
}

func TestFilterEligible(t *testing.T) {
	order := model.Order{ServiceType: model.ServiceStandard}
	couriers := []model.Courier{
		{ID: "ok", State: model.CourierAvailable, Location: model.GeoPoint{Lng: 10}},
		{ID: "busy", State: model.CourierBusy, Location: model.GeoPoint{Lng: 10}},
		{ID: "far", State: model.CourierAvailable, Location: model.GeoPoint{Lng: 50}},
	}
	got := FilterEligible(order, model.GeoPoint{}, couriers, lngETA{}, 40)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected only index 0 eligible, got %v", got)
	}
}
