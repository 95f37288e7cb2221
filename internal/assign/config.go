package assign

import (
	"time"

	"dispatchd/internal/model"
)

// Weights are the cost-model term weights. SLA dominates by default;
// fairness and idle terms act as tie-breakers among SLA-equivalent pairs.
type Weights struct {
	SLA            float64 `json:"wSla" yaml:"wSla"`
	ETA            float64 `json:"wEta" yaml:"wEta"`
	FairDeliveries float64 `json:"wFairD" yaml:"wFairD"`
	FairTarget     float64 `json:"wFairM" yaml:"wFairM"`
	Idle           float64 `json:"wIdle" yaml:"wIdle"`
}

func DefaultWeights() Weights {
	return Weights{SLA: 6.0, ETA: 2.0, FairDeliveries: 1.2, FairTarget: 0.8, Idle: 0.8}
}

// Config is the engine's tuning surface. Zero values are filled from
// DefaultConfig; per-invocation model.Options override on top.
type Config struct {
	Weights           Weights       `json:"weights" yaml:"weights"`
	MaxEtaToPickupMin float64       `json:"maxEtaToPickupMin" yaml:"maxEtaToPickupMin"`
	SLASoftSlackMin   float64       `json:"slaSoftSlackMin" yaml:"slaSoftSlackMin"`
	IdleThresholdMin  float64       `json:"idleThresholdMin" yaml:"idleThresholdMin"`
	RiskWindowMin     float64       `json:"riskWindowMin" yaml:"riskWindowMin"`
	CriticalWindowMin float64       `json:"criticalWindowMin" yaml:"criticalWindowMin"`
	ChurnHysteresis   float64       `json:"churnHysteresis" yaml:"churnHysteresis"`
	SolveTimeout      time.Duration `json:"solveTimeout" yaml:"solveTimeout"`
	SpeedKph          float64       `json:"speedKph" yaml:"speedKph"`
	DryRun            bool          `json:"dryRun" yaml:"dryRun"`

	// SLATargetMin supplies deadlines for orders submitted without one.
	SLATargetMin map[model.ServiceType]float64 `json:"slaTargetMin" yaml:"slaTargetMin"`
}

func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		MaxEtaToPickupMin: 40,
		SLASoftSlackMin:   5,
		IdleThresholdMin:  30,
		RiskWindowMin:     15,
		CriticalWindowMin: 5,
		ChurnHysteresis:   0.15,
		SolveTimeout:      2 * time.Second,
		SpeedKph:          30,
		SLATargetMin: map[model.ServiceType]float64{
			model.ServiceExpress:  45,
			model.ServiceStandard: 120,
		},
	}
}

// WithOptions returns a copy of c with the request-level overrides applied.
func (c Config) WithOptions(o *model.Options) Config {
	if o == nil {
		return c
	}
	if o.WSLA != nil {
		c.Weights.SLA = *o.WSLA
	}
	if o.WETA != nil {
		c.Weights.ETA = *o.WETA
	}
	if o.WFairDeliveries != nil {
		c.Weights.FairDeliveries = *o.WFairDeliveries
	}
	if o.WFairTarget != nil {
		c.Weights.FairTarget = *o.WFairTarget
	}
	if o.WIdle != nil {
		c.Weights.Idle = *o.WIdle
	}
	if o.MaxEtaToPickupMin != nil {
		c.MaxEtaToPickupMin = *o.MaxEtaToPickupMin
	}
	if o.SLASoftSlackMin != nil {
		c.SLASoftSlackMin = *o.SLASoftSlackMin
	}
	if o.IdleThresholdMin != nil {
		c.IdleThresholdMin = *o.IdleThresholdMin
	}
	if o.ChurnHysteresis != nil {
		c.ChurnHysteresis = *o.ChurnHysteresis
	}
	if o.SolveTimeoutMs != nil && *o.SolveTimeoutMs > 0 {
		c.SolveTimeout = time.Duration(*o.SolveTimeoutMs) * time.Millisecond
	}
	if o.DryRun != nil {
		c.DryRun = *o.DryRun
	}
	return c
}
