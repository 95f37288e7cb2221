package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dispatchd/internal/assign"
	"dispatchd/internal/model"
)

// Server holds process-level settings resolved from the environment.
// Call godotenv.Load before FromEnv so a local .env is picked up.
type Server struct {
	Port               string
	DatabaseURL        string
	RedisURL           string
	EngineConfigPath   string
	RateRPS            float64
	RateBurst          int
	WebhookMaxAttempts int
}

func FromEnv() Server {
	return Server{
		Port:               envOr("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		EngineConfigPath:   os.Getenv("ENGINE_CONFIG"),
		RateRPS:            envFloat("RATE_RPS", 50),
		RateBurst:          envInt("RATE_BURST", 100),
		WebhookMaxAttempts: envInt("WEBHOOK_MAX_ATTEMPTS", 10),
	}
}

// engineFile mirrors assign.Config with a millisecond timeout field so
// the YAML stays plain numbers.
type engineFile struct {
	Weights           *assign.Weights    `yaml:"weights"`
	MaxEtaToPickupMin *float64           `yaml:"maxEtaToPickupMin"`
	SLASoftSlackMin   *float64           `yaml:"slaSoftSlackMin"`
	IdleThresholdMin  *float64           `yaml:"idleThresholdMin"`
	RiskWindowMin     *float64           `yaml:"riskWindowMin"`
	CriticalWindowMin *float64           `yaml:"criticalWindowMin"`
	ChurnHysteresis   *float64           `yaml:"churnHysteresis"`
	SolveTimeoutMs    *int               `yaml:"solveTimeoutMs"`
	SpeedKph          *float64           `yaml:"speedKph"`
	SLATargetMin      map[string]float64 `yaml:"slaTargetMin"`
}

// LoadEngine returns the engine defaults overlaid with the YAML file at
// path. An empty path returns the defaults unchanged.
func LoadEngine(path string) (assign.Config, error) {
	cfg := assign.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	var f engineFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return cfg, fmt.Errorf("parse engine config: %w", err)
	}
	if f.Weights != nil {
		cfg.Weights = *f.Weights
	}
	if f.MaxEtaToPickupMin != nil {
		cfg.MaxEtaToPickupMin = *f.MaxEtaToPickupMin
	}
	if f.SLASoftSlackMin != nil {
		cfg.SLASoftSlackMin = *f.SLASoftSlackMin
	}
	if f.IdleThresholdMin != nil {
		cfg.IdleThresholdMin = *f.IdleThresholdMin
	}
	if f.RiskWindowMin != nil {
		cfg.RiskWindowMin = *f.RiskWindowMin
	}
	if f.CriticalWindowMin != nil {
		cfg.CriticalWindowMin = *f.CriticalWindowMin
	}
	if f.ChurnHysteresis != nil {
		cfg.ChurnHysteresis = *f.ChurnHysteresis
	}
	if f.SolveTimeoutMs != nil {
		cfg.SolveTimeout = time.Duration(*f.SolveTimeoutMs) * time.Millisecond
	}
	if f.SpeedKph != nil {
		cfg.SpeedKph = *f.SpeedKph
	}
	for k, v := range f.SLATargetMin {
		cfg.SLATargetMin[model.ServiceType(k)] = v
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
