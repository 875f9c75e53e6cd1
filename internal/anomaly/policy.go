package anomaly

import (
	"strings"
	"time"

	"supply-daddy-api-server/config"
)

const DefaultCategory = "default"

// Policy holds the safe operating envelope for one product category.
// WeightTolerance is a fraction of the baseline weight (0.02 = 2%).
type Policy struct {
	TempMin         float64
	TempMax         float64
	HumidityMin     float64
	HumidityMax     float64
	WeightTolerance float64
	MaxDelay        time.Duration
}

// Config carries the per-category policies and the severity band thresholds.
type Config struct {
	Policies map[string]Policy

	// Temperature deviation is measured as a fraction of the allowed range.
	TempHighRatio     float64
	TempCriticalRatio float64

	// HumidityBands are the upper bounds of the LOW, MEDIUM and HIGH bands,
	// as a fraction over the limit. Anything above the last is CRITICAL.
	HumidityBands [3]float64

	// Weight and delay severities scale with multiples of the tolerance
	// (or of the allowed delay).
	WeightHighMultiple     float64
	WeightCriticalMultiple float64
	DelayHighMultiple      float64
	DelayCriticalMultiple  float64
}

func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"pharmaceutical": {
			TempMin: 2, TempMax: 8,
			HumidityMin: 0, HumidityMax: 60,
			WeightTolerance: 0.02,
			MaxDelay:        6 * time.Hour,
		},
		"food_grain": {
			TempMin: 10, TempMax: 35,
			HumidityMin: 0, HumidityMax: 100,
			WeightTolerance: 0.05,
			MaxDelay:        24 * time.Hour,
		},
		"lithium_battery": {
			TempMin: -10, TempMax: 30,
			HumidityMin: 0, HumidityMax: 100,
			WeightTolerance: 0.01,
			MaxDelay:        12 * time.Hour,
		},
		"electronics": {
			TempMin: 0, TempMax: 40,
			HumidityMin: 0, HumidityMax: 70,
			WeightTolerance: 0.03,
			MaxDelay:        48 * time.Hour,
		},
		DefaultCategory: {
			TempMin: -20, TempMax: 50,
			HumidityMin: 0, HumidityMax: 100,
			WeightTolerance: 0.10,
			MaxDelay:        72 * time.Hour,
		},
	}
}

func DefaultConfig() Config {
	return Config{
		Policies:               DefaultPolicies(),
		TempHighRatio:          0.5,
		TempCriticalRatio:      1.0,
		HumidityBands:          [3]float64{0.1, 0.25, 0.5},
		WeightHighMultiple:     2,
		WeightCriticalMultiple: 4,
		DelayHighMultiple:      2,
		DelayCriticalMultiple:  4,
	}
}

// ConfigFrom overlays the loaded risk settings on DefaultConfig. Zero values
// keep the default.
func ConfigFrom(rc config.RiskConfig) Config {
	cfg := DefaultConfig()
	for name, p := range rc.Policies {
		cfg.Policies[strings.ToLower(name)] = Policy{
			TempMin:         p.TempMin,
			TempMax:         p.TempMax,
			HumidityMin:     p.HumidityMin,
			HumidityMax:     p.HumidityMax,
			WeightTolerance: p.WeightTolerance,
			MaxDelay:        p.MaxDelay,
		}
	}
	setIfPositive(&cfg.TempHighRatio, rc.TempHighRatio)
	setIfPositive(&cfg.TempCriticalRatio, rc.TempCriticalRatio)
	setIfPositive(&cfg.WeightHighMultiple, rc.WeightHighMultiple)
	setIfPositive(&cfg.WeightCriticalMultiple, rc.WeightCriticalMultiple)
	setIfPositive(&cfg.DelayHighMultiple, rc.DelayHighMultiple)
	setIfPositive(&cfg.DelayCriticalMultiple, rc.DelayCriticalMultiple)
	if len(rc.HumidityBands) == 3 {
		copy(cfg.HumidityBands[:], rc.HumidityBands)
	}
	return cfg
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// PolicyFor returns the policy for category, falling back to "default".
func (c Config) PolicyFor(category string) Policy {
	if p, ok := c.Policies[strings.ToLower(category)]; ok {
		return p
	}
	if p, ok := c.Policies[DefaultCategory]; ok {
		return p
	}
	return DefaultPolicies()[DefaultCategory]
}
