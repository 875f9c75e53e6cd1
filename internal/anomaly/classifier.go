// Package anomaly turns checkpoint observations into typed, graded anomalies.
// Classification is pure: no I/O, no clock, no randomness.
package anomaly

import (
	"math"
	"sort"
	"time"

	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/models"
)

// Observed is what a scanner reported at a node.
type Observed struct {
	Temperature *float64
	Humidity    *float64
	WeightKg    float64
	ArrivedAt   time.Time
}

// Expected is the baseline the observation is judged against.
type Expected struct {
	Profile         models.RiskProfile
	ExpectedArrival *time.Time
}

// Report is the ordered classification result: integrity anomalies first,
// then by severity, highest first.
type Report struct {
	Anomalies     []models.Anomaly `json:"anomalies"`
	CriticalCount int              `json:"critical_count"`
	// Delay is how late the arrival was against its expected time; zero when
	// on time or without an expectation.
	Delay time.Duration `json:"-"`
}

func (r Report) Critical() bool {
	return r.CriticalCount > 0
}

func (r Report) Empty() bool {
	return len(r.Anomalies) == 0
}

// Has reports whether an anomaly of type t is present.
func (r Report) Has(t models.AnomalyType) bool {
	for _, a := range r.Anomalies {
		if a.AnomalyType == t {
			return true
		}
	}
	return false
}

type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify applies every rule and returns the sorted report.
func (c *Classifier) Classify(obs Observed, exp Expected, hv hashing.Verification) Report {
	policy := c.cfg.PolicyFor(exp.Profile.ProductCategory)
	var out []models.Anomaly

	if !hv.Match {
		out = append(out, models.Anomaly{
			AnomalyType: models.AnomalyDocumentTampered,
			Severity:    models.SeverityCritical,
			Details: map[string]any{
				"expected_hash": hv.ExpectedDigest.String(),
				"current_hash":  hv.CurrentDigest.String(),
				"message":       "document text no longer matches the anchored hash",
			},
		})
	}

	if obs.Temperature != nil {
		if a, ok := c.temperature(*obs.Temperature, policy); ok {
			out = append(out, a)
		}
	}
	if obs.Humidity != nil {
		if a, ok := c.humidity(*obs.Humidity, policy); ok {
			out = append(out, a)
		}
	}
	if a, ok := c.weight(obs.WeightKg, exp.Profile.BaselineWeightKg, policy); ok {
		out = append(out, a)
	}

	var delay time.Duration
	if exp.ExpectedArrival != nil && !obs.ArrivedAt.IsZero() {
		if late := obs.ArrivedAt.Sub(*exp.ExpectedArrival); late > 0 {
			delay = late
			if a, ok := c.delay(late, policy); ok {
				out = append(out, a)
			}
		}
	}

	r := newReport(out)
	r.Delay = delay
	return r
}

// ClassifyDelay grades an explicitly reported delay, as injected by an
// operator, against the category policy.
func (c *Classifier) ClassifyDelay(category string, delay time.Duration) Report {
	var out []models.Anomaly
	if a, ok := c.delay(delay, c.cfg.PolicyFor(category)); ok {
		out = append(out, a)
	}
	r := newReport(out)
	r.Delay = delay
	return r
}

func newReport(anomalies []models.Anomaly) Report {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ai, aj := anomalies[i], anomalies[j]
		if ai.AnomalyType.IsIntegrity() != aj.AnomalyType.IsIntegrity() {
			return ai.AnomalyType.IsIntegrity()
		}
		return ai.Severity.Rank() > aj.Severity.Rank()
	})
	r := Report{Anomalies: anomalies}
	if r.Anomalies == nil {
		r.Anomalies = []models.Anomaly{}
	}
	for _, a := range r.Anomalies {
		if a.Severity == models.SeverityCritical {
			r.CriticalCount++
		}
	}
	return r
}

func (c *Classifier) temperature(t float64, p Policy) (models.Anomaly, bool) {
	if t >= p.TempMin && t <= p.TempMax {
		return models.Anomaly{}, false
	}
	deviation := t - p.TempMax
	if t < p.TempMin {
		deviation = p.TempMin - t
	}
	severity := models.SeverityCritical
	if span := p.TempMax - p.TempMin; span > 0 {
		ratio := deviation / span
		switch {
		case ratio > c.cfg.TempCriticalRatio:
			severity = models.SeverityCritical
		case ratio > c.cfg.TempHighRatio:
			severity = models.SeverityHigh
		default:
			severity = models.SeverityMedium
		}
	}
	return models.Anomaly{
		AnomalyType: models.AnomalyTemperatureBreach,
		Severity:    severity,
		Details: map[string]any{
			"observed_temperature": t,
			"allowed_min":          p.TempMin,
			"allowed_max":          p.TempMax,
			"deviation":            round2(deviation),
		},
	}, true
}

func (c *Classifier) humidity(h float64, p Policy) (models.Anomaly, bool) {
	var over float64
	switch {
	case h > p.HumidityMax:
		over = (h - p.HumidityMax) / math.Max(p.HumidityMax, 1)
	case h < p.HumidityMin:
		over = (p.HumidityMin - h) / math.Max(p.HumidityMin, 1)
	default:
		return models.Anomaly{}, false
	}
	bands := c.cfg.HumidityBands
	severity := models.SeverityCritical
	switch {
	case over <= bands[0]:
		severity = models.SeverityLow
	case over <= bands[1]:
		severity = models.SeverityMedium
	case over <= bands[2]:
		severity = models.SeverityHigh
	}
	return models.Anomaly{
		AnomalyType: models.AnomalyHumidityBreach,
		Severity:    severity,
		Details: map[string]any{
			"observed_humidity": h,
			"allowed_min":       p.HumidityMin,
			"allowed_max":       p.HumidityMax,
			"fraction_over":     round2(over),
		},
	}, true
}

func (c *Classifier) weight(observed, baseline float64, p Policy) (models.Anomaly, bool) {
	if baseline <= 0 {
		return models.Anomaly{}, false
	}
	deviation := math.Abs(observed-baseline) / baseline
	if p.WeightTolerance <= 0 {
		if deviation == 0 {
			return models.Anomaly{}, false
		}
	} else if deviation <= p.WeightTolerance {
		return models.Anomaly{}, false
	}
	severity := models.SeverityCritical
	if p.WeightTolerance > 0 {
		severity = grade(deviation/p.WeightTolerance, c.cfg.WeightHighMultiple, c.cfg.WeightCriticalMultiple)
	}
	return models.Anomaly{
		AnomalyType: models.AnomalyWeightDeviation,
		Severity:    severity,
		Details: map[string]any{
			"observed_weight_kg": observed,
			"expected_weight_kg": baseline,
			"deviation_pct":      round2(deviation * 100),
			"tolerance_pct":      round2(p.WeightTolerance * 100),
		},
	}, true
}

func (c *Classifier) delay(late time.Duration, p Policy) (models.Anomaly, bool) {
	if late <= p.MaxDelay || late <= 0 {
		return models.Anomaly{}, false
	}
	severity := models.SeverityCritical
	if p.MaxDelay > 0 {
		severity = grade(float64(late)/float64(p.MaxDelay), c.cfg.DelayHighMultiple, c.cfg.DelayCriticalMultiple)
	}
	return models.Anomaly{
		AnomalyType: models.AnomalyDelay,
		Severity:    severity,
		Details: map[string]any{
			"delay_hours":       round2(late.Hours()),
			"max_allowed_hours": round2(p.MaxDelay.Hours()),
		},
	}, true
}

// grade maps a multiple of the allowed limit to MEDIUM, HIGH or CRITICAL.
func grade(multiple, high, critical float64) models.Severity {
	switch {
	case multiple > critical:
		return models.SeverityCritical
	case multiple > high:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
