package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-daddy-api-server/config"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/models"
)

var clean = hashing.Verification{Match: true, ExpectedDigest: "aa", CurrentDigest: "aa"}

func pharma(baseline float64) Expected {
	return Expected{Profile: models.RiskProfile{ProductCategory: "pharmaceutical", BaselineWeightKg: baseline}}
}

func TestClassifyWithinEnvelope(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Classify(Observed{
		Temperature: models.Float64(5),
		Humidity:    models.Float64(40),
		WeightKg:    100.5,
	}, pharma(100), clean)

	assert.True(t, r.Empty())
	assert.False(t, r.Critical())
	assert.NotNil(t, r.Anomalies)
}

func TestTemperatureSeverityBands(t *testing.T) {
	c := New(DefaultConfig())
	// pharmaceutical range is 2..8, span 6
	cases := []struct {
		name string
		temp float64
		want models.Severity
	}{
		{"slightly warm", 10, models.SeverityMedium},    // 2/6
		{"well over", 12, models.SeverityHigh},          // 4/6
		{"far over", 15, models.SeverityCritical},       // 7/6
		{"slightly cold", 0, models.SeverityMedium},     // 2/6
		{"frozen", -5, models.SeverityCritical},         // 7/6
		{"exactly at ratio", 11, models.SeverityMedium}, // 3/6 is not above 0.5
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := c.Classify(Observed{Temperature: models.Float64(tc.temp)}, pharma(0), clean)
			require.Len(t, r.Anomalies, 1)
			assert.Equal(t, models.AnomalyTemperatureBreach, r.Anomalies[0].AnomalyType)
			assert.Equal(t, tc.want, r.Anomalies[0].Severity)
		})
	}
}

func TestHumidityBands(t *testing.T) {
	c := New(DefaultConfig())
	// pharmaceutical humidity max is 60
	cases := []struct {
		humidity float64
		want     models.Severity
	}{
		{63, models.SeverityLow},      // 0.05 over
		{72, models.SeverityMedium},   // 0.2 over
		{84, models.SeverityHigh},     // 0.4 over
		{99, models.SeverityCritical}, // 0.65 over
	}
	for _, tc := range cases {
		r := c.Classify(Observed{Humidity: models.Float64(tc.humidity)}, pharma(0), clean)
		require.Len(t, r.Anomalies, 1, "humidity %v", tc.humidity)
		assert.Equal(t, models.AnomalyHumidityBreach, r.Anomalies[0].AnomalyType)
		assert.Equal(t, tc.want, r.Anomalies[0].Severity, "humidity %v", tc.humidity)
	}

	r := c.Classify(Observed{Humidity: models.Float64(60)}, pharma(0), clean)
	assert.True(t, r.Empty(), "the limit itself is allowed")
}

func TestWeightDeviation(t *testing.T) {
	c := New(DefaultConfig())
	// pharmaceutical tolerance 2%
	r := c.Classify(Observed{WeightKg: 98.5}, pharma(100), clean)
	assert.True(t, r.Empty())

	r = c.Classify(Observed{WeightKg: 97}, pharma(100), clean)
	require.Len(t, r.Anomalies, 1)
	assert.Equal(t, models.SeverityMedium, r.Anomalies[0].Severity)
	assert.Equal(t, 3.0, r.Anomalies[0].Details["deviation_pct"])

	r = c.Classify(Observed{WeightKg: 95}, pharma(100), clean)
	assert.Equal(t, models.SeverityHigh, r.Anomalies[0].Severity)

	r = c.Classify(Observed{WeightKg: 80}, pharma(100), clean)
	assert.Equal(t, models.SeverityCritical, r.Anomalies[0].Severity)
	assert.True(t, r.Critical())

	t.Run("no baseline means no weight rule", func(t *testing.T) {
		r := c.Classify(Observed{WeightKg: 1}, pharma(0), clean)
		assert.True(t, r.Empty())
	})
}

func TestDelay(t *testing.T) {
	c := New(DefaultConfig())
	expected := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := pharma(0)
	exp.ExpectedArrival = &expected

	r := c.Classify(Observed{ArrivedAt: expected.Add(5 * time.Hour)}, exp, clean)
	assert.True(t, r.Empty(), "within the 6h grace")
	assert.Equal(t, 5*time.Hour, r.Delay)

	r = c.Classify(Observed{ArrivedAt: expected.Add(8 * time.Hour)}, exp, clean)
	require.Len(t, r.Anomalies, 1)
	assert.Equal(t, models.AnomalyDelay, r.Anomalies[0].AnomalyType)
	assert.Equal(t, models.SeverityMedium, r.Anomalies[0].Severity)

	r = c.Classify(Observed{ArrivedAt: expected.Add(13 * time.Hour)}, exp, clean)
	assert.Equal(t, models.SeverityHigh, r.Anomalies[0].Severity)

	r = c.Classify(Observed{ArrivedAt: expected.Add(30 * time.Hour)}, exp, clean)
	assert.Equal(t, models.SeverityCritical, r.Anomalies[0].Severity)

	r = c.Classify(Observed{ArrivedAt: expected.Add(-time.Hour)}, exp, clean)
	assert.True(t, r.Empty())
	assert.Zero(t, r.Delay)
}

func TestClassifyDelayInjected(t *testing.T) {
	c := New(DefaultConfig())
	r := c.ClassifyDelay("food_grain", 10*time.Hour)
	assert.True(t, r.Empty())

	r = c.ClassifyDelay("food_grain", 50*time.Hour)
	require.Len(t, r.Anomalies, 1)
	assert.Equal(t, models.SeverityHigh, r.Anomalies[0].Severity)
	assert.Equal(t, 50.0, r.Anomalies[0].Details["delay_hours"])
}

func TestTamperSortsFirst(t *testing.T) {
	c := New(DefaultConfig())
	tampered := hashing.Verification{Match: false, ExpectedDigest: "aa", CurrentDigest: "bb"}

	r := c.Classify(Observed{
		Temperature: models.Float64(30),
		Humidity:    models.Float64(63),
		WeightKg:    97,
	}, pharma(100), tampered)

	require.Len(t, r.Anomalies, 4)
	assert.Equal(t, models.AnomalyDocumentTampered, r.Anomalies[0].AnomalyType)
	assert.Equal(t, models.SeverityCritical, r.Anomalies[0].Severity)
	assert.Equal(t, "aa", r.Anomalies[0].Details["expected_hash"])
	assert.Equal(t, "bb", r.Anomalies[0].Details["current_hash"])
	// temperature 22 over a span of 6 is critical, humidity low, weight medium
	assert.Equal(t, models.AnomalyTemperatureBreach, r.Anomalies[1].AnomalyType)
	assert.Equal(t, models.AnomalyWeightDeviation, r.Anomalies[2].AnomalyType)
	assert.Equal(t, models.AnomalyHumidityBreach, r.Anomalies[3].AnomalyType)
	assert.Equal(t, 2, r.CriticalCount)
	assert.True(t, r.Has(models.AnomalyDocumentTampered))
}

func TestUnknownCategoryFallsBackToDefault(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Classify(Observed{Temperature: models.Float64(45)}, Expected{Profile: models.RiskProfile{ProductCategory: "furniture"}}, clean)
	assert.True(t, r.Empty())

	r = c.Classify(Observed{Temperature: models.Float64(60)}, Expected{Profile: models.RiskProfile{ProductCategory: "furniture"}}, clean)
	require.Len(t, r.Anomalies, 1)
	assert.Equal(t, models.SeverityMedium, r.Anomalies[0].Severity)
}

func TestConfigFromOverlaysLoadedValues(t *testing.T) {
	cfg := ConfigFrom(config.RiskConfig{
		Policies: map[string]config.PolicyConfig{
			"Vaccine": {TempMin: -80, TempMax: -60, HumidityMax: 100, WeightTolerance: 0.01, MaxDelay: time.Hour},
		},
		TempHighRatio: 0.25,
	})
	assert.Equal(t, -80.0, cfg.PolicyFor("vaccine").TempMin)
	assert.Equal(t, 0.25, cfg.TempHighRatio)
	assert.Equal(t, 1.0, cfg.TempCriticalRatio)
	assert.Equal(t, 8.0, cfg.PolicyFor("pharmaceutical").TempMax)
}
