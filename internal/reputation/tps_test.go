package reputation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-bookings/internal/reputation"
)

func TestCalculateTPSMissingTelemetry(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tps := reputation.CalculateTPS(start, nil, end, nil)
	assert.Equal(t, 100, tps.Score)
	assert.Equal(t, 100, tps.Punctuality)
	assert.Equal(t, 100, tps.Accuracy)

	actualStart := start.Add(40 * time.Minute)
	tps = reputation.CalculateTPS(start, &actualStart, end, nil)
	assert.Equal(t, 100, tps.Score, "missing end telemetry is never penalized")
}

func TestCalculateTPSPunctualityBands(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name        string
		delay       time.Duration
		punctuality int
	}{
		{"ten minutes early", -10 * time.Minute, 95},
		{"exactly on time", 0, 100},
		{"five minutes late", 5 * time.Minute, 100},
		{"ten minutes late", 10 * time.Minute, 90},
		{"twenty five minutes late", 25 * time.Minute, 75},
		{"forty minutes late", 40 * time.Minute, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualStart := start.Add(tt.delay)
			actualEnd := actualStart.Add(time.Hour) // keep duration exact
			tps := reputation.CalculateTPS(start, &actualStart, end, &actualEnd)
			assert.Equal(t, tt.punctuality, tps.Punctuality)
			assert.Equal(t, 100, tps.Accuracy)
		})
	}
}

func TestCalculateTPSAccuracyBands(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(100 * time.Minute)

	tests := []struct {
		name     string
		actual   time.Duration
		accuracy int
	}{
		{"exact duration", 100 * time.Minute, 100},
		{"ten percent over", 110 * time.Minute, 100},
		{"fifteen percent over", 115 * time.Minute, 90},
		{"thirty percent under", 70 * time.Minute, 80},
		{"half the quoted time", 50 * time.Minute, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualStart := start
			actualEnd := start.Add(tt.actual)
			tps := reputation.CalculateTPS(start, &actualStart, end, &actualEnd)
			assert.Equal(t, tt.accuracy, tps.Accuracy)
			assert.Equal(t, 100, tps.Punctuality)
		})
	}
}

func TestCalculateTPSComposite(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	// 40 minutes late, exact duration: punctuality 50, accuracy 100.
	actualStart := start.Add(40 * time.Minute)
	actualEnd := actualStart.Add(time.Hour)
	tps := reputation.CalculateTPS(start, &actualStart, end, &actualEnd)
	assert.Equal(t, 50, tps.Punctuality)
	assert.Equal(t, 100, tps.Accuracy)
	assert.Equal(t, 75, tps.Score)
	assert.InDelta(t, 40.0, tps.StartDelayMinutes, 0.001)
	assert.InDelta(t, 0.0, tps.DurationVariance, 0.001)
}
