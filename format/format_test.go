package format

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationFromHours(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "PT0S"},
		{0.004, "PT0S"},
		{1, "PT1H"},
		{2.5, "PT2H30M"},
		{0.25, "PT15M"},
		{1.999, "PT2H"},
		{26, "PT26H"},
		{-1.5, "PT-1H-30M"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := DurationFromHours(tt.hours)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDurationFromHours_NonFinite(t *testing.T) {
	for _, h := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.MaxFloat64, -1e300} {
		_, err := DurationFromHours(h)
		assert.ErrorIs(t, err, ErrInvalidDuration, "hours %v", h)
	}
}

func TestHoursFromDuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"PT0S", 0},
		{"PT2H30M", 2.5},
		{"PT15M", 0.25},
		{"P1D", 24},
		{"P1DT1H", 25},
		{"PT1.5H", 1.5},
		{"PT0,5H", 0.5},
		{"PT3600S", 1},
		{"-PT1H", -1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := HoursFromDuration(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestHoursFromDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "2H", "P1Y", "PT1H1H", "PTH", "P1W", "PT1X", "PT1", "P1M", "P1DT"} {
		t.Run(in, func(t *testing.T) {
			_, err := HoursFromDuration(in)
			assert.ErrorIs(t, err, ErrInvalidDuration)
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	for _, h := range []float64{0.25, 1, 2.5, 7.75, 40} {
		d, err := DurationFromHours(h)
		require.NoError(t, err)
		got, err := HoursFromDuration(d)
		require.NoError(t, err)
		assert.InDelta(t, h, got, 1e-9)
	}
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", Date(d))

	_, err = ParseDate("01/03/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-03-01T11:30:00Z", DateTime(ts))
}
