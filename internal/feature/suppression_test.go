package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntensity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pct  float64
		want float32
	}{
		{pct: 100, want: 0},
		{pct: 0, want: 1},
		{pct: 85, want: 0.15},
		{pct: 50, want: 0.5},
		{pct: 150, want: 0},
		{pct: -20, want: 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Intensity(tt.pct), 1e-6, "pct=%v", tt.pct)
	}
}

func TestSuppression_PlanMask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		recoil, sway float64
		wantMask     int32
	}{
		{name: "both fully removed", recoil: 100, sway: 100, wantMask: MaskSuppressed},
		{name: "both at threshold", recoil: 85, sway: 85, wantMask: MaskSuppressed},
		{name: "sway above threshold", recoil: 100, sway: 50, wantMask: MaskOriginal},
		{name: "untouched", recoil: 0, sway: 0, wantMask: MaskOriginal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSuppression(DefaultSuppressionLayout(), func() SuppressionSettings {
				return SuppressionSettings{Enabled: true, RecoilPct: tt.recoil, SwayPct: tt.sway}
			})
			plan := s.Plan()
			require.True(t, plan.Enabled)
			require.Len(t, plan.Targets, 3)
			assert.Equal(t, Mask(tt.wantMask), plan.Targets[2].Value)
			assert.InDelta(t, DefaultSuppressionTolerance, plan.Tolerance, 1e-12)
		})
	}
}

func TestSuppression_DisabledPlanIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewSuppression(DefaultSuppressionLayout(), func() SuppressionSettings {
		return SuppressionSettings{RecoilPct: 100}
	})
	plan := s.Plan()
	assert.False(t, plan.Enabled)
	assert.Empty(t, plan.Targets)
}

func TestSuppression_Delay(t *testing.T) {
	t.Parallel()

	var cfg SuppressionSettings
	s := NewSuppression(DefaultSuppressionLayout(), func() SuppressionSettings { return cfg })
	assert.Equal(t, DefaultSuppressionDelay, s.Delay())

	cfg.Delay = 200 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, s.Delay())
}

func TestMaskConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(125), MaskOriginal)
	assert.Equal(t, int32(16), MaskSuppressed)
	assert.Zero(t, MaskOriginal&AnimWalking)
	assert.Zero(t, MaskOriginal&AnimHandShake)
}
