package feature

import (
	"time"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/vmath"
)

// Procedural animation mask bits of the weapon animation object.
const (
	AnimBreathing      int32 = 1 << 0
	AnimWalking        int32 = 1 << 1
	AnimMotionReaction int32 = 1 << 2
	AnimForceReaction  int32 = 1 << 3
	AnimShooting       int32 = 1 << 4
	AnimDrawDown       int32 = 1 << 5
	AnimAiming         int32 = 1 << 6
	AnimHandShake      int32 = 1 << 7

	// MaskOriginal is the mask the foreign process runs with by default.
	MaskOriginal = AnimMotionReaction | AnimForceReaction | AnimShooting | AnimDrawDown | AnimAiming | AnimBreathing
	// MaskSuppressed keeps only the shooting animation.
	MaskSuppressed = AnimShooting
)

const (
	// MaskThreshold: both intensities at or below it switch to MaskSuppressed.
	MaskThreshold = 0.15

	DefaultSuppressionDelay     = 50 * time.Millisecond
	DefaultSuppressionTolerance = 0.001

	breathMin, breathMax = 0, 5
)

// SuppressionLayout locates the suppression fields relative to the weapon
// animation root.
type SuppressionLayout struct {
	Breath          chain.Path // root -> breath effector
	Recoil          chain.Path // root -> shot effector -> new shot recoil
	BreathIntensity uint64     // float32 on the breath effector
	RecoilFactors   uint64     // vec3 on the new shot recoil
	Mask            uint64     // int32 on the root
}

// DefaultSuppressionLayout returns the known offsets.
func DefaultSuppressionLayout() SuppressionLayout {
	return SuppressionLayout{
		Breath:          chain.Path{0x38},
		Recoil:          chain.Path{0x58, 0x20},
		BreathIntensity: 0x30,
		RecoilFactors:   0x94,
		Mask:            0x30,
	}
}

// SuppressionSettings is the user-facing configuration. Percentages run from
// 0 (untouched) to 100 (fully removed).
type SuppressionSettings struct {
	Enabled   bool
	RecoilPct float64
	SwayPct   float64
	Tolerance float64
	Delay     time.Duration
}

// Intensity converts a removal percentage into an intensity scalar in [0, 1].
func Intensity(pct float64) float32 {
	v := 1 - pct/100
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return float32(v)
	}
}

// Suppression scales recoil and sway intensities and trims the animation mask.
type Suppression struct {
	layout   SuppressionLayout
	settings func() SuppressionSettings

	breath, recoil, mask Field
}

var _ Effect = (*Suppression)(nil)

// NewSuppression creates the effect. settings is read once per tick so live
// configuration changes apply on the next tick.
func NewSuppression(layout SuppressionLayout, settings func() SuppressionSettings) *Suppression {
	return &Suppression{
		layout:   layout,
		settings: settings,
		breath:   Field{Name: "breath_intensity", Terminal: 0, Offset: layout.BreathIntensity, Min: breathMin, Max: breathMax},
		recoil:   Field{Name: "recoil_factors", Terminal: 1, Offset: layout.RecoilFactors},
		mask:     Field{Name: "animation_mask", Terminal: RootTerminal, Offset: layout.Mask},
	}
}

// Name returns the feature name used in logs, the scheduler and the journal.
func (s *Suppression) Name() string { return "suppression" }

// Delay returns the configured tick delay, or DefaultSuppressionDelay.
func (s *Suppression) Delay() time.Duration {
	if d := s.settings().Delay; d > 0 {
		return d
	}
	return DefaultSuppressionDelay
}

// Paths returns the breath and recoil chains; terminals 0 and 1.
func (s *Suppression) Paths() []chain.Path {
	return []chain.Path{s.layout.Breath, s.layout.Recoil}
}

// Plan reads the settings once and derives the targets: sway intensity,
// recoil intensity on all three axes and the animation mask.
func (s *Suppression) Plan() Plan {
	cfg := s.settings()
	if !cfg.Enabled {
		return Plan{}
	}
	recoil := Intensity(cfg.RecoilPct)
	sway := Intensity(cfg.SwayPct)

	mask := MaskOriginal
	if recoil <= MaskThreshold && sway <= MaskThreshold {
		mask = MaskSuppressed
	}

	tol := cfg.Tolerance
	if tol <= 0 {
		tol = DefaultSuppressionTolerance
	}
	return Plan{
		Enabled:   true,
		Tolerance: tol,
		Targets: []Target{
			{Field: s.breath, Value: Scalar(sway)},
			{Field: s.recoil, Value: Vector(vmath.Splat(recoil))},
			{Field: s.mask, Value: Mask(mask)},
		},
	}
}

// Neutral returns full intensities and the original animation mask.
func (s *Suppression) Neutral() []Target {
	return []Target{
		{Field: s.breath, Value: Scalar(1)},
		{Field: s.recoil, Value: Vector(vmath.Splat(1))},
		{Field: s.mask, Value: Mask(MaskOriginal)},
	}
}
