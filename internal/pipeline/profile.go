package pipeline

import (
	"fmt"
	"sort"

	"masterpost/internal/domain"
)

// Profile is the marketplace target a job is processed against. Profiles are
// immutable and shared; the registry is fixed at startup.
type Profile struct {
	Name        string
	Description string
	Width       int
	Height      int
	JPEGQuality int
	// Shadow is the default style applied when the job does not override it.
	Shadow ShadowStyle
}

// TargetSize returns the exact output canvas dimensions.
func (p Profile) TargetSize() (int, int) { return p.Width, p.Height }

var registry = map[string]Profile{
	"amazon": {
		Name:        "amazon",
		Description: "White background, 1000x1000px, centered product",
		Width:       1000,
		Height:      1000,
		JPEGQuality: 95,
		Shadow: ShadowStyle{
			Kind: ShadowDrop,
			Drop: DropParams{Intensity: 0.15, OffsetX: 25, OffsetY: 30, BlurRadius: 10},
		},
	},
	"instagram": {
		Name:        "instagram",
		Description: "1080x1080px square format",
		Width:       1080,
		Height:      1080,
		JPEGQuality: 95,
		Shadow: ShadowStyle{
			Kind:    ShadowNatural,
			Natural: NaturalParams{Intensity: 0.2, BlurRadius: 8, Direction: DirectionBottomRight},
		},
	},
	"ebay": {
		Name:        "ebay",
		Description: "1600x1600px high resolution",
		Width:       1600,
		Height:      1600,
		JPEGQuality: 95,
		Shadow: ShadowStyle{
			Kind:       ShadowReflection,
			Reflection: ReflectionParams{HeightFrac: 0.35, Opacity: 0.1, FadeStart: 0.1},
		},
	},
}

// LookupProfile resolves a profile by name. Unknown names are a validation
// error so bad pipeline values are rejected at job creation, not mid-batch.
func LookupProfile(name string) (Profile, error) {
	p, ok := registry[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown pipeline %q", domain.ErrValidation, name)
	}
	return p, nil
}

// Profiles returns all registered profiles in stable name order.
func Profiles() []Profile {
	out := make([]Profile, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
