package pipeline

import (
	"fmt"

	"masterpost/internal/domain"
)

// ShadowKind tags the shadow rendering algorithm.
type ShadowKind string

const (
	ShadowNone       ShadowKind = "none"
	ShadowDrop       ShadowKind = "drop"
	ShadowReflection ShadowKind = "reflection"
	ShadowNatural    ShadowKind = "natural"
	// ShadowAuto resolves to one of the concrete kinds per image, from its
	// aspect ratio.
	ShadowAuto ShadowKind = "auto"
)

// ShadowDirection selects the light direction for natural shadows.
type ShadowDirection string

const (
	DirectionBottomRight ShadowDirection = "bottom-right"
	DirectionBottomLeft  ShadowDirection = "bottom-left"
	DirectionBottom      ShadowDirection = "bottom"
	DirectionLeft        ShadowDirection = "left"
	DirectionRight       ShadowDirection = "right"
)

// naturalOffsets maps a direction to the shadow displacement in pixels.
var naturalOffsets = map[ShadowDirection][2]int{
	DirectionBottomRight: {4, 6},
	DirectionBottomLeft:  {-4, 6},
	DirectionBottom:      {0, 6},
	DirectionRight:       {6, 2},
	DirectionLeft:        {-6, 2},
}

type DropParams struct {
	Intensity  float64 `json:"intensity"`
	OffsetX    int     `json:"offset_x"`
	OffsetY    int     `json:"offset_y"`
	BlurRadius int     `json:"blur_radius"`
}

type ReflectionParams struct {
	HeightFrac float64 `json:"height_fraction"`
	Opacity    float64 `json:"opacity"`
	FadeStart  float64 `json:"fade_start"`
}

type NaturalParams struct {
	Intensity  float64         `json:"intensity"`
	BlurRadius int             `json:"blur_radius"`
	Direction  ShadowDirection `json:"direction"`
}

// ShadowStyle is the tagged shadow variant carried by a profile or a job
// override. Only the params matching Kind are meaningful.
type ShadowStyle struct {
	Kind       ShadowKind       `json:"kind"`
	Drop       DropParams       `json:"drop,omitempty"`
	Reflection ReflectionParams `json:"reflection,omitempty"`
	Natural    NaturalParams    `json:"natural,omitempty"`
}

// Validate rejects malformed shadow parameters up front, at job creation.
func (s ShadowStyle) Validate() error {
	switch s.Kind {
	case ShadowNone, ShadowAuto:
		return nil
	case ShadowDrop:
		if s.Drop.Intensity < 0 || s.Drop.Intensity > 1 {
			return fmt.Errorf("%w: drop shadow intensity must be in [0,1]", domain.ErrValidation)
		}
		if s.Drop.BlurRadius < 0 {
			return fmt.Errorf("%w: drop shadow blur radius must be >= 0", domain.ErrValidation)
		}
		return nil
	case ShadowReflection:
		if s.Reflection.HeightFrac <= 0 || s.Reflection.HeightFrac > 1 {
			return fmt.Errorf("%w: reflection height fraction must be in (0,1]", domain.ErrValidation)
		}
		if s.Reflection.Opacity < 0 || s.Reflection.Opacity > 1 {
			return fmt.Errorf("%w: reflection opacity must be in [0,1]", domain.ErrValidation)
		}
		if s.Reflection.FadeStart < 0 || s.Reflection.FadeStart >= 1 {
			return fmt.Errorf("%w: reflection fade start must be in [0,1)", domain.ErrValidation)
		}
		return nil
	case ShadowNatural:
		if s.Natural.Intensity < 0 || s.Natural.Intensity > 1 {
			return fmt.Errorf("%w: natural shadow intensity must be in [0,1]", domain.ErrValidation)
		}
		if _, ok := naturalOffsets[s.Natural.Direction]; s.Natural.Direction != "" && !ok {
			return fmt.Errorf("%w: unknown shadow direction %q", domain.ErrValidation, s.Natural.Direction)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown shadow kind %q", domain.ErrValidation, s.Kind)
	}
}

// ResolveAuto picks a concrete shadow kind for an image with the given
// dimensions. Wide products cast a subtle contour shadow, tall products get a
// reflection, everything else gets the classic drop shadow.
func ResolveAuto(width, height int) ShadowKind {
	if height <= 0 {
		return ShadowDrop
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.8:
		return ShadowNatural
	case ratio < 0.6:
		return ShadowReflection
	default:
		return ShadowDrop
	}
}
