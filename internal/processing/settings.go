package processing

import (
	"encoding/json"
	"fmt"

	"masterpost/internal/domain"
	"masterpost/internal/pipeline"
)

// RemovalMethod selects the local background removal strategy for basic-tier
// jobs. Premium jobs always go through the external provider first.
type RemovalMethod string

const (
	RemovalWhiteThreshold RemovalMethod = "white_threshold"
	RemovalEdgeDetection  RemovalMethod = "edge_detection"
)

// Settings is the closed per-job transform configuration, validated at job
// creation time and carried on the job record as raw JSON.
type Settings struct {
	Shadow  *pipeline.ShadowStyle `json:"shadow,omitempty"`
	Removal RemovalMethod         `json:"removal,omitempty"`
}

// Validate rejects malformed settings before a job is accepted.
func (s Settings) Validate() error {
	if s.Shadow != nil {
		if err := s.Shadow.Validate(); err != nil {
			return err
		}
	}
	switch s.Removal {
	case "", RemovalWhiteThreshold, RemovalEdgeDetection:
		return nil
	default:
		return fmt.Errorf("%w: unknown removal method %q", domain.ErrValidation, s.Removal)
	}
}

// EncodeSettings serializes settings for storage on the job record.
func EncodeSettings(s Settings) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// DecodeSettings parses the job record's settings blob. A nil blob yields
// zero-value settings.
func DecodeSettings(raw []byte) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: decode job settings: %v", domain.ErrValidation, err)
	}
	return s, nil
}

func (s Settings) localRemover() pipeline.BackgroundRemover {
	if s.Removal == RemovalEdgeDetection {
		return pipeline.EdgeDetect{}
	}
	return pipeline.WhiteThreshold{}
}
