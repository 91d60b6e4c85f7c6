package types

import "time"

type RunwayKind string

const (
	RunwayPhoto RunwayKind = "photo"
	RunwayVideo RunwayKind = "video"
)

// RunwayAsset is a historical snapshot; it is not updated when its source
// concept changes.
type RunwayAsset struct {
	ID              string     `json:"id"`
	Kind            RunwayKind `json:"kind"`
	URL             string     `json:"url"`
	Media           Blob       `json:"-"`
	SourceConceptID string     `json:"sourceConceptId"`
	ScenarioLabel   string     `json:"scenarioLabel"`
	CreatedAt       time.Time  `json:"createdAt"`
}
