package types

// Snapshot is the read-only state handed to the presentation layer. Slices are
// shared with the store, which never mutates them in place.
type Snapshot struct {
	Version          uint64          `json:"version"`
	Status           AgentStatus     `json:"status"`
	Chat             []ChatMessage   `json:"chat"`
	Assets           []AssetRef      `json:"assets"`
	SelectedAssetIDs []string        `json:"selectedAssetIds"`
	Concepts         []DesignConcept `json:"concepts"`
	ActiveConceptID  string          `json:"activeConceptId,omitempty"`
	Gallery          []RunwayAsset   `json:"gallery"`
}

func (s Snapshot) Concept(id string) (DesignConcept, bool) {
	for _, c := range s.Concepts {
		if c.ID == id {
			return c, true
		}
	}
	return DesignConcept{}, false
}
