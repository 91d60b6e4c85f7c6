package types

// Tech pack ------------------------------------------------------------------

type BOMItem struct {
	Location     string  `json:"location"`
	Item         string  `json:"item"`
	Description  string  `json:"description"`
	Quantity     string  `json:"quantity"`
	CostEstimate float64 `json:"costEstimate"`
}

type Measurement struct {
	PointOfMeasure string `json:"pointOfMeasure"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	Tolerance      string `json:"tolerance"`
}

type SourcingResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TechPack is replaced as a whole; sourcing appends produce a new value.
type TechPack struct {
	StyleNumber       string           `json:"styleNumber"`
	Season            string           `json:"season"`
	BOM               []BOMItem        `json:"bom"`
	Measurements      []Measurement    `json:"measurements"`
	ConstructionNotes []string         `json:"constructionNotes"`
	SourcingResults   []SourcingResult `json:"sourcingResults"`
	TotalCostEstimate float64          `json:"totalCostEstimate"`
	Currency          string           `json:"currency"`
	// SourceRevision is the primary revision the pack was derived from.
	SourceRevision int `json:"sourceRevision"`
}

// WithSourcing returns a copy with results appended.
func (tp TechPack) WithSourcing(results ...SourcingResult) *TechPack {
	out := tp
	out.SourcingResults = append(append([]SourcingResult(nil), tp.SourcingResults...), results...)
	return &out
}
