package api

// EnrichmentKind selects the fallback chain.
type EnrichmentKind string

const (
	EnrichText  EnrichmentKind = "text"
	EnrichImage EnrichmentKind = "image"
)

// Producer records which branch of a fallback chain produced a result.
type Producer string

const (
	ProducedByGenerated Producer = "generated"
	ProducedByFallback  Producer = "fallback"
)

// EnrichmentStatus is the lifecycle of an EnrichmentRequest.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentRunning  EnrichmentStatus = "running"
	EnrichmentResolved EnrichmentStatus = "resolved"
)

// TextParams are the inputs of the text chain.
type TextParams struct {
	Type      string `json:"type"`
	Language  string `json:"language"`
	Objective string `json:"objective"`
}

// ImageParams are the inputs of the image chain.
type ImageParams struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// TextContent is the resolved output of the text chain.
type TextContent struct {
	Text       string
	CTAText    string
	CTAType    string
	ProducedBy Producer
}

// MediaResult is the resolved output of the image chain.
type MediaResult struct {
	MediaRef   string
	ProducedBy Producer
}

// EnrichmentRequest tracks one run of a chain for observers.
type EnrichmentRequest struct {
	Kind       EnrichmentKind
	Params     any
	Status     EnrichmentStatus
	Result     any
	ProducedBy Producer
}
