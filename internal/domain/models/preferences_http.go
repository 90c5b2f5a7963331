package models

// Requests and responses for the preferences and events HTTP endpoints.

type SetPreferenceRequest struct {
	BaseAssetName  string   `json:"baseAssetName" validate:"required"`
	QuoteAssetName string   `json:"quoteAssetName" validate:"required"`
	Probability    *float64 `json:"probability" validate:"required"`
}

type DeletePreferenceRequest struct {
	BaseAssetName  string `json:"baseAssetName" validate:"required"`
	QuoteAssetName string `json:"quoteAssetName" validate:"required"`
}

type PreferenceResponse struct {
	BaseAssetName  string  `json:"baseAssetName"`
	QuoteAssetName string  `json:"quoteAssetName"`
	Probability    float64 `json:"probability"`
}

type EventsRequest struct {
	Amount int `query:"amount" default:"0" validate:"gte=0"`
}

type EventResponse struct {
	ID             string  `json:"id"`
	Probability    float64 `json:"probability"`
	FiredAt        int64   `json:"firedAt"`
	BaseAssetName  string  `json:"baseAssetName"`
	QuoteAssetName string  `json:"quoteAssetName"`
}

type SymbolResponse struct {
	BaseAssetName  string  `json:"baseAssetName"`
	QuoteAssetName string  `json:"quoteAssetName"`
	Probability    float64 `json:"probability"`
	DecayPeriod    float64 `json:"decayPeriod"`
	Subscribers    int     `json:"subscribers"`
}

// NewEventResponse maps a domain event to its HTTP form.
func NewEventResponse(e *SymbolEvent) EventResponse {
	return EventResponse{
		ID:             e.ID,
		Probability:    e.Probability,
		FiredAt:        e.FiredAt.UnixMilli(),
		BaseAssetName:  e.Symbol.Base.Name,
		QuoteAssetName: e.Symbol.Quote.Name,
	}
}

// NewSymbolResponse maps a live symbol snapshot to its HTTP form.
func NewSymbolResponse(doc *SymbolDocument) SymbolResponse {
	return SymbolResponse{
		BaseAssetName:  doc.Symbol.Base.Name,
		QuoteAssetName: doc.Symbol.Quote.Name,
		Probability:    doc.Probability,
		DecayPeriod:    doc.DecayPeriod,
		Subscribers:    len(doc.Preferences),
	}
}
