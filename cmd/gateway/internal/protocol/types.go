package protocol

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbols  []string `json:"symbols"`
	Trending bool     `json:"trending,omitempty"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error", "quote", "bar", "trending"
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// QuoteUpdate is the payload pushed when a symbol trades.
type QuoteUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // milliseconds since epoch
}

// BarUpdate is the payload pushed when a symbol's minute bar closes.
type BarUpdate struct {
	Symbol    string  `json:"symbol"`
	Close     float64 `json:"close"`
	Timestamp int64   `json:"timestamp"`
}

// TrendingUpdate carries the current most-traded ranking.
type TrendingUpdate struct {
	Entries []TrendingEntry `json:"entries"`
}

type TrendingEntry struct {
	Symbol string `json:"symbol"`
	Count  int64  `json:"count"`
}
