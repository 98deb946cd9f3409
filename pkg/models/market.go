package models

import "time"

// EventType tags the variants of a normalized market event.
type EventType string

const (
	EventTrade EventType = "trade"
	EventBar   EventType = "bar"
	EventQuote EventType = "quote"
	EventNews  EventType = "news"
)

// Trade is a single executed trade for a symbol.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Size       uint32    `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
	Exchange   string    `json:"exchange"`
	Conditions []string  `json:"conditions"`
	Tape       string    `json:"tape"`
	ID         int64     `json:"id"`
}

// Bar is a one-minute OHLCV aggregate for a symbol.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     uint64    `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
	TradeCount uint64    `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// Quote is a top-of-book bid/ask snapshot for a symbol.
type Quote struct {
	Symbol      string    `json:"symbol"`
	BidExchange string    `json:"bid_exchange"`
	BidPrice    float64   `json:"bid_price"`
	BidSize     uint32    `json:"bid_size"`
	AskExchange string    `json:"ask_exchange"`
	AskPrice    float64   `json:"ask_price"`
	AskSize     uint32    `json:"ask_size"`
	Conditions  []string  `json:"conditions"`
	Tape        string    `json:"tape"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewsImage is one rendition of a news article image.
type NewsImage struct {
	Size string `json:"size"`
	URL  string `json:"url"`
}

// News is an article attached to one or more symbols.
type News struct {
	ID        int64       `json:"id"`
	Headline  string      `json:"headline"`
	Author    string      `json:"author"`
	Summary   string      `json:"summary"`
	URL       string      `json:"url"`
	Source    string      `json:"source"`
	Symbols   []string    `json:"symbols"`
	Images    []NewsImage `json:"images"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Sample is one (timestamp, value) observation from a time series.
// Timestamps are milliseconds since epoch.
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// TrendingEntry is one slot of the trending ranking, highest frequency first.
type TrendingEntry struct {
	Symbol string `json:"symbol"`
	Count  int64  `json:"count,omitempty"`
}
