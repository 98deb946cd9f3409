package models

import "fmt"

// Time-series categories under a stock key.
const (
	CategoryTrades = "trades"
	CategoryBars   = "bars"
	CategoryQuotes = "quotes"
)

// Fields within a category.
const (
	FieldPrice    = "price"
	FieldSize     = "size"
	FieldOpen     = "open"
	FieldHigh     = "high"
	FieldLow      = "low"
	FieldClose    = "close"
	FieldVolume   = "volume"
	FieldBidPrice = "bid_price"
	FieldBidSize  = "bid_size"
	FieldAskPrice = "ask_price"
	FieldAskSize  = "ask_size"
)

// Pub/sub topics announcing changes. Trade and bar messages carry the
// symbol; the trending topic carries the literal payload "updated".
const (
	TopicTrade    = "trade"
	TopicBar      = "bar"
	TopicTrending = "trending-stocks"
)

// TrendingKey names the Top-K sketch; the trending topic shares its name so
// keyspace expiry events on the sketch arrive on a predictable channel.
const TrendingKey = "trending-stocks"

// SeriesKey is the Redis key for one metric stream, e.g. stocks:AAPL:bars:close.
func SeriesKey(symbol, category, field string) string {
	return fmt.Sprintf("stocks:%s:%s:%s", symbol, category, field)
}

// StockKey is the Redis key of a stock catalog record.
func StockKey(symbol string) string {
	return "stocks:" + symbol
}
