package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Wire message type tags used by the upstream feed.
const (
	msgTrade        = "t"
	msgBar          = "b"
	msgQuote        = "q"
	msgNews         = "n"
	msgSuccess      = "success"
	msgError        = "error"
	msgSubscription = "subscription"
)

// controlMsg covers success/error/subscription frames.
type controlMsg struct {
	Type   string   `json:"T"`
	Msg    string   `json:"msg"`
	Code   int      `json:"code"`
	Trades []string `json:"trades"`
	Bars   []string `json:"bars"`
}

type tradeMsg struct {
	Type       string    `json:"T"`
	Symbol     string    `json:"S"`
	ID         int64     `json:"i"`
	Exchange   string    `json:"x"`
	Price      float64   `json:"p"`
	Size       uint32    `json:"s"`
	Conditions []string  `json:"c"`
	Tape       string    `json:"z"`
	Timestamp  time.Time `json:"t"`
}

type barMsg struct {
	Type       string    `json:"T"`
	Symbol     string    `json:"S"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     uint64    `json:"v"`
	TradeCount uint64    `json:"n"`
	VWAP       float64   `json:"vw"`
	Timestamp  time.Time `json:"t"`
}

type quoteMsg struct {
	Type        string    `json:"T"`
	Symbol      string    `json:"S"`
	BidExchange string    `json:"bx"`
	BidPrice    float64   `json:"bp"`
	BidSize     uint32    `json:"bs"`
	AskExchange string    `json:"ax"`
	AskPrice    float64   `json:"ap"`
	AskSize     uint32    `json:"as"`
	Conditions  []string  `json:"c"`
	Tape        string    `json:"z"`
	Timestamp   time.Time `json:"t"`
}

type newsMsg struct {
	Type      string             `json:"T"`
	ID        int64              `json:"id"`
	Headline  string             `json:"headline"`
	Author    string             `json:"author"`
	Summary   string             `json:"summary"`
	URL       string             `json:"url"`
	Source    string             `json:"source"`
	Symbols   []string           `json:"symbols"`
	Images    []models.NewsImage `json:"images"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// authCmd and subscribeCmd are the outbound control messages.
type authCmd struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeCmd struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Trades []string `json:"trades,omitempty"`
	Bars   []string `json:"bars,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	News   []string `json:"news,omitempty"`
}

func decodeTrade(raw json.RawMessage) (models.Trade, error) {
	var m tradeMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Trade{}, fmt.Errorf("decode trade: %w", err)
	}
	if m.Symbol == "" {
		return models.Trade{}, fmt.Errorf("decode trade: missing symbol")
	}
	return models.Trade{
		Symbol:     m.Symbol,
		Price:      m.Price,
		Size:       m.Size,
		Timestamp:  m.Timestamp,
		Exchange:   m.Exchange,
		Conditions: m.Conditions,
		Tape:       m.Tape,
		ID:         m.ID,
	}, nil
}

func decodeBar(raw json.RawMessage) (models.Bar, error) {
	var m barMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Bar{}, fmt.Errorf("decode bar: %w", err)
	}
	if m.Symbol == "" {
		return models.Bar{}, fmt.Errorf("decode bar: missing symbol")
	}
	return models.Bar{
		Symbol:     m.Symbol,
		Open:       m.Open,
		High:       m.High,
		Low:        m.Low,
		Close:      m.Close,
		Volume:     m.Volume,
		Timestamp:  m.Timestamp,
		TradeCount: m.TradeCount,
		VWAP:       m.VWAP,
	}, nil
}

func decodeQuote(raw json.RawMessage) (models.Quote, error) {
	var m quoteMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if m.Symbol == "" {
		return models.Quote{}, fmt.Errorf("decode quote: missing symbol")
	}
	return models.Quote{
		Symbol:      m.Symbol,
		BidExchange: m.BidExchange,
		BidPrice:    m.BidPrice,
		BidSize:     m.BidSize,
		AskExchange: m.AskExchange,
		AskPrice:    m.AskPrice,
		AskSize:     m.AskSize,
		Conditions:  m.Conditions,
		Tape:        m.Tape,
		Timestamp:   m.Timestamp,
	}, nil
}

func decodeNews(raw json.RawMessage) (models.News, error) {
	var m newsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.News{}, fmt.Errorf("decode news: %w", err)
	}
	if len(m.Symbols) == 0 {
		return models.News{}, fmt.Errorf("decode news: no symbols")
	}
	return models.News{
		ID:        m.ID,
		Headline:  m.Headline,
		Author:    m.Author,
		Summary:   m.Summary,
		URL:       m.URL,
		Source:    m.Source,
		Symbols:   m.Symbols,
		Images:    m.Images,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
