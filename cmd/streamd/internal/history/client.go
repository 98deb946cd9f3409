// Package history fetches bounded batches of recent market data from the
// upstream REST endpoint. It is used only to backfill newly watched symbols
// so the dashboard has data before the first live event arrives.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Client is a thin typed wrapper over the upstream data API.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, keyID, secretKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type wireTrade struct {
	Timestamp  time.Time `json:"t"`
	Exchange   string    `json:"x"`
	Price      float64   `json:"p"`
	Size       uint32    `json:"s"`
	Conditions []string  `json:"c"`
	ID         int64     `json:"i"`
	Tape       string    `json:"z"`
}

type wireBar struct {
	Timestamp  time.Time `json:"t"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     uint64    `json:"v"`
	TradeCount uint64    `json:"n"`
	VWAP       float64   `json:"vw"`
}

type wireNews struct {
	ID        int64              `json:"id"`
	Headline  string             `json:"headline"`
	Author    string             `json:"author"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Summary   string             `json:"summary"`
	URL       string             `json:"url"`
	Images    []models.NewsImage `json:"images"`
	Symbols   []string           `json:"symbols"`
	Source    string             `json:"source"`
}

// Trades returns up to limit trades for symbol in [start, end).
func (c *Client) Trades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.Trade, error) {
	var body struct {
		Trades []wireTrade `json:"trades"`
	}
	q := rangeQuery(start, end, limit)
	if err := c.get(ctx, fmt.Sprintf("/v2/stocks/%s/trades", symbol), q, &body); err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(body.Trades))
	for _, t := range body.Trades {
		trades = append(trades, models.Trade{
			Symbol:     symbol,
			Price:      t.Price,
			Size:       t.Size,
			Timestamp:  t.Timestamp,
			Exchange:   t.Exchange,
			Conditions: t.Conditions,
			Tape:       t.Tape,
			ID:         t.ID,
		})
	}
	return trades, nil
}

// Bars returns up to limit one-minute bars for symbol in [start, end).
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.Bar, error) {
	var body struct {
		Bars []wireBar `json:"bars"`
	}
	q := rangeQuery(start, end, limit)
	q.Set("timeframe", "1Min")
	if err := c.get(ctx, fmt.Sprintf("/v2/stocks/%s/bars", symbol), q, &body); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(body.Bars))
	for _, b := range body.Bars {
		bars = append(bars, models.Bar{
			Symbol:     symbol,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			Timestamp:  b.Timestamp,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}
	return bars, nil
}

// News returns up to limit articles mentioning symbol in [start, end).
func (c *Client) News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.News, error) {
	var body struct {
		News []wireNews `json:"news"`
	}
	q := rangeQuery(start, end, limit)
	q.Set("symbols", symbol)
	if err := c.get(ctx, "/v1beta1/news", q, &body); err != nil {
		return nil, err
	}

	items := make([]models.News, 0, len(body.News))
	for _, n := range body.News {
		items = append(items, models.News{
			ID:        n.ID,
			Headline:  n.Headline,
			Author:    n.Author,
			Summary:   n.Summary,
			URL:       n.URL,
			Source:    n.Source,
			Symbols:   n.Symbols,
			Images:    n.Images,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}
	return items, nil
}

func rangeQuery(start, end time.Time, limit int) url.Values {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("history request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("history request %s: status %d: %s", path, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode history response %s: %w", path, err)
	}
	return nil
}
