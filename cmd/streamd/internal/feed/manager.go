// Package feed owns the long-lived upstream connection and the set of
// active symbol subscriptions. Transient failures reconnect with backoff
// and re-issue every active subscription; subscribe and unsubscribe are
// best-effort from the caller's point of view.
package feed

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/instrumentation"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Handler receives decoded events for actively subscribed symbols.
type Handler interface {
	OnTrade(trade models.Trade)
	OnBar(bar models.Bar)
	OnQuote(quote models.Quote)
	OnNews(news models.News)
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL               string
	KeyID             string
	SecretKey         string
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	BufferSize        int
}

type Manager struct {
	cfg     ManagerConfig
	handler Handler
	logger  *zap.Logger
	metrics *instrumentation.Metrics

	// Test seam: production uses NewClient.
	newClient func() Client

	mu     sync.RWMutex
	client Client
	active map[string]struct{}
}

func NewManager(cfg ManagerConfig, handler Handler, logger *zap.Logger, metrics *instrumentation.Metrics) *Manager {
	if cfg.ReconnectBaseWait == 0 {
		cfg.ReconnectBaseWait = time.Second
	}
	if cfg.ReconnectMaxWait == 0 {
		cfg.ReconnectMaxWait = time.Minute
	}
	m := &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
		active:  make(map[string]struct{}),
	}
	m.newClient = func() Client {
		return NewClient(ClientConfig{URL: cfg.URL, BufferSize: cfg.BufferSize}, logger)
	}
	return m
}

// Active returns a sorted snapshot of the active subscriptions.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.active))
	for sym := range m.active {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Subscribe adds symbols to the active set and, when connected, issues the
// stream filter. Fire-and-forget: a send failure is logged and will be
// repaired by the resubscribe on the next reconnect.
func (m *Manager) Subscribe(ctx context.Context, symbols []string) {
	added := make([]string, 0, len(symbols))

	m.mu.Lock()
	for _, sym := range symbols {
		if _, ok := m.active[sym]; ok {
			continue
		}
		m.active[sym] = struct{}{}
		added = append(added, sym)
	}
	client := m.client
	m.mu.Unlock()

	if len(added) == 0 || client == nil {
		return
	}
	m.sendFilter(client, "subscribe", added)
}

// Unsubscribe removes symbols from the active set, stopping event routing
// immediately, and issues the unsubscribe when connected.
func (m *Manager) Unsubscribe(ctx context.Context, symbols []string) {
	removed := make([]string, 0, len(symbols))

	m.mu.Lock()
	for _, sym := range symbols {
		if _, ok := m.active[sym]; !ok {
			continue
		}
		delete(m.active, sym)
		removed = append(removed, sym)
	}
	client := m.client
	m.mu.Unlock()

	if len(removed) == 0 || client == nil {
		return
	}
	m.sendFilter(client, "unsubscribe", removed)
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff and restoring all active subscriptions after every
// transient failure.
func (m *Manager) Run(ctx context.Context) error {
	wait := m.cfg.ReconnectBaseWait

	for {
		client := m.newClient()
		if err := client.Connect(ctx); err != nil {
			m.logger.Warn("feed connect failed", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
			wait = backoff(wait, m.cfg.ReconnectMaxWait)
			continue
		}
		wait = m.cfg.ReconnectBaseWait

		m.mu.Lock()
		m.client = client
		m.mu.Unlock()

		m.authenticate(client)
		m.resubscribeAll(client)

		err := m.readLoop(ctx, client)
		client.Close()

		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.metrics.RecordReconnect()
		m.logger.Warn("feed connection lost, reconnecting", zap.Error(err), zap.Duration("retry_in", wait))
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		wait = backoff(wait, m.cfg.ReconnectMaxWait)
	}
}

func (m *Manager) readLoop(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-client.Errors():
			return err
		case data, ok := <-client.Messages():
			if !ok {
				return ErrClosed
			}
			m.dispatch(data)
		}
	}
}

// dispatch decodes one inbound frame (an array of tagged messages) and
// routes events to the handler. Malformed elements are dropped with a
// diagnostic; decoding continues with the rest of the frame.
func (m *Manager) dispatch(data []byte) {
	var frames []json.RawMessage
	if err := json.Unmarshal(data, &frames); err != nil {
		m.metrics.RecordDrop("decode")
		m.logger.Warn("undecodable frame dropped", zap.Error(err))
		return
	}

	for _, raw := range frames {
		var tag struct {
			Type string `json:"T"`
			// Absorbs the "t" (timestamp) key; without an exact match it
			// would case-insensitively fold onto "T" and clobber the tag.
			Timestamp json.RawMessage `json:"t"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			m.metrics.RecordDrop("decode")
			m.logger.Warn("untagged message dropped", zap.Error(err))
			continue
		}

		switch tag.Type {
		case msgTrade:
			trade, err := decodeTrade(raw)
			if err != nil {
				m.dropMalformed(err)
				continue
			}
			if !m.isActive(trade.Symbol) {
				m.metrics.RecordDrop("route")
				continue
			}
			m.handler.OnTrade(trade)

		case msgBar:
			bar, err := decodeBar(raw)
			if err != nil {
				m.dropMalformed(err)
				continue
			}
			if !m.isActive(bar.Symbol) {
				m.metrics.RecordDrop("route")
				continue
			}
			m.handler.OnBar(bar)

		case msgQuote:
			quote, err := decodeQuote(raw)
			if err != nil {
				m.dropMalformed(err)
				continue
			}
			if !m.isActive(quote.Symbol) {
				m.metrics.RecordDrop("route")
				continue
			}
			m.handler.OnQuote(quote)

		case msgNews:
			news, err := decodeNews(raw)
			if err != nil {
				m.dropMalformed(err)
				continue
			}
			if !m.anyActive(news.Symbols) {
				m.metrics.RecordDrop("route")
				continue
			}
			m.handler.OnNews(news)

		case msgSuccess:
			var ctrl controlMsg
			json.Unmarshal(raw, &ctrl)
			m.logger.Debug("feed control", zap.String("msg", ctrl.Msg))

		case msgSubscription:
			var ctrl controlMsg
			json.Unmarshal(raw, &ctrl)
			m.logger.Debug("subscription state",
				zap.Strings("trades", ctrl.Trades),
				zap.Strings("bars", ctrl.Bars),
			)

		case msgError:
			var ctrl controlMsg
			json.Unmarshal(raw, &ctrl)
			m.logger.Error("feed error message",
				zap.Int("code", ctrl.Code),
				zap.String("msg", ctrl.Msg),
			)

		default:
			m.metrics.RecordDrop("decode")
			m.logger.Debug("unknown message type dropped", zap.String("type", tag.Type))
		}
	}
}

func (m *Manager) dropMalformed(err error) {
	m.metrics.RecordDrop("decode")
	m.logger.Warn("malformed event dropped", zap.Error(err))
}

func (m *Manager) isActive(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[symbol]
	return ok
}

func (m *Manager) anyActive(symbols []string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sym := range symbols {
		if _, ok := m.active[sym]; ok {
			return true
		}
	}
	return false
}

func (m *Manager) authenticate(client Client) {
	data, _ := json.Marshal(authCmd{Action: "auth", Key: m.cfg.KeyID, Secret: m.cfg.SecretKey})
	if err := client.Send(data); err != nil {
		m.logger.Warn("auth send failed", zap.Error(err))
	}
}

func (m *Manager) resubscribeAll(client Client) {
	symbols := m.Active()
	if len(symbols) == 0 {
		return
	}
	m.logger.Info("restoring subscriptions", zap.Int("count", len(symbols)))
	m.sendFilter(client, "subscribe", symbols)
}

func (m *Manager) sendFilter(client Client, action string, symbols []string) {
	cmd := subscribeCmd{
		Action: action,
		Trades: symbols,
		Bars:   symbols,
		Quotes: symbols,
		News:   symbols,
	}
	data, _ := json.Marshal(cmd)
	if err := client.Send(data); err != nil {
		m.logger.Warn("subscription command send failed",
			zap.String("action", action),
			zap.Strings("symbols", symbols),
			zap.Error(err),
		)
	}
}

func backoff(wait, max time.Duration) time.Duration {
	wait *= 2
	if wait > max {
		wait = max
	}
	return wait
}

// sleepCtx waits d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
