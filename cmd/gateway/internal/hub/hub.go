package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/protocol"
	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/repository"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	Close()
}

// Hub routes change notifications to connected clients. Notifications carry
// only a symbol, so the hub re-queries the store for the current value
// before broadcasting; a burst of trades for one symbol costs one query per
// notification but never pushes stale data.
type Hub struct {
	subscribers  map[string]map[ClientInterface]bool
	clientSubs   map[ClientInterface]map[string]bool
	trendingSubs map[ClientInterface]bool

	store  repository.MarketStore
	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(store repository.MarketStore, logger *zap.Logger) *Hub {
	h := &Hub{
		subscribers:  make(map[string]map[ClientInterface]bool),
		clientSubs:   make(map[ClientInterface]map[string]bool),
		trendingSubs: make(map[ClientInterface]bool),
		store:        store,
		logger:       logger,
	}

	go h.store.RunPubSub(context.Background(), h.OnNotification)

	return h
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req, validTickers)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) {
	h.mu.Lock()

	var valid []string
	for _, s := range req.Payload.Symbols {
		if len(validTickers) > 0 && !validTickers[s] {
			continue
		}
		// Idempotency: ignore if already subscribed
		if h.clientSubs[client] != nil && h.clientSubs[client][s] {
			continue
		}
		valid = append(valid, s)
	}

	wantTrending := req.Payload.Trending && !h.trendingSubs[client]

	if len(valid) == 0 && !wantTrending {
		h.mu.Unlock()
		h.sendError(client, req.ID, "No valid/new subscriptions requested")
		return
	}

	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}
	for _, sym := range valid {
		h.clientSubs[client][sym] = true
		if h.subscribers[sym] == nil {
			h.subscribers[sym] = make(map[ClientInterface]bool)
		}
		h.subscribers[sym][client] = true
	}
	if wantTrending {
		h.trendingSubs[client] = true
	}
	h.mu.Unlock()

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", valid))

	// Initial snapshots, async so a slow store never blocks the command loop
	go h.sendSnapshots(client, valid, wantTrending)
}

func (h *Hub) sendSnapshots(client ClientInterface, symbols []string, trending bool) {
	ctx := context.Background()
	for _, sym := range symbols {
		if quote, err := h.store.LatestTrade(ctx, sym); err == nil {
			client.SendJSON(protocol.WSResponse{Type: "quote", Data: quote})
		} else if !errors.Is(err, repository.ErrNoData) {
			h.logger.Error("snapshot query failed", zap.String("symbol", sym), zap.Error(err))
		}
		if bar, err := h.store.LatestBar(ctx, sym); err == nil {
			client.SendJSON(protocol.WSResponse{Type: "bar", Data: bar})
		} else if !errors.Is(err, repository.ErrNoData) {
			h.logger.Error("snapshot query failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	if trending {
		if entries, err := h.store.Trending(ctx); err == nil {
			client.SendJSON(protocol.WSResponse{Type: "trending", Data: protocol.TrendingUpdate{Entries: entries}})
		} else if !errors.Is(err, repository.ErrNoData) {
			h.logger.Error("trending query failed", zap.Error(err))
		}
	}
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()

	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for _, sym := range req.Payload.Symbols {
			if subs[sym] {
				delete(subs, sym)
				h.dropSubscriber(sym, client)
				removed = append(removed, sym)
			}
		}
	}
	droppedTrending := false
	if req.Payload.Trending && h.trendingSubs[client] {
		delete(h.trendingSubs, client)
		droppedTrending = true
	}
	h.mu.Unlock()

	if len(removed) > 0 || droppedTrending {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			h.dropSubscriber(sym, client)
		}
		// Clear the map but keep the client registered
		h.clientSubs[client] = make(map[string]bool)
	}
	delete(h.trendingSubs, client)
	h.mu.Unlock()

	h.sendAck(client, req.ID, "success", "Unsubscribed from all")
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			h.dropSubscriber(sym, client)
		}
		delete(h.clientSubs, client)
	}
	delete(h.trendingSubs, client)
	h.mu.Unlock()

	client.Close()
}

// OnNotification handles one change notification: re-query the store for
// the value the topic refers to, then fan the fresh value out.
func (h *Hub) OnNotification(topic, payload string) {
	ctx := context.Background()

	switch topic {
	case models.TopicTrade:
		quote, err := h.store.LatestTrade(ctx, payload)
		if err != nil {
			h.logQueryMiss("trade", payload, err)
			return
		}
		h.broadcastSymbol(payload, protocol.WSResponse{Type: "quote", Data: quote})

	case models.TopicBar:
		bar, err := h.store.LatestBar(ctx, payload)
		if err != nil {
			h.logQueryMiss("bar", payload, err)
			return
		}
		h.broadcastSymbol(payload, protocol.WSResponse{Type: "bar", Data: bar})

	case models.TopicTrending:
		entries, err := h.store.Trending(ctx)
		if err != nil {
			h.logQueryMiss("trending", "", err)
			return
		}
		h.broadcastTrending(protocol.WSResponse{Type: "trending", Data: protocol.TrendingUpdate{Entries: entries}})
	}
}

func (h *Hub) broadcastSymbol(symbol string, resp protocol.WSResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscribers[symbol] {
		client.SendJSON(resp)
	}
}

func (h *Hub) broadcastTrending(resp protocol.WSResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.trendingSubs {
		client.SendJSON(resp)
	}
}

// dropSubscriber must be called with h.mu held.
func (h *Hub) dropSubscriber(symbol string, client ClientInterface) {
	delete(h.subscribers[symbol], client)
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

func (h *Hub) logQueryMiss(kind, symbol string, err error) {
	if errors.Is(err, repository.ErrNoData) {
		// Notification raced a reset or arrived before the first write.
		h.logger.Debug("no data behind notification", zap.String("kind", kind), zap.String("symbol", symbol))
		return
	}
	h.logger.Error("re-query failed", zap.String("kind", kind), zap.String("symbol", symbol), zap.Error(err))
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "ack", ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Message: msg})
}
