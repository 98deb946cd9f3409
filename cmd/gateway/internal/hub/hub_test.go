package hub_test

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/hub"
	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/protocol"
	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/testutils"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

func setup() (*hub.Hub, *testutils.MockMarketStore) {
	store := testutils.NewMockStore()
	logger := zap.NewNop()
	return hub.NewHub(store, logger), store
}

var validTickers = map[string]bool{"AAPL": true, "TSLA": true, "GOOG": true}

// waitForSnapshots blocks until the async snapshot delivery has issued the
// expected number of store queries, so later message counts are stable.
func waitForSnapshots(t *testing.T, store *testutils.MockMarketStore, wantQueries int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.Mu.Lock()
		n := len(store.Queries)
		store.Mu.Unlock()
		if n >= wantQueries {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("snapshot queries did not complete")
}

func TestHub_Subscribe_Success(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	req := protocol.WSRequest{
		Action:  "subscribe",
		Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
		ID:      "req-1",
	}

	h.HandleCommand(client, req, validTickers)

	if client.LastMsgType() != "ack" {
		t.Errorf("Expected ack, got %s", client.LastMsgType())
	}
}

func TestHub_Subscribe_MixedValidity(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	req := protocol.WSRequest{
		Action:  "subscribe",
		Payload: protocol.RequestPayload{Symbols: []string{"AAPL", "INVALID_STOCK"}},
		ID:      "req-2",
	}

	h.HandleCommand(client, req, validTickers)

	lastMsg := client.Messages[len(client.Messages)-1]
	if lastMsg.Status != "success" {
		t.Errorf("Expected success for partial valid subscription")
	}
	if !strings.Contains(lastMsg.Message, "AAPL") {
		t.Errorf("Response should contain accepted symbol AAPL")
	}
	if strings.Contains(lastMsg.Message, "INVALID_STOCK") {
		t.Errorf("Response should NOT contain invalid symbol")
	}
}

func TestHub_Subscribe_Idempotency(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")
	req := protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}

	h.HandleCommand(client, req, validTickers)

	h.HandleCommand(client, req, validTickers)

	// Second identical request carries nothing new
	if client.LastMsgType() != "error" {
		t.Errorf("Repeat subscription should be rejected as already held")
	}
}

func TestHub_Notification_RoutesToSubscriber(t *testing.T) {
	h, store := setup()
	store.Trades["AAPL"] = protocol.QuoteUpdate{Symbol: "AAPL", Price: 150.5, Timestamp: 1700000000000}

	subscriber := testutils.NewMockClient("c1")
	bystander := testutils.NewMockClient("c2")

	h.HandleCommand(subscriber, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}, validTickers)
	h.HandleCommand(bystander, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"TSLA"}},
	}, validTickers)
	waitForSnapshots(t, store, 4)

	h.OnNotification(models.TopicTrade, "AAPL")

	quotes := subscriber.MessagesOfType("quote")
	if len(quotes) == 0 {
		t.Fatal("Subscriber should receive a quote after a trade notification")
	}
	quote, ok := quotes[len(quotes)-1].Data.(protocol.QuoteUpdate)
	if !ok || quote.Price != 150.5 {
		t.Errorf("Expected re-queried price 150.5, got %+v", quotes[len(quotes)-1].Data)
	}
	if len(bystander.MessagesOfType("quote")) != 0 {
		t.Error("Client watching a different symbol should not receive the quote")
	}
}

func TestHub_Notification_NoDataIsSilent(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}, validTickers)

	before := len(client.MessagesOfType("quote"))
	h.OnNotification(models.TopicTrade, "AAPL")

	if len(client.MessagesOfType("quote")) != before {
		t.Error("Notification with no backing data should push nothing")
	}
}

func TestHub_Trending_Broadcast(t *testing.T) {
	h, store := setup()
	store.TrendingList = []protocol.TrendingEntry{
		{Symbol: "TSLA", Count: 42},
		{Symbol: "AAPL", Count: 17},
	}

	watcher := testutils.NewMockClient("c1")
	bystander := testutils.NewMockClient("c2")

	h.HandleCommand(watcher, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Trending: true},
	}, validTickers)
	h.HandleCommand(bystander, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}, validTickers)
	waitForSnapshots(t, store, 3)

	h.OnNotification(models.TopicTrending, "updated")

	updates := watcher.MessagesOfType("trending")
	if len(updates) == 0 {
		t.Fatal("Trending subscriber should receive the ranking")
	}
	ranking, ok := updates[len(updates)-1].Data.(protocol.TrendingUpdate)
	if !ok || len(ranking.Entries) != 2 || ranking.Entries[0].Symbol != "TSLA" {
		t.Errorf("Expected TSLA first in ranking, got %+v", updates[len(updates)-1].Data)
	}
	if len(bystander.MessagesOfType("trending")) != 0 {
		t.Error("Symbol-only subscriber should not receive trending updates")
	}
}

func TestHub_Subscribe_SendsSnapshot(t *testing.T) {
	h, store := setup()
	store.Trades["AAPL"] = protocol.QuoteUpdate{Symbol: "AAPL", Price: 99.0, Timestamp: 1700000000000}
	store.Bars["AAPL"] = protocol.BarUpdate{Symbol: "AAPL", Close: 98.5, Timestamp: 1700000000000}

	client := testutils.NewMockClient("c1")
	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}, validTickers)

	// Snapshots are delivered off the command path
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(client.MessagesOfType("quote")) > 0 && len(client.MessagesOfType("bar")) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected quote and bar snapshots after subscribing")
}

func TestHub_Unsubscribe_Logic(t *testing.T) {
	h, store := setup()
	store.Trades["AAPL"] = protocol.QuoteUpdate{Symbol: "AAPL", Price: 1}
	store.Trades["TSLA"] = protocol.QuoteUpdate{Symbol: "TSLA", Price: 2}
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL", "TSLA"}},
	}, validTickers)
	waitForSnapshots(t, store, 4)

	h.HandleCommand(client, protocol.WSRequest{
		Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}},
	}, validTickers)

	before := len(client.MessagesOfType("quote"))
	h.OnNotification(models.TopicTrade, "AAPL")
	if len(client.MessagesOfType("quote")) != before {
		t.Error("Unsubscribed symbol should no longer be routed")
	}

	h.OnNotification(models.TopicTrade, "TSLA")
	if len(client.MessagesOfType("quote")) != before+1 {
		t.Error("Remaining subscription should still be routed")
	}
}

func TestHub_Unsubscribe_NotSubscribed(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"GOOG"}},
		ID: "err-check",
	}, validTickers)

	lastMsg := client.Messages[len(client.Messages)-1]
	if lastMsg.Type != "error" {
		t.Errorf("Expected error response for unsubscribing non-watched symbol")
	}
}

func TestHub_UnsubscribeAll(t *testing.T) {
	h, store := setup()
	store.Trades["AAPL"] = protocol.QuoteUpdate{Symbol: "AAPL", Price: 1}
	store.TrendingList = []protocol.TrendingEntry{{Symbol: "AAPL", Count: 3}}
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL", "TSLA"}, Trending: true},
	}, validTickers)
	waitForSnapshots(t, store, 5)

	h.HandleCommand(client, protocol.WSRequest{Action: "unsubscribe_all"}, validTickers)

	quotesBefore := len(client.MessagesOfType("quote"))
	trendingBefore := len(client.MessagesOfType("trending"))
	h.OnNotification(models.TopicTrade, "AAPL")
	h.OnNotification(models.TopicTrending, "updated")

	if len(client.MessagesOfType("quote")) != quotesBefore {
		t.Error("No quotes should arrive after unsubscribe_all")
	}
	if len(client.MessagesOfType("trending")) != trendingBefore {
		t.Error("No trending updates should arrive after unsubscribe_all")
	}
}

func TestHub_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	go func() {
		h.HandleCommand(client, protocol.WSRequest{Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}}}, validTickers)
	}()
	go func() {
		h.HandleCommand(client, protocol.WSRequest{Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"AAPL"}}}, validTickers)
	}()
	go func() {
		h.Unregister(client)
	}()
}
