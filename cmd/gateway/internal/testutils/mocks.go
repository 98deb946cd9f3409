package testutils

import (
	"context"
	"sync"
	"testing"

	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/protocol"
	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/repository"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded JSON messages
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Type
}

func (m *MockClient) MessagesOfType(typ string) []protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []protocol.WSResponse
	for _, msg := range m.Messages {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

// MockMarketStore simulates the Redis read model with fixed latest values.
type MockMarketStore struct {
	Mu           sync.Mutex
	Trades       map[string]protocol.QuoteUpdate
	Bars         map[string]protocol.BarUpdate
	TrendingList []protocol.TrendingEntry
	Queries      []string // "trade:SYM", "bar:SYM", "trending"
}

func NewMockStore() *MockMarketStore {
	return &MockMarketStore{
		Trades: make(map[string]protocol.QuoteUpdate),
		Bars:   make(map[string]protocol.BarUpdate),
	}
}

func (m *MockMarketStore) LatestTrade(ctx context.Context, symbol string) (protocol.QuoteUpdate, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Queries = append(m.Queries, "trade:"+symbol)
	quote, ok := m.Trades[symbol]
	if !ok {
		return protocol.QuoteUpdate{}, repository.ErrNoData
	}
	return quote, nil
}

func (m *MockMarketStore) LatestBar(ctx context.Context, symbol string) (protocol.BarUpdate, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Queries = append(m.Queries, "bar:"+symbol)
	bar, ok := m.Bars[symbol]
	if !ok {
		return protocol.BarUpdate{}, repository.ErrNoData
	}
	return bar, nil
}

func (m *MockMarketStore) Trending(ctx context.Context) ([]protocol.TrendingEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Queries = append(m.Queries, "trending")
	if m.TrendingList == nil {
		return nil, repository.ErrNoData
	}
	out := make([]protocol.TrendingEntry, len(m.TrendingList))
	copy(out, m.TrendingList)
	return out, nil
}

func (m *MockMarketStore) RunPubSub(ctx context.Context, onEvent func(topic, payload string)) {
	// No-op for unit tests; tests call hub.OnNotification directly
}

func (m *MockMarketStore) Close() error { return nil }

func AssertTrue(t *testing.T, condition bool, msg string) {
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
