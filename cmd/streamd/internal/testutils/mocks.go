package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/timeseries"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// MockTSClient is an in-memory stand-in for RedisTimeSeries. Writes with a
// duplicate timestamp overwrite the stored value, matching DUPLICATE_POLICY
// LAST on the real series.
type MockTSClient struct {
	Mu      sync.Mutex
	Series  map[string]map[int64]float64
	Created map[string]*redis.TSOptions

	FailAdd error // when set, TSAdd/TSMAdd return this error
}

func NewMockTSClient() *MockTSClient {
	return &MockTSClient{
		Series:  make(map[string]map[int64]float64),
		Created: make(map[string]*redis.TSOptions),
	}
}

func (m *MockTSClient) put(key string, ts int64, value float64) {
	if m.Series[key] == nil {
		m.Series[key] = make(map[int64]float64)
	}
	m.Series[key][ts] = value
}

func (m *MockTSClient) TSCreateWithArgs(ctx context.Context, key string, options *redis.TSOptions) *redis.StatusCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewStatusCmd(ctx)
	m.Created[key] = options
	if m.Series[key] == nil {
		m.Series[key] = make(map[int64]float64)
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *MockTSClient) TSAdd(ctx context.Context, key string, timestamp interface{}, value float64) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if m.FailAdd != nil {
		cmd.SetErr(m.FailAdd)
		return cmd
	}
	ts := timestamp.(int64)
	m.put(key, ts, value)
	cmd.SetVal(ts)
	return cmd
}

func (m *MockTSClient) TSMAdd(ctx context.Context, ktvSlices [][]interface{}) *redis.IntSliceCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewIntSliceCmd(ctx)
	if m.FailAdd != nil {
		cmd.SetErr(m.FailAdd)
		return cmd
	}
	out := make([]int64, 0, len(ktvSlices))
	for _, ktv := range ktvSlices {
		key := ktv[0].(string)
		ts := ktv[1].(int64)
		m.put(key, ts, ktv[2].(float64))
		out = append(out, ts)
	}
	cmd.SetVal(out)
	return cmd
}

func (m *MockTSClient) TSGet(ctx context.Context, key string) *redis.TSTimestampValueCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := &redis.TSTimestampValueCmd{}
	samples, ok := m.Series[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	var latest redis.TSTimestampValue
	for ts, v := range samples {
		if ts >= latest.Timestamp {
			latest = redis.TSTimestampValue{Timestamp: ts, Value: v}
		}
	}
	cmd.SetVal(latest)
	return cmd
}

func (m *MockTSClient) rangeCmd(key string, from, to, count int, newestFirst bool) *redis.TSTimestampValueSliceCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := &redis.TSTimestampValueSliceCmd{}
	samples, ok := m.Series[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	out := make([]redis.TSTimestampValue, 0, len(samples))
	for ts, v := range samples {
		if ts >= int64(from) && ts <= int64(to) {
			out = append(out, redis.TSTimestampValue{Timestamp: ts, Value: v})
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			asc := out[j-1].Timestamp > out[j].Timestamp
			if (newestFirst && !asc) || (!newestFirst && asc) {
				out[j-1], out[j] = out[j], out[j-1]
			}
		}
	}
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	cmd.SetVal(out)
	return cmd
}

func (m *MockTSClient) TSRangeWithArgs(ctx context.Context, key string, from, to int, options *redis.TSRangeOptions) *redis.TSTimestampValueSliceCmd {
	var count int
	if options != nil {
		count = options.Count
	}
	return m.rangeCmd(key, from, to, count, false)
}

func (m *MockTSClient) TSRevRangeWithArgs(ctx context.Context, key string, from, to int, options *redis.TSRevRangeOptions) *redis.TSTimestampValueSliceCmd {
	var count int
	if options != nil {
		count = options.Count
	}
	return m.rangeCmd(key, from, to, count, true)
}

func (m *MockTSClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, key := range keys {
		if _, ok := m.Series[key]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

// MockTopKClient is an in-memory stand-in for a RedisBloom Top-K sketch. It
// keeps exact counts, which is fine for ranking assertions.
type MockTopKClient struct {
	Mu       sync.Mutex
	Reserved bool
	K        int64
	Counts   map[string]int64
	Order    []string // insertion order, for stable list output

	ReserveCount int
	DelCount     int
	ExpireTTL    time.Duration
}

func NewMockTopKClient() *MockTopKClient {
	return &MockTopKClient{Counts: make(map[string]int64)}
}

func (m *MockTopKClient) TopKReserveWithOptions(ctx context.Context, key string, k, width, depth int64, decay float64) *redis.StatusCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reserved = true
	m.K = k
	m.Counts = make(map[string]int64)
	m.Order = nil
	m.ReserveCount++
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *MockTopKClient) TopKAdd(ctx context.Context, key string, elements ...interface{}) *redis.StringSliceCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewStringSliceCmd(ctx)
	if !m.Reserved {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	out := make([]string, len(elements))
	for _, el := range elements {
		sym := el.(string)
		if _, seen := m.Counts[sym]; !seen {
			m.Order = append(m.Order, sym)
		}
		m.Counts[sym]++
	}
	cmd.SetVal(out)
	return cmd
}

func (m *MockTopKClient) ranked() []string {
	out := make([]string, len(m.Order))
	copy(out, m.Order)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && m.Counts[out[j-1]] < m.Counts[out[j]]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	if m.K > 0 && int64(len(out)) > m.K {
		out = out[:m.K]
	}
	return out
}

func (m *MockTopKClient) TopKList(ctx context.Context, key string) *redis.StringSliceCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewStringSliceCmd(ctx)
	if !m.Reserved {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(m.ranked())
	return cmd
}

func (m *MockTopKClient) TopKListWithCount(ctx context.Context, key string) *redis.MapStringIntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewMapStringIntCmd(ctx)
	if !m.Reserved {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	out := make(map[string]int64)
	for _, sym := range m.ranked() {
		out[sym] = m.Counts[sym]
	}
	cmd.SetVal(out)
	return cmd
}

func (m *MockTopKClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if m.Reserved {
		cmd.SetVal(1)
	} else {
		cmd.SetVal(0)
	}
	return cmd
}

func (m *MockTopKClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Reserved = false
	m.Counts = make(map[string]int64)
	m.Order = nil
	m.DelCount++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (m *MockTopKClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExpireTTL = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

// MockPublisher records Publish calls for fan-out assertions.
type MockPublisher struct {
	Mu       sync.Mutex
	Messages map[string][]string // channel -> payloads
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string][]string)}
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	payload, _ := message.(string)
	m.Messages[channel] = append(m.Messages[channel], payload)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (m *MockPublisher) Payloads(channel string) []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Messages[channel]))
	copy(out, m.Messages[channel])
	return out
}

// SpyFeed records subscription traffic and tracks the active set.
type SpyFeed struct {
	Mu           sync.Mutex
	ActiveSet    map[string]bool
	Subscribed   [][]string
	Unsubscribed [][]string
	Calls        []string // interleaved call order: "subscribe", "unsubscribe"
}

func NewSpyFeed(active ...string) *SpyFeed {
	f := &SpyFeed{ActiveSet: make(map[string]bool)}
	for _, s := range active {
		f.ActiveSet[s] = true
	}
	return f
}

func (f *SpyFeed) Subscribe(ctx context.Context, symbols []string) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Subscribed = append(f.Subscribed, symbols)
	f.Calls = append(f.Calls, "subscribe")
	for _, s := range symbols {
		f.ActiveSet[s] = true
	}
}

func (f *SpyFeed) Unsubscribe(ctx context.Context, symbols []string) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Unsubscribed = append(f.Unsubscribed, symbols)
	f.Calls = append(f.Calls, "unsubscribe")
	for _, s := range symbols {
		delete(f.ActiveSet, s)
	}
}

func (f *SpyFeed) Active() []string {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	out := make([]string, 0, len(f.ActiveSet))
	for s := range f.ActiveSet {
		out = append(out, s)
	}
	return out
}

// SpyBackfiller records Seed calls; FailFor makes named symbols error.
type SpyBackfiller struct {
	Mu      sync.Mutex
	Seeded  []string
	FailFor map[string]error
}

func NewSpyBackfiller() *SpyBackfiller {
	return &SpyBackfiller{FailFor: make(map[string]error)}
}

func (b *SpyBackfiller) Seed(ctx context.Context, symbol string) error {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	b.Seeded = append(b.Seeded, symbol)
	if err, ok := b.FailFor[symbol]; ok {
		return err
	}
	return nil
}

// StubWatchRepo returns a fixed member list.
type StubWatchRepo struct {
	Mu          sync.Mutex
	MembersList []string
	Err         error
	Reads       int
}

func (r *StubWatchRepo) Members(ctx context.Context) ([]string, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Reads++
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]string, len(r.MembersList))
	copy(out, r.MembersList)
	return out, nil
}

// FakeClock advances only when told to; Sleep records requested durations
// without blocking.
type FakeClock struct {
	Mu    sync.Mutex
	T     time.Time
	Slept []time.Duration
}

func (c *FakeClock) Now() time.Time {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.T
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Slept = append(c.Slept, d)
	c.T = c.T.Add(d)
}

// SpySink records appended points.
type SpySink struct {
	Mu      sync.Mutex
	Batches [][]timeseries.Point
	Err     error
}

func (s *SpySink) AppendBatch(ctx context.Context, points []timeseries.Point) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Batches = append(s.Batches, points)
	return s.Err
}

func (s *SpySink) AllPoints() []timeseries.Point {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	var out []timeseries.Point
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}

// SpyTrends records symbols and reports Counted back to the caller.
type SpyTrends struct {
	Mu       sync.Mutex
	Recorded []string
	Counted  bool
	Err      error
}

func (t *SpyTrends) Record(ctx context.Context, symbol string) (bool, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.Recorded = append(t.Recorded, symbol)
	return t.Counted, t.Err
}

// SpyNotifier counts notifications per topic.
type SpyNotifier struct {
	Mu              sync.Mutex
	Trades          []string
	Bars            []string
	TrendingUpdates int
}

func (n *SpyNotifier) Trade(ctx context.Context, symbol string) {
	n.Mu.Lock()
	defer n.Mu.Unlock()
	n.Trades = append(n.Trades, symbol)
}

func (n *SpyNotifier) Bar(ctx context.Context, symbol string) {
	n.Mu.Lock()
	defer n.Mu.Unlock()
	n.Bars = append(n.Bars, symbol)
}

func (n *SpyNotifier) TrendingUpdated(ctx context.Context) {
	n.Mu.Lock()
	defer n.Mu.Unlock()
	n.TrendingUpdates++
}

// SpyNewsAppender records AddNews calls.
type SpyNewsAppender struct {
	Mu    sync.Mutex
	Added []string // "SYMBOL:headline"
	Err   error
}

func (a *SpyNewsAppender) AddNews(ctx context.Context, symbol string, item models.News) error {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.Added = append(a.Added, symbol+":"+item.Headline)
	return a.Err
}

// SpyEventPublisher records mirrored events.
type SpyEventPublisher struct {
	Mu        sync.Mutex
	Published []string // "type/SYMBOL"
}

func (p *SpyEventPublisher) Publish(ctx context.Context, typ models.EventType, symbol string, event interface{}) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.Published = append(p.Published, string(typ)+"/"+symbol)
}

// FakeFeedClient is a scripted connection: tests push inbound frames with
// Deliver and assert on Sent outbound frames.
type FakeFeedClient struct {
	Mu         sync.Mutex
	Sent       [][]byte
	ConnectErr error
	Connected  bool

	messages chan []byte
	errs     chan error
}

func NewFakeFeedClient() *FakeFeedClient {
	return &FakeFeedClient{
		messages: make(chan []byte, 64),
		errs:     make(chan error, 1),
	}
}

func (c *FakeFeedClient) Connect(ctx context.Context) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.Connected = true
	return nil
}

func (c *FakeFeedClient) Close() error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Connected = false
	return nil
}

func (c *FakeFeedClient) Send(data []byte) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.Sent = append(c.Sent, buf)
	return nil
}

func (c *FakeFeedClient) Messages() <-chan []byte { return c.messages }
func (c *FakeFeedClient) Errors() <-chan error    { return c.errs }

// Deliver queues an inbound frame as if read from the socket.
func (c *FakeFeedClient) Deliver(frame []byte) { c.messages <- frame }

// Fail injects a read error, which the manager treats as a dropped
// connection.
func (c *FakeFeedClient) Fail(err error) { c.errs <- err }

// SentFrames returns a copy of everything written to the connection.
func (c *FakeFeedClient) SentFrames() [][]byte {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	out := make([][]byte, len(c.Sent))
	copy(out, c.Sent)
	return out
}
