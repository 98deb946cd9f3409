// Package simulator serves a synthetic market-data feed over the same
// websocket protocol the real upstream speaks, so the ingest pipeline
// can run locally without credentials or market hours.
package simulator

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const (
	tickInterval   = 250 * time.Millisecond
	defaultBarSpan = 60 // ticks between bar emissions
)

// command is the inbound control frame: auth and subscription requests
// share one shape.
type command struct {
	Action string   `json:"action"`
	Key    string   `json:"key"`
	Secret string   `json:"secret"`
	Trades []string `json:"trades"`
	Bars   []string `json:"bars"`
	Quotes []string `json:"quotes"`
}

type controlReply struct {
	Type   string   `json:"T"`
	Msg    string   `json:"msg,omitempty"`
	Code   int      `json:"code,omitempty"`
	Trades []string `json:"trades,omitempty"`
	Bars   []string `json:"bars,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
}

type tradeFrame struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	ID        int64     `json:"i"`
	Exchange  string    `json:"x"`
	Price     float64   `json:"p"`
	Size      uint32    `json:"s"`
	Tape      string    `json:"z"`
	Timestamp time.Time `json:"t"`
}

type barFrame struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    uint64    `json:"v"`
	Timestamp time.Time `json:"t"`
}

type quoteFrame struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	BidPrice  float64   `json:"bp"`
	BidSize   uint32    `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   uint32    `json:"as"`
	Timestamp time.Time `json:"t"`
}

// walk is the per-symbol random-walk state plus the bar being built.
type walk struct {
	price   float64
	barOpen float64
	barHigh float64
	barLow  float64
	barVol  uint64
	dirty   bool
	seq     int64
}

type session struct {
	conn    net.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	authed bool
	trades map[string]struct{}
	bars   map[string]struct{}
	quotes map[string]struct{}
}

func (s *session) send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsutil.WriteServerText(s.conn, payload)
}

func (s *session) wants(stream map[string]struct{}, symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := stream[symbol]
	return ok
}

type Simulator struct {
	logger  *zap.Logger
	clock   Clock
	rand    Rand
	barSpan int

	mu       sync.Mutex
	sessions map[*session]struct{}
	walks    map[string]*walk
	ticks    int
}

func New(logger *zap.Logger, clock Clock, rnd Rand) *Simulator {
	return &Simulator{
		logger:   logger,
		clock:    clock,
		rand:     rnd,
		barSpan:  defaultBarSpan,
		sessions: make(map[*session]struct{}),
		walks:    make(map[string]*walk),
	}
}

// HandleConn owns one upgraded websocket connection until it closes.
func (s *Simulator) HandleConn(conn net.Conn) {
	sess := &session{
		conn:   conn,
		trades: make(map[string]struct{}),
		bars:   make(map[string]struct{}),
		quotes: make(map[string]struct{}),
	}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := sess.send([]controlReply{{Type: "success", Msg: "connected"}}); err != nil {
		return
	}

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		s.handleCommand(sess, data)
	}
}

func (s *Simulator) handleCommand(sess *session, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		sess.send([]controlReply{{Type: "error", Code: 400, Msg: "invalid syntax"}})
		return
	}

	switch cmd.Action {
	case "auth":
		if cmd.Key == "" {
			sess.send([]controlReply{{Type: "error", Code: 402, Msg: "auth failed"}})
			return
		}
		sess.mu.Lock()
		sess.authed = true
		sess.mu.Unlock()
		sess.send([]controlReply{{Type: "success", Msg: "authenticated"}})

	case "subscribe", "unsubscribe":
		sess.mu.Lock()
		if !sess.authed {
			sess.mu.Unlock()
			sess.send([]controlReply{{Type: "error", Code: 401, Msg: "not authenticated"}})
			return
		}
		// Walk creation needs s.mu, which must never nest inside
		// sess.mu. Collect first, seed after unlocking.
		var added []string
		apply := func(stream map[string]struct{}, symbols []string) {
			for _, raw := range symbols {
				sym := strings.ToUpper(strings.TrimSpace(raw))
				if sym == "" {
					continue
				}
				if cmd.Action == "subscribe" {
					stream[sym] = struct{}{}
					added = append(added, sym)
				} else {
					delete(stream, sym)
				}
			}
		}
		apply(sess.trades, cmd.Trades)
		apply(sess.bars, cmd.Bars)
		apply(sess.quotes, cmd.Quotes)
		reply := []controlReply{{
			Type:   "subscription",
			Trades: sortedKeys(sess.trades),
			Bars:   sortedKeys(sess.bars),
			Quotes: sortedKeys(sess.quotes),
		}}
		sess.mu.Unlock()
		for _, sym := range added {
			s.ensureWalk(sym)
		}
		sess.send(reply)

	default:
		sess.send([]controlReply{{Type: "error", Code: 400, Msg: "invalid syntax"}})
	}
}

func (s *Simulator) ensureWalk(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.walks[symbol]; !ok {
		s.walks[symbol] = &walk{price: 20 + s.rand.Float64()*230}
	}
}

// Run drives the price walk until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("simulator started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.tick()
			s.clock.Sleep(tickInterval)
		}
	}
}

// tick advances one symbol's walk and fans the resulting trade (and
// quote) out to subscribed sessions. Every barSpan ticks the
// accumulated bars flush too.
func (s *Simulator) tick() {
	symbols := s.activeSymbols()
	if len(symbols) == 0 {
		return
	}

	symbol := symbols[s.rand.Intn(len(symbols))]
	now := s.clock.Now().UTC()

	s.mu.Lock()
	w := s.walks[symbol]
	price := w.price + (s.rand.Float64()*10 - 5)
	if price < 1 {
		price = 1
	}
	w.price = price
	if !w.dirty {
		w.barOpen, w.barHigh, w.barLow = price, price, price
		w.dirty = true
	}
	if price > w.barHigh {
		w.barHigh = price
	}
	if price < w.barLow {
		w.barLow = price
	}
	size := uint32(1 + s.rand.Intn(500))
	w.barVol += uint64(size)
	w.seq++
	trade := tradeFrame{
		Type: "t", Symbol: symbol, ID: w.seq, Exchange: "V",
		Price: price, Size: size, Tape: "C", Timestamp: now,
	}
	quote := quoteFrame{
		Type: "q", Symbol: symbol,
		BidPrice: price - 0.02, BidSize: size, AskPrice: price + 0.02, AskSize: size,
		Timestamp: now,
	}
	s.ticks++
	flushBars := s.ticks%s.barSpan == 0
	s.mu.Unlock()

	s.broadcast(func(sess *session) {
		if sess.wants(sess.trades, symbol) {
			sess.send([]tradeFrame{trade})
		}
		if sess.wants(sess.quotes, symbol) {
			sess.send([]quoteFrame{quote})
		}
	})

	if flushBars {
		s.flushBars(now)
	}
}

func (s *Simulator) flushBars(now time.Time) {
	s.mu.Lock()
	frames := make(map[string]barFrame)
	for symbol, w := range s.walks {
		if !w.dirty {
			continue
		}
		frames[symbol] = barFrame{
			Type: "b", Symbol: symbol,
			Open: w.barOpen, High: w.barHigh, Low: w.barLow, Close: w.price,
			Volume: w.barVol, Timestamp: now,
		}
		w.dirty = false
		w.barVol = 0
	}
	s.mu.Unlock()

	for symbol, frame := range frames {
		s.broadcast(func(sess *session) {
			if sess.wants(sess.bars, symbol) {
				sess.send([]barFrame{frame})
			}
		})
	}
}

func (s *Simulator) broadcast(deliver func(*session)) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		deliver(sess)
	}
}

// activeSymbols is the sorted union of trade subscriptions across all
// sessions. Sorted so the random pick is deterministic under a fixed
// Rand.
func (s *Simulator) activeSymbols() []string {
	seen := make(map[string]struct{})
	s.mu.Lock()
	for sess := range s.sessions {
		sess.mu.Lock()
		for sym := range sess.trades {
			seen[sym] = struct{}{}
		}
		sess.mu.Unlock()
	}
	s.mu.Unlock()
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
