package feed

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeTrade(t *testing.T) {
	raw := json.RawMessage(`{"T":"t","S":"AAPL","i":52983525029461,"x":"V","p":150.25,"s":100,"c":["@"],"z":"C","t":"2026-08-28T14:30:05.123456789Z"}`)

	trade, err := decodeTrade(raw)
	if err != nil {
		t.Fatalf("decodeTrade failed: %v", err)
	}
	if trade.Symbol != "AAPL" || trade.Price != 150.25 || trade.Size != 100 {
		t.Errorf("Unexpected trade: %+v", trade)
	}
	want := time.Date(2026, 8, 28, 14, 30, 5, 123456789, time.UTC)
	if !trade.Timestamp.Equal(want) {
		t.Errorf("Timestamp mismatch: %v", trade.Timestamp)
	}
}

func TestDecodeTrade_MissingSymbol(t *testing.T) {
	if _, err := decodeTrade(json.RawMessage(`{"T":"t","p":150.25}`)); err == nil {
		t.Error("Trade without a symbol must be rejected")
	}
}

func TestDecodeBar(t *testing.T) {
	raw := json.RawMessage(`{"T":"b","S":"TSLA","o":700,"h":710.5,"l":695.25,"c":705,"v":120000,"n":532,"vw":702.1,"t":"2026-08-28T14:30:00Z"}`)

	bar, err := decodeBar(raw)
	if err != nil {
		t.Fatalf("decodeBar failed: %v", err)
	}
	if bar.High != 710.5 || bar.Volume != 120000 || bar.TradeCount != 532 {
		t.Errorf("Unexpected bar: %+v", bar)
	}
}

func TestDecodeQuote(t *testing.T) {
	raw := json.RawMessage(`{"T":"q","S":"AAPL","bx":"V","bp":150.0,"bs":3,"ax":"Q","ap":150.1,"as":5,"t":"2026-08-28T14:30:00Z"}`)

	quote, err := decodeQuote(raw)
	if err != nil {
		t.Fatalf("decodeQuote failed: %v", err)
	}
	if quote.BidPrice != 150.0 || quote.AskSize != 5 || quote.AskExchange != "Q" {
		t.Errorf("Unexpected quote: %+v", quote)
	}
}

func TestDecodeNews(t *testing.T) {
	raw := json.RawMessage(`{"T":"n","id":24918784,"headline":"Earnings beat","author":"Newsroom","symbols":["AAPL","MSFT"],"created_at":"2026-08-28T12:00:00Z"}`)

	news, err := decodeNews(raw)
	if err != nil {
		t.Fatalf("decodeNews failed: %v", err)
	}
	if news.ID != 24918784 || len(news.Symbols) != 2 {
		t.Errorf("Unexpected news: %+v", news)
	}
}

func TestDecodeNews_NoSymbols(t *testing.T) {
	if _, err := decodeNews(json.RawMessage(`{"T":"n","id":1,"headline":"Market-wide note"}`)); err == nil {
		t.Error("News without symbols must be rejected")
	}
}

func TestSubscribeCmd_OmitsEmptyLists(t *testing.T) {
	data, err := json.Marshal(subscribeCmd{Action: "subscribe", Trades: []string{"AAPL"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"action":"subscribe","trades":["AAPL"]}` {
		t.Errorf("Empty filter lists should be omitted, got %s", data)
	}
}
