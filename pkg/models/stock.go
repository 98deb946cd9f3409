package models

// StockRecord holds the static catalog metadata for a symbol plus its
// accumulated news. News is append-only.
type StockRecord struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	LastSale  string `json:"last_sale"`
	MarketCap string `json:"market_cap"`
	Country   string `json:"country"`
	IPO       string `json:"ipo"`
	Volume    string `json:"volume"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
	News      []News `json:"news"`
}
