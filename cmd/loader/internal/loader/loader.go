// Package loader bulk-imports a NASDAQ symbol listing into the stock
// catalog. Expected header:
//
//	Symbol,Name,Last Sale,Net Change,% Change,Market Cap,Country,IPO Year,Volume,Sector,Industry
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// CatalogWriter stores one record per symbol.
type CatalogWriter interface {
	Put(ctx context.Context, rec models.StockRecord) error
}

type Loader struct {
	catalog CatalogWriter
	logger  *zap.Logger
}

func New(catalog CatalogWriter, logger *zap.Logger) *Loader {
	return &Loader{catalog: catalog, logger: logger}
}

// Run reads the listing and writes a catalog record per row. Rows that fail
// to store are skipped and counted; only a malformed file aborts the run.
func (l *Loader) Run(ctx context.Context, r io.Reader) (loaded, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Symbol", "Name"} {
		if _, ok := cols[required]; !ok {
			return 0, 0, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, skipped, fmt.Errorf("read row: %w", err)
		}

		symbol := strings.ToUpper(field(row, "Symbol"))
		if symbol == "" {
			skipped++
			continue
		}

		rec := models.StockRecord{
			Symbol:    symbol,
			Name:      field(row, "Name"),
			LastSale:  field(row, "Last Sale"),
			MarketCap: field(row, "Market Cap"),
			Country:   field(row, "Country"),
			IPO:       field(row, "IPO Year"),
			Volume:    field(row, "Volume"),
			Sector:    field(row, "Sector"),
			Industry:  field(row, "Industry"),
			News:      []models.News{},
		}

		if err := l.catalog.Put(ctx, rec); err != nil {
			l.logger.Warn("Failed to store record", zap.String("symbol", symbol), zap.Error(err))
			skipped++
			continue
		}
		loaded++
	}

	return loaded, skipped, nil
}
