package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"finsights/internal/domain"
)

type SymbolStore struct {
	db *sqlx.DB
}

func NewSymbolStore(db *sqlx.DB) *SymbolStore {
	return &SymbolStore{db: db}
}

// ActiveSymbols returns the tickers used for best-effort symbol
// matching in parsed items.
func (s *SymbolStore) ActiveSymbols(ctx context.Context) ([]domain.StockSymbol, error) {
	var symbols []domain.StockSymbol
	err := s.db.SelectContext(ctx, &symbols, `
		SELECT id, symbol, company_name, sector, is_active
		FROM stock_symbols
		WHERE is_active
		ORDER BY symbol`)
	return symbols, err
}
