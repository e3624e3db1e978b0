package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS offers (
	id              TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL,
	shop_id         TEXT NOT NULL,
	product_name    TEXT NOT NULL,
	brand           TEXT,
	category        TEXT,
	city            TEXT,
	price           BIGINT NOT NULL,
	warranty_months INT NOT NULL DEFAULT 0,
	seller_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	features        TEXT
);

CREATE INDEX IF NOT EXISTS offers_price_idx ON offers (price);
CREATE INDEX IF NOT EXISTS offers_city_idx ON offers (LOWER(city));
CREATE INDEX IF NOT EXISTS offers_brand_idx ON offers (LOWER(brand));
`

// EnsureSchema creates the offers table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
