package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvakili/kashef/discovery"
)

const offerColumns = `id, product_id, shop_id, product_name,
		COALESCE(brand, ''), COALESCE(category, ''), COALESCE(city, ''),
		price, warranty_months, seller_score, COALESCE(features, '')`

// Search fetches offers matching the hard constraints: price range, city,
// and brand/category when required. Keywords pre-narrow the fetch with a
// disjunctive ILIKE so fuzzy matches survive for in-process scoring. The
// Store therefore satisfies discovery.Catalogue.
func (s *Store) Search(ctx context.Context, q discovery.Query) ([]discovery.Offer, error) {
	cs := q.Constraints

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if cs.Has(discovery.TopicPrice) {
		if cs.PriceMin != nil {
			conds = append(conds, "price >= "+arg(*cs.PriceMin))
		}
		if cs.PriceMax != nil {
			conds = append(conds, "price <= "+arg(*cs.PriceMax))
		}
	}
	if cs.Has(discovery.TopicCity) {
		conds = append(conds, "LOWER(city) = LOWER("+arg(cs.City)+")")
	}
	if cs.Has(discovery.TopicBrand) && cs.IsRequired(discovery.TopicBrand) {
		conds = append(conds, "LOWER(brand) = LOWER("+arg(cs.Brand)+")")
	}
	if cs.Has(discovery.TopicCategory) && cs.IsRequired(discovery.TopicCategory) {
		conds = append(conds, "LOWER(category) = LOWER("+arg(cs.Category)+")")
	}
	if cs.Has(discovery.TopicKeywords) {
		var kw []string
		for _, k := range cs.Keywords {
			p := arg("%" + k + "%")
			kw = append(kw, "product_name ILIKE "+p+" OR features ILIKE "+p)
		}
		conds = append(conds, "("+strings.Join(kw, " OR ")+")")
	}

	query := "SELECT " + offerColumns + " FROM offers"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seller_score DESC, price ASC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search offers: %w", err)
	}
	defer rows.Close()

	var offers []discovery.Offer
	for rows.Next() {
		var off discovery.Offer
		if err := rows.Scan(
			&off.ID, &off.ProductID, &off.ShopID, &off.ProductName,
			&off.Brand, &off.Category, &off.City,
			&off.Price, &off.WarrantyMonths, &off.SellerScore, &off.Features,
		); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, off)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search offers: %w", err)
	}
	return offers, nil
}

// UpsertOffer inserts or replaces one catalogue offer, used by the seeder.
func (s *Store) UpsertOffer(ctx context.Context, off discovery.Offer) error {
	query := `
		INSERT INTO offers (id, product_id, shop_id, product_name, brand, category, city,
			price, warranty_months, seller_score, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			shop_id = EXCLUDED.shop_id,
			product_name = EXCLUDED.product_name,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			city = EXCLUDED.city,
			price = EXCLUDED.price,
			warranty_months = EXCLUDED.warranty_months,
			seller_score = EXCLUDED.seller_score,
			features = EXCLUDED.features`

	_, err := s.conn(ctx).Exec(ctx, query,
		off.ID, off.ProductID, off.ShopID, off.ProductName,
		off.Brand, off.Category, off.City,
		off.Price, off.WarrantyMonths, off.SellerScore, off.Features)
	if err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}
	return nil
}

// CountOffers returns the catalogue size.
func (s *Store) CountOffers(ctx context.Context) (int, error) {
	var n int
	if err := s.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM offers").Scan(&n); err != nil {
		return 0, fmt.Errorf("count offers: %w", err)
	}
	return n, nil
}

// LoadLexicon collects the distinct brand, city and category vocabulary the
// rule extractor matches against.
func (s *Store) LoadLexicon(ctx context.Context) (discovery.Lexicon, error) {
	var lex discovery.Lexicon

	load := func(column string, dst *[]string) error {
		query := fmt.Sprintf(
			"SELECT DISTINCT %s FROM offers WHERE %s IS NOT NULL AND %s <> '' ORDER BY %s",
			column, column, column, column)
		rows, err := s.conn(ctx).Query(ctx, query)
		if err != nil {
			return fmt.Errorf("load %s lexicon: %w", column, err)
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("scan %s: %w", column, err)
			}
			*dst = append(*dst, v)
		}
		return rows.Err()
	}

	if err := load("brand", &lex.Brands); err != nil {
		return lex, err
	}
	if err := load("city", &lex.Cities); err != nil {
		return lex, err
	}
	if err := load("category", &lex.Categories); err != nil {
		return lex, err
	}
	return lex, nil
}
