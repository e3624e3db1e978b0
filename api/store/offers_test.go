package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvakili/kashef/discovery"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func offerRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "product_id", "shop_id", "product_name",
		"brand", "category", "city",
		"price", "warranty_months", "seller_score", "features",
	})
}

func TestSearchAppliesHardFilters(t *testing.T) {
	s, mock := newMockStore(t)

	var cs discovery.ConstraintSet
	min, max := int64(500_000), int64(2_000_000)
	cs.Merge(discovery.Delta{PriceMin: &min, PriceMax: &max, City: "tehran"})

	mock.ExpectQuery(`SELECT (.+) FROM offers WHERE price >= \$1 AND price <= \$2 AND LOWER\(city\) = LOWER\(\$3\)`).
		WithArgs(min, max, "tehran", 100).
		WillReturnRows(offerRows().AddRow(
			"off-1", "prod-1", "shop-1", "acme zeta 10",
			"acme", "phone", "tehran",
			int64(900_000), 12, 4.5, "dual sim"))

	offers, err := s.Search(context.Background(), discovery.Query{Constraints: cs, Limit: 100})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "off-1", offers[0].ID)
	assert.Equal(t, int64(900_000), offers[0].Price)
	assert.Equal(t, 4.5, offers[0].SellerScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchSoftBrandIsNotFiltered(t *testing.T) {
	s, mock := newMockStore(t)

	var cs discovery.ConstraintSet
	cs.Merge(discovery.Delta{Brand: "acme"})

	// No WHERE clause: a non-required brand must not constrain the fetch.
	mock.ExpectQuery(`SELECT (.+) FROM offers ORDER BY seller_score DESC`).
		WillReturnRows(offerRows())

	_, err := s.Search(context.Background(), discovery.Query{Constraints: cs})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchRequiredBrandIsFiltered(t *testing.T) {
	s, mock := newMockStore(t)

	var cs discovery.ConstraintSet
	cs.Merge(discovery.Delta{Brand: "acme", Require: []discovery.Topic{discovery.TopicBrand}})

	mock.ExpectQuery(`SELECT (.+) FROM offers WHERE LOWER\(brand\) = LOWER\(\$1\)`).
		WithArgs("acme").
		WillReturnRows(offerRows())

	_, err := s.Search(context.Background(), discovery.Query{Constraints: cs})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchKeywordsPreNarrow(t *testing.T) {
	s, mock := newMockStore(t)

	var cs discovery.ConstraintSet
	cs.Merge(discovery.Delta{Keywords: []string{"zeta", "gaming"}})

	mock.ExpectQuery(`SELECT (.+) FROM offers WHERE \(product_name ILIKE \$1 OR features ILIKE \$1 OR product_name ILIKE \$2 OR features ILIKE \$2\)`).
		WithArgs("%zeta%", "%gaming%").
		WillReturnRows(offerRows())

	_, err := s.Search(context.Background(), discovery.Query{Constraints: cs})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPropagatesQueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM offers`).
		WillReturnError(errors.New("connection refused"))

	_, err := s.Search(context.Background(), discovery.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search offers")
}

func TestUpsertOffer(t *testing.T) {
	s, mock := newMockStore(t)

	off := discovery.Offer{
		ID: "off-1", ProductID: "prod-1", ShopID: "shop-1",
		ProductName: "acme zeta 10", Brand: "acme", Category: "phone",
		City: "tehran", Price: 900_000, WarrantyMonths: 12,
		SellerScore: 4.5, Features: "dual sim",
	}

	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs(off.ID, off.ProductID, off.ShopID, off.ProductName,
			off.Brand, off.Category, off.City,
			off.Price, off.WarrantyMonths, off.SellerScore, off.Features).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertOffer(context.Background(), off))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOffers(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM offers`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestLoadLexicon(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT brand FROM offers`).
		WillReturnRows(pgxmock.NewRows([]string{"brand"}).AddRow("acme").AddRow("bolt"))
	mock.ExpectQuery(`SELECT DISTINCT city FROM offers`).
		WillReturnRows(pgxmock.NewRows([]string{"city"}).AddRow("tehran"))
	mock.ExpectQuery(`SELECT DISTINCT category FROM offers`).
		WillReturnRows(pgxmock.NewRows([]string{"category"}).AddRow("phone"))

	lex, err := s.LoadLexicon(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "bolt"}, lex.Brands)
	assert.Equal(t, []string{"tehran"}, lex.Cities)
	assert.Equal(t, []string{"phone"}, lex.Categories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs("off-1", "", "", "", "", "", "", int64(0), 0, 0.0, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		return s.UpsertOffer(ctx, discovery.Offer{ID: "off-1"})
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
