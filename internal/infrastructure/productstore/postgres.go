// Package productstore saves extracted products to the catalog database.
package productstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/diysmart/productinfo/internal/domain"
)

// Schema creates the product table
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY,
	product_url         TEXT NOT NULL UNIQUE,
	merchant            TEXT NOT NULL,
	title               TEXT NOT NULL,
	description         TEXT,
	category            TEXT NOT NULL,
	brand               TEXT,
	model               TEXT,
	original_price      DOUBLE PRECISION,
	sale_price          DOUBLE PRECISION,
	discount_percentage INTEGER,
	rating              DOUBLE PRECISION,
	rating_count        INTEGER,
	image_url           TEXT,
	project_types       TEXT NOT NULL,
	extraction_method   TEXT NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
)`

const upsertQuery = `
INSERT INTO products (
	id, product_url, merchant, title, description, category, brand, model,
	original_price, sale_price, discount_percentage, rating, rating_count,
	image_url, project_types, extraction_method, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (product_url) DO UPDATE SET
	merchant = EXCLUDED.merchant,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	category = EXCLUDED.category,
	brand = EXCLUDED.brand,
	model = EXCLUDED.model,
	original_price = EXCLUDED.original_price,
	sale_price = EXCLUDED.sale_price,
	discount_percentage = EXCLUDED.discount_percentage,
	rating = EXCLUDED.rating,
	rating_count = EXCLUDED.rating_count,
	image_url = EXCLUDED.image_url,
	project_types = EXCLUDED.project_types,
	extraction_method = EXCLUDED.extraction_method,
	updated_at = EXCLUDED.updated_at
RETURNING id`

const selectByURLQuery = `
SELECT id, product_url, merchant, title, description, category, brand, model,
	original_price, sale_price, discount_percentage, rating, rating_count,
	image_url, project_types, extraction_method
FROM products WHERE product_url = $1`

// productRow mirrors the products table
type productRow struct {
	ID                 string          `db:"id"`
	ProductURL         string          `db:"product_url"`
	Merchant           string          `db:"merchant"`
	Title              string          `db:"title"`
	Description        sql.NullString  `db:"description"`
	Category           string          `db:"category"`
	Brand              sql.NullString  `db:"brand"`
	Model              sql.NullString  `db:"model"`
	OriginalPrice      sql.NullFloat64 `db:"original_price"`
	SalePrice          sql.NullFloat64 `db:"sale_price"`
	DiscountPercentage sql.NullInt64   `db:"discount_percentage"`
	Rating             sql.NullFloat64 `db:"rating"`
	RatingCount        sql.NullInt64   `db:"rating_count"`
	ImageURL           sql.NullString  `db:"image_url"`
	ProjectTypes       string          `db:"project_types"`
	ExtractionMethod   string          `db:"extraction_method"`
}

// PostgresRepository implements domain.ProductRepository
type PostgresRepository struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

// NewPostgresRepository wraps db
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now, newID: uuid.NewString}
}

// Migrate creates the table when missing
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create products: %w", err)
	}
	return nil
}

// Upsert inserts the record or replaces the one with the same product URL,
// returning the catalog id
func (r *PostgresRepository) Upsert(ctx context.Context, rec *domain.ProductRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: nil record", domain.ErrBadInput)
	}

	var id string
	err := r.db.GetContext(ctx, &id, upsertQuery,
		r.newID(),
		rec.ProductURL,
		string(rec.Merchant),
		rec.Title,
		nullString(rec.Description),
		string(rec.Category),
		nullString(rec.Brand),
		nullString(rec.Model),
		nullFloat(rec.OriginalPrice),
		nullFloat(rec.SalePrice),
		nullInt(rec.DiscountPercentage),
		nullFloat(rec.Rating),
		nullInt(rec.RatingCount),
		nullString(rec.ImageURL),
		joinProjectTypes(rec.ProjectTypes),
		string(rec.ExtractionMethod),
		r.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: upsert product: %v", domain.ErrStoreUnavailable, err)
	}
	return id, nil
}

// GetByURL loads the product saved for productURL
func (r *PostgresRepository) GetByURL(ctx context.Context, productURL string) (*domain.ProductRecord, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, selectByURLQuery, productURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get product: %v", domain.ErrStoreUnavailable, err)
	}
	return row.toRecord(), nil
}

func (row productRow) toRecord() *domain.ProductRecord {
	rec := &domain.ProductRecord{
		ProductURL:       row.ProductURL,
		Merchant:         domain.Merchant(row.Merchant),
		Title:            row.Title,
		Category:         domain.Category(row.Category),
		ExtractionMethod: domain.ExtractionMethod(row.ExtractionMethod),
		ProjectTypes:     splitProjectTypes(row.ProjectTypes),
	}
	if row.Description.Valid {
		rec.Description = &row.Description.String
	}
	if row.Brand.Valid {
		rec.Brand = &row.Brand.String
	}
	if row.Model.Valid {
		rec.Model = &row.Model.String
	}
	if row.ImageURL.Valid {
		rec.ImageURL = &row.ImageURL.String
	}
	if row.OriginalPrice.Valid {
		rec.OriginalPrice = &row.OriginalPrice.Float64
	}
	if row.SalePrice.Valid {
		rec.SalePrice = &row.SalePrice.Float64
	}
	if row.Rating.Valid {
		rec.Rating = &row.Rating.Float64
	}
	if row.DiscountPercentage.Valid {
		d := int(row.DiscountPercentage.Int64)
		rec.DiscountPercentage = &d
	}
	if row.RatingCount.Valid {
		c := int(row.RatingCount.Int64)
		rec.RatingCount = &c
	}
	return rec
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func joinProjectTypes(types []domain.ProjectType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitProjectTypes(s string) []domain.ProjectType {
	if s == "" {
		return []domain.ProjectType{}
	}
	parts := strings.Split(s, ",")
	out := make([]domain.ProjectType, len(parts))
	for i, p := range parts {
		out[i] = domain.ProjectType(p)
	}
	return out
}
