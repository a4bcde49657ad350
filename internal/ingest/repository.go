package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Asset is the persisted record of a stored object, listed by the seller and
// admin dashboards.
type Asset struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	ObjectKey   string    `json:"objectKey"`
	URL         string    `json:"url"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrAssetNotFound is returned when an asset record does not exist.
var ErrAssetNotFound = errors.New("asset not found")

// AssetStore records stored objects and serves dashboard listings.
type AssetStore interface {
	Record(ctx context.Context, a *Asset) error
	ListByCategory(ctx context.Context, category string, limit int) ([]*Asset, error)
	Get(ctx context.Context, id string) (*Asset, error)
	Delete(ctx context.Context, id string) error
}

// Repository is the Postgres-backed AssetStore.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record inserts a new asset row.
func (r *Repository) Record(ctx context.Context, a *Asset) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO assets (id, category, object_key, url, size_bytes, content_type, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		a.ID, a.Category, a.ObjectKey, a.URL, a.SizeBytes, a.ContentType, a.UploadedBy,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record asset: %w", err)
	}
	return nil
}

// ListByCategory returns the most recent assets in a category.
func (r *Repository) ListByCategory(ctx context.Context, category string, limit int) ([]*Asset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, category, object_key, url, size_bytes, content_type, uploaded_by, created_at
		 FROM assets
		 WHERE category = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a := &Asset{}
		if err := rows.Scan(&a.ID, &a.Category, &a.ObjectKey, &a.URL, &a.SizeBytes, &a.ContentType, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Get fetches one asset record by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Asset, error) {
	a := &Asset{}
	err := r.db.QueryRow(ctx,
		`SELECT id, category, object_key, url, size_bytes, content_type, uploaded_by, created_at
		 FROM assets WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Category, &a.ObjectKey, &a.URL, &a.SizeBytes, &a.ContentType, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// Delete removes one asset record by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}
