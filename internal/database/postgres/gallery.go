package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository stores the enrolled gallery in PostgreSQL using a pgvector column.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// ListRows returns all stored gallery rows in enrollment order.
func (r *GalleryRepository) ListRows(ctx context.Context) ([]database.GalleryRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, display_name, embedding, position, model, created_at
		FROM gallery_entries
		ORDER BY position, identity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var result []database.GalleryRow
	for rows.Next() {
		var row database.GalleryRow
		var vec pgvector.Vector
		if err := rows.Scan(&row.IdentityID, &row.DisplayName, &vec, &row.Position, &row.Model, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		row.Embedding = vec.Slice()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery: %w", err)
	}
	return result, nil
}

// ListGallery implements gallery.Store.
func (r *GalleryRepository) ListGallery(ctx context.Context) ([]gallery.Entry, string, error) {
	rows, err := r.ListRows(ctx)
	if err != nil {
		return nil, "", err
	}

	var model string
	entries := make([]gallery.Entry, len(rows))
	for i, row := range rows {
		entries[i] = gallery.Entry{ID: row.IdentityID, Name: row.DisplayName, Embedding: row.Embedding}
		if model == "" {
			model = row.Model
		}
	}
	return entries, model, nil
}

// ReplaceGallery atomically replaces the stored gallery with g.
// progress, if not nil, is called after each entry is written.
func (r *GalleryRepository) ReplaceGallery(ctx context.Context, g *gallery.Gallery, progress func()) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_entries"); err != nil {
		return fmt.Errorf("clear gallery: %w", err)
	}

	for i := range g.Len() {
		e := g.Entry(i)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO gallery_entries (identity_id, display_name, embedding, position, model, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, e.ID, e.Name, pgvector.NewVector(e.Embedding), i, g.Model())
		if err != nil {
			return fmt.Errorf("insert gallery entry %s: %w", e.ID, err)
		}
		if progress != nil {
			progress()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gallery: %w", err)
	}
	return nil
}

// Count returns the number of stored gallery entries.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count gallery: %w", err)
	}
	return count, nil
}
