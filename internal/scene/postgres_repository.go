package scene

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
//	CREATE TABLE scene_views (
//		id              TEXT PRIMARY KEY,
//		camera          JSONB NOT NULL,
//		basemap         TEXT NOT NULL,
//		highlight_style TEXT NOT NULL,
//		layers          JSONB NOT NULL,
//		updated_at      TIMESTAMPTZ NOT NULL
//	);
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL view repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetView retrieves a view by id.
func (r *PostgresRepository) GetView(ctx context.Context, id string) (*View, error) {
	query := `
		SELECT id, camera, basemap, highlight_style, layers, updated_at
		FROM scene_views
		WHERE id = $1
	`

	var (
		view       View
		cameraJSON []byte
		layersJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&view.ID,
		&cameraJSON,
		&view.Basemap,
		&view.HighlightStyle,
		&layersJSON,
		&view.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrViewNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(cameraJSON, &view.Camera); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(layersJSON, &view.Layers); err != nil {
		return nil, err
	}

	return &view, nil
}

// SaveView creates or replaces a view.
func (r *PostgresRepository) SaveView(ctx context.Context, view *View) error {
	query := `
		INSERT INTO scene_views (id, camera, basemap, highlight_style, layers, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			camera = EXCLUDED.camera,
			basemap = EXCLUDED.basemap,
			highlight_style = EXCLUDED.highlight_style,
			layers = EXCLUDED.layers,
			updated_at = EXCLUDED.updated_at
	`

	cameraJSON, err := json.Marshal(view.Camera)
	if err != nil {
		return err
	}
	layersJSON, err := json.Marshal(view.Layers)
	if err != nil {
		return err
	}

	view.UpdatedAt = time.Now()
	_, err = r.pool.Exec(ctx, query,
		view.ID,
		cameraJSON,
		string(view.Basemap),
		string(view.HighlightStyle),
		layersJSON,
		view.UpdatedAt,
	)
	return err
}

// DeleteView removes a view by id.
func (r *PostgresRepository) DeleteView(ctx context.Context, id string) error {
	query := `DELETE FROM scene_views WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
