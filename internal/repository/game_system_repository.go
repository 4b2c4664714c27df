package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"muster/api/internal/models"
)

type GameSystemRepository struct {
	db DBTX
}

func NewGameSystemRepository(db DBTX) *GameSystemRepository {
	return &GameSystemRepository{db: db}
}

func (r *GameSystemRepository) selectBuilder() sq.SelectBuilder {
	return psql.Select(catalogMetaColumns, "publisher", "edition").From("game_systems")
}

func (r *GameSystemRepository) Get(ctx context.Context, id string) (*models.GameSystem, error) {
	query, args, err := r.selectBuilder().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	gs, err := scanGameSystem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return gs, nil
}

func (r *GameSystemRepository) List(ctx context.Context, filter models.ReadFilter) ([]*models.GameSystem, error) {
	query, args, err := applyReadFilter(r.selectBuilder(), filter).OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GameSystem
	for rows.Next() {
		gs, err := scanGameSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

func (r *GameSystemRepository) Create(ctx context.Context, gs *models.GameSystem) error {
	query, args, err := psql.Insert("game_systems").
		Columns("id", "name", "created_by", "visibility", "artwork_key", "created_at", "updated_at", "publisher", "edition").
		Values(gs.ID, gs.Name, gs.CreatedBy, string(gs.Visibility), gs.ArtworkKey, gs.CreatedAt, gs.UpdatedAt, gs.Publisher, gs.Edition).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert game system: %w", classifyWrite(err))
	}
	return nil
}

func (r *GameSystemRepository) Update(ctx context.Context, gs *models.GameSystem) error {
	query, args, err := psql.Update("game_systems").
		SetMap(map[string]any{
			"name":        gs.Name,
			"visibility":  string(gs.Visibility),
			"artwork_key": gs.ArtworkKey,
			"publisher":   gs.Publisher,
			"edition":     gs.Edition,
			"updated_at":  gs.UpdatedAt,
		}).
		Where(sq.Eq{"id": gs.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update game system: %w", classifyWrite(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete fails with ErrReferenced while factions belong to the game system.
func (r *GameSystemRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM game_systems WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete game system: %w", classifyDelete(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanGameSystem(row rowScanner) (*models.GameSystem, error) {
	gs := &models.GameSystem{}
	targets := append(metaScanTargets(&gs.CatalogMeta), &gs.Publisher, &gs.Edition)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return gs, nil
}
