package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"muster/api/internal/models"
)

type FactionRepository struct {
	db DBTX
}

func NewFactionRepository(db DBTX) *FactionRepository {
	return &FactionRepository{db: db}
}

func (r *FactionRepository) selectBuilder() sq.SelectBuilder {
	return psql.Select(catalogMetaColumns, "game_system_id", "parent_id").From("factions")
}

func (r *FactionRepository) Get(ctx context.Context, id string) (*models.Faction, error) {
	query, args, err := r.selectBuilder().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	f, err := scanFaction(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *FactionRepository) List(ctx context.Context, filter models.ReadFilter) ([]*models.Faction, error) {
	query, args, err := applyReadFilter(r.selectBuilder(), filter).OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Faction
	for rows.Next() {
		f, err := scanFaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create fails with ErrInvalidReference when the game system or parent does
// not exist, or when the faction names itself as parent.
func (r *FactionRepository) Create(ctx context.Context, f *models.Faction) error {
	query, args, err := psql.Insert("factions").
		Columns("id", "name", "created_by", "visibility", "artwork_key", "created_at", "updated_at", "game_system_id", "parent_id").
		Values(f.ID, f.Name, f.CreatedBy, string(f.Visibility), f.ArtworkKey, f.CreatedAt, f.UpdatedAt, f.GameSystemID, f.ParentID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert faction: %w", classifyWrite(err))
	}
	return nil
}

func (r *FactionRepository) Update(ctx context.Context, f *models.Faction) error {
	query, args, err := psql.Update("factions").
		SetMap(map[string]any{
			"name":           f.Name,
			"visibility":     string(f.Visibility),
			"artwork_key":    f.ArtworkKey,
			"game_system_id": f.GameSystemID,
			"parent_id":      f.ParentID,
			"updated_at":     f.UpdatedAt,
		}).
		Where(sq.Eq{"id": f.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update faction: %w", classifyWrite(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete fails with ErrReferenced while child factions point at this one.
func (r *FactionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM factions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete faction: %w", classifyDelete(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanFaction(row rowScanner) (*models.Faction, error) {
	f := &models.Faction{}
	targets := append(metaScanTargets(&f.CatalogMeta), &f.GameSystemID, &f.ParentID)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return f, nil
}
