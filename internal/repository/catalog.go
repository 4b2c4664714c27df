package repository

import (
	sq "github.com/Masterminds/squirrel"

	"muster/api/internal/models"
)

const catalogMetaColumns = "id, name, created_by, visibility, artwork_key, created_at, updated_at"

// applyReadFilter adds `created_by = ? OR visibility IN (...)` unless the
// filter is unrestricted.
func applyReadFilter(b sq.SelectBuilder, filter models.ReadFilter) sq.SelectBuilder {
	if filter.Unrestricted {
		return b
	}

	cond := sq.Or{sq.Eq{"created_by": filter.OwnerID}}
	if len(filter.Visibilities) > 0 {
		visibilities := make([]string, 0, len(filter.Visibilities))
		for _, v := range filter.Visibilities {
			visibilities = append(visibilities, string(v))
		}
		cond = append(cond, sq.Eq{"visibility": visibilities})
	}
	return b.Where(cond)
}

func metaScanTargets(m *models.CatalogMeta) []any {
	return []any{&m.ID, &m.Name, &m.CreatedBy, &m.Visibility, &m.ArtworkKey, &m.CreatedAt, &m.UpdatedAt}
}
