// Package access decides which catalog items an identity may see, and
// which visibilities it may create items with or move them between.
package access

import (
	"errors"

	"muster/api/internal/models"
)

var ErrForbidden = errors.New("forbidden")

// ReadableVisibilities lists the visibilities readable by anyone holding
// roles, beyond their own items. Admins bypass this entirely.
func ReadableVisibilities(roles models.Roles) []models.Visibility {
	if roles.Has(models.RoleCataloguer) {
		return []models.Visibility{models.VisibilityLimited, models.VisibilityPublic}
	}
	return []models.Visibility{models.VisibilityPublic}
}

func CanRead(actor models.Identity, item *models.CatalogMeta) bool {
	if actor.IsAdmin() || item.CreatedBy == actor.UserID {
		return true
	}
	for _, v := range ReadableVisibilities(actor.Roles) {
		if item.Visibility == v {
			return true
		}
	}
	return false
}

// ReadFilter is the store-side form of CanRead.
func ReadFilter(actor models.Identity) models.ReadFilter {
	if actor.IsAdmin() {
		return models.ReadFilter{Unrestricted: true}
	}
	return models.ReadFilter{
		OwnerID:      actor.UserID,
		Visibilities: ReadableVisibilities(actor.Roles),
	}
}

func creatable(roles models.Roles) map[models.Visibility]bool {
	allowed := map[models.Visibility]bool{models.VisibilityPrivate: true}
	if roles.Has(models.RoleAdmin) {
		allowed[models.VisibilityLimited] = true
		allowed[models.VisibilityPublic] = true
	}
	if roles.Has(models.RoleHobbyist) {
		allowed[models.VisibilityLimited] = true
	}
	if roles.Has(models.RoleCataloguer) {
		allowed[models.VisibilityPublic] = true
	}
	return allowed
}

func CheckCreate(actor models.Identity, visibility models.Visibility) error {
	if !creatable(actor.Roles)[visibility] {
		return ErrForbidden
	}
	return nil
}

type transition struct{ from, to models.Visibility }

var roleTransitions = map[models.Role][]transition{
	models.RoleHobbyist: {
		{models.VisibilityPrivate, models.VisibilityLimited},
		{models.VisibilityLimited, models.VisibilityPrivate},
	},
	models.RoleCataloguer: {
		{models.VisibilityLimited, models.VisibilityPrivate},
	},
}

// CheckTransition allows unchanged visibility to anyone. Otherwise the move
// must be granted by one of the actor's roles.
func CheckTransition(actor models.Identity, from, to models.Visibility) error {
	if from == to || actor.IsAdmin() {
		return nil
	}
	for _, role := range actor.Roles.List() {
		for _, t := range roleTransitions[role] {
			if t.from == from && t.to == to {
				return nil
			}
		}
	}
	return ErrForbidden
}
