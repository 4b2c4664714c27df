package models

import (
	"fmt"
	"time"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityLimited Visibility = "limited"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityLimited, VisibilityPublic:
		return true
	}
	return false
}

func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown visibility %q", s)
	}
	return v, nil
}

// CatalogMeta carries the ownership and visibility shared by every catalog entity.
type CatalogMeta struct {
	ID         string
	Name       string
	CreatedBy  string
	Visibility Visibility
	ArtworkKey *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CatalogItem is implemented by pointers to catalog entities.
type CatalogItem interface {
	Meta() *CatalogMeta
}

type GameSystem struct {
	CatalogMeta
	Publisher string
	Edition   string
}

func (g *GameSystem) Meta() *CatalogMeta { return &g.CatalogMeta }

type Faction struct {
	CatalogMeta
	GameSystemID string
	ParentID     *string
}

func (f *Faction) Meta() *CatalogMeta { return &f.CatalogMeta }

// ReadFilter restricts a catalog listing to what an actor may read:
// items created by OwnerID or with one of Visibilities.
type ReadFilter struct {
	Unrestricted bool
	OwnerID      string
	Visibilities []Visibility
}
