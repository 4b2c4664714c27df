package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"muster/api/internal/access"
	"muster/api/internal/ids"
	"muster/api/internal/models"
	"muster/api/internal/repository"
)

// CatalogValidator checks resource-specific fields before an item is stored.
type CatalogValidator[M models.CatalogItem] func(item M) error

// CatalogRef is a reference from a catalog item to another catalog item.
// Lookup returns the referenced item's metadata.
type CatalogRef struct {
	Field  string
	ID     string
	Lookup func(ctx context.Context, id string) (*models.CatalogMeta, error)
}

// CatalogRefs lists the references an item holds.
type CatalogRefs[M models.CatalogItem] func(item M) []CatalogRef

// CatalogService applies visibility-based access control to a catalog
// resource. M is the pointer model type, e.g. *models.Faction.
type CatalogService[M models.CatalogItem] struct {
	resource string
	store    CatalogStore[M]
	validate CatalogValidator[M]
	refs     CatalogRefs[M]
	artwork  *ArtworkService
	now      func() time.Time
	log      zerolog.Logger
}

func NewCatalogService[M models.CatalogItem](
	resource string,
	store CatalogStore[M],
	validate CatalogValidator[M],
	artwork *ArtworkService,
	log zerolog.Logger,
) *CatalogService[M] {
	return &CatalogService[M]{
		resource: resource,
		store:    store,
		validate: validate,
		artwork:  artwork,
		now:      time.Now,
		log:      log.With().Str("component", "catalog").Str("resource", resource).Logger(),
	}
}

// WithClock replaces the clock. Call it before the value is shared.
func (s *CatalogService[M]) WithClock(now func() time.Time) *CatalogService[M] {
	s.now = now
	return s
}

// WithReferences makes Create and Update resolve the item's references
// through the actor's read access.
func (s *CatalogService[M]) WithReferences(refs CatalogRefs[M]) *CatalogService[M] {
	s.refs = refs
	return s
}

func (s *CatalogService[M]) Resource() string {
	return s.resource
}

// FindOne returns the item if actor may read it. Items the actor may not
// see are reported as not found.
func (s *CatalogService[M]) FindOne(ctx context.Context, id string, actor models.Identity) (M, error) {
	var zero M
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return zero, translateStoreError(err)
	}
	if !access.CanRead(actor, item.Meta()) {
		return zero, ErrNotFound
	}
	return item, nil
}

func (s *CatalogService[M]) FindMany(ctx context.Context, actor models.Identity) ([]M, error) {
	items, err := s.store.List(ctx, access.ReadFilter(actor))
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Create stores item owned by actor. An empty visibility defaults to
// private.
func (s *CatalogService[M]) Create(ctx context.Context, item M, actor models.Identity) (M, error) {
	var zero M
	meta := item.Meta()
	if meta.Visibility == "" {
		meta.Visibility = models.VisibilityPrivate
	}
	if !meta.Visibility.Valid() {
		return zero, validationError("unknown visibility %q", meta.Visibility)
	}
	if err := access.CheckCreate(actor, meta.Visibility); err != nil {
		return zero, err
	}

	now := s.now().UTC()
	meta.ID = ids.New()
	meta.CreatedBy = actor.UserID
	meta.ArtworkKey = nil
	meta.CreatedAt = now
	meta.UpdatedAt = now

	if err := s.check(item); err != nil {
		return zero, err
	}
	if err := s.checkRefs(ctx, item, nil, actor); err != nil {
		return zero, err
	}
	if err := s.store.Create(ctx, item); err != nil {
		return zero, translateStoreError(err)
	}

	s.log.Info().Str("id", meta.ID).Str("actor_id", actor.UserID).Str("visibility", string(meta.Visibility)).Msg("catalog item created")
	return item, nil
}

// Update locates the item as FindOne does, applies patch and persists it.
// A visibility change must be an allowed transition for the actor.
func (s *CatalogService[M]) Update(ctx context.Context, id string, patch func(M) error, actor models.Identity) (M, error) {
	var zero M
	item, err := s.FindOne(ctx, id, actor)
	if err != nil {
		return zero, err
	}

	meta := item.Meta()
	fixed := *meta
	held := s.heldRefs(item)
	if err := patch(item); err != nil {
		return zero, err
	}
	meta.ID = fixed.ID
	meta.CreatedBy = fixed.CreatedBy
	meta.CreatedAt = fixed.CreatedAt
	meta.ArtworkKey = fixed.ArtworkKey

	if !meta.Visibility.Valid() {
		return zero, validationError("unknown visibility %q", meta.Visibility)
	}
	if err := access.CheckTransition(actor, fixed.Visibility, meta.Visibility); err != nil {
		return zero, err
	}
	if err := s.check(item); err != nil {
		return zero, err
	}
	if err := s.checkRefs(ctx, item, held, actor); err != nil {
		return zero, err
	}

	meta.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, item); err != nil {
		return zero, translateStoreError(err)
	}
	return item, nil
}

// Delete removes the item. Items still referenced by others are a conflict.
func (s *CatalogService[M]) Delete(ctx context.Context, id string, actor models.Identity) error {
	if _, err := s.FindOne(ctx, id, actor); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return translateStoreError(err)
	}
	s.log.Info().Str("id", id).Str("actor_id", actor.UserID).Msg("catalog item deleted")
	return nil
}

// UploadArtwork stores an image for the item and records its object key.
func (s *CatalogService[M]) UploadArtwork(ctx context.Context, id string, actor models.Identity, body io.Reader, declaredType string) (M, error) {
	var zero M
	if s.artwork == nil {
		return zero, ErrNotFound
	}
	item, err := s.FindOne(ctx, id, actor)
	if err != nil {
		return zero, err
	}

	key, err := s.artwork.Store(ctx, s.resource, id, body, declaredType)
	if err != nil {
		return zero, err
	}

	meta := item.Meta()
	meta.ArtworkKey = &key
	meta.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, item); err != nil {
		return zero, translateStoreError(err)
	}
	return item, nil
}

// ArtworkURL returns a short-lived download URL for the item's artwork.
func (s *CatalogService[M]) ArtworkURL(ctx context.Context, id string, actor models.Identity) (string, error) {
	if s.artwork == nil {
		return "", ErrNotFound
	}
	item, err := s.FindOne(ctx, id, actor)
	if err != nil {
		return "", err
	}
	key := item.Meta().ArtworkKey
	if key == nil {
		return "", ErrNotFound
	}
	return s.artwork.URL(ctx, *key)
}

func (s *CatalogService[M]) check(item M) error {
	meta := item.Meta()
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Name == "" {
		return validationError("name is required")
	}
	if s.validate != nil {
		if err := s.validate(item); err != nil {
			if errors.Is(err, ErrValidation) {
				return err
			}
			return validationError("%v", err)
		}
	}
	return nil
}

func refKey(ref CatalogRef) string {
	return ref.Field + "=" + ref.ID
}

func (s *CatalogService[M]) heldRefs(item M) map[string]bool {
	if s.refs == nil {
		return nil
	}
	held := make(map[string]bool)
	for _, ref := range s.refs(item) {
		held[refKey(ref)] = true
	}
	return held
}

// checkRefs resolves every reference not already in held. A reference the
// actor cannot read fails exactly like one that does not exist, so the
// error does not reveal hidden items.
func (s *CatalogService[M]) checkRefs(ctx context.Context, item M, held map[string]bool, actor models.Identity) error {
	if s.refs == nil {
		return nil
	}
	for _, ref := range s.refs(item) {
		if held[refKey(ref)] {
			continue
		}
		meta, err := ref.Lookup(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, repository.ErrItemNotFound) {
				return invalidReference()
			}
			return err
		}
		if !access.CanRead(actor, meta) {
			return invalidReference()
		}
	}
	return nil
}

// invalidReference matches the error a write with a dangling foreign key
// produces.
func invalidReference() error {
	return translateStoreError(repository.ErrInvalidReference)
}

// metaLookup adapts a catalog store to CatalogRef.Lookup.
func metaLookup[M models.CatalogItem](store CatalogStore[M]) func(ctx context.Context, id string) (*models.CatalogMeta, error) {
	return func(ctx context.Context, id string) (*models.CatalogMeta, error) {
		item, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return item.Meta(), nil
	}
}

// FactionRefs lists a faction's game system and parent.
func FactionRefs(gameSystems CatalogStore[*models.GameSystem], factions CatalogStore[*models.Faction]) CatalogRefs[*models.Faction] {
	systemLookup := metaLookup(gameSystems)
	factionLookup := metaLookup(factions)
	return func(f *models.Faction) []CatalogRef {
		refs := []CatalogRef{{Field: "gameSystemId", ID: f.GameSystemID, Lookup: systemLookup}}
		if f.ParentID != nil && *f.ParentID != "" {
			refs = append(refs, CatalogRef{Field: "parentId", ID: *f.ParentID, Lookup: factionLookup})
		}
		return refs
	}
}

func ValidateGameSystem(gs *models.GameSystem) error {
	gs.Publisher = strings.TrimSpace(gs.Publisher)
	gs.Edition = strings.TrimSpace(gs.Edition)
	return nil
}

// ValidateFaction rejects a faction without a game system or one that is
// its own parent. Longer parent cycles are not detected.
func ValidateFaction(f *models.Faction) error {
	if strings.TrimSpace(f.GameSystemID) == "" {
		return validationError("gameSystemId is required")
	}
	if f.ParentID != nil {
		if *f.ParentID == "" {
			f.ParentID = nil
		} else if *f.ParentID == f.ID {
			return validationError("a faction cannot be its own parent")
		}
	}
	return nil
}
