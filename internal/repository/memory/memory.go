// Package memory holds in-process implementations of the repository
// contracts. They back service and handler tests and enforce the same
// uniqueness and referential rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"muster/api/internal/models"
	"muster/api/internal/repository"
)

type credentialKey struct {
	typ        models.CredentialType
	identifier string
}

// Store is a thread-safe in-memory database.
type Store struct {
	mu          sync.RWMutex
	users       map[string]models.User
	credentials map[credentialKey]models.Credential
	tokens      map[string]models.Token
	gameSystems map[string]models.GameSystem
	factions    map[string]models.Faction
	revokedAt   map[string]time.Time
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]models.User),
		credentials: make(map[credentialKey]models.Credential),
		tokens:      make(map[string]models.Token),
		gameSystems: make(map[string]models.GameSystem),
		factions:    make(map[string]models.Faction),
		revokedAt:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// WithClock replaces the clock used to stamp revocations.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Users() *Users             { return &Users{s} }
func (s *Store) Tokens() *Tokens           { return &Tokens{s} }
func (s *Store) GameSystems() *GameSystems { return &GameSystems{s} }
func (s *Store) Factions() *Factions       { return &Factions{s} }

type Users struct{ s *Store }

func (u *Users) CreateWithCredential(_ context.Context, user models.User, credential models.Credential) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	key := credentialKey{credential.Type, credential.Identifier}
	if _, ok := s.credentials[key]; ok {
		return repository.ErrDuplicate
	}
	s.users[user.ID] = user
	s.credentials[key] = credential
	return nil
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	s := u.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (u *Users) Update(_ context.Context, user models.User) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = user
	return nil
}

// UpdateAndRevokeTokens saves the user and revokes its live tokens under one
// lock.
func (u *Users) UpdateAndRevokeTokens(_ context.Context, user models.User) ([]models.Token, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = user
	return s.revokeAllLocked(user.ID), nil
}

func (u *Users) FindCredential(_ context.Context, credType models.CredentialType, identifier string) (models.Credential, models.User, error) {
	s := u.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[credentialKey{credType, identifier}]
	if !ok {
		return models.Credential{}, models.User{}, repository.ErrCredentialNotFound
	}
	return credential, s.users[credential.UserID], nil
}

type Tokens struct{ s *Store }

func (t *Tokens) Create(_ context.Context, token models.Token) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return repository.ErrInvalidReference
	}
	for _, existing := range s.tokens {
		if existing.ID == token.ID || string(existing.Hash) == string(token.Hash) {
			return repository.ErrDuplicate
		}
	}
	token.Hash = append([]byte(nil), token.Hash...)
	s.tokens[token.ID] = token
	return nil
}

func (t *Tokens) FindByHash(_ context.Context, hash []byte) (models.Token, models.User, error) {
	s := t.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, token := range s.tokens {
		if string(token.Hash) == string(hash) {
			return token, s.users[token.UserID], nil
		}
	}
	return models.Token{}, models.User{}, repository.ErrTokenNotFound
}

func (t *Tokens) GetByID(_ context.Context, id string) (models.Token, error) {
	s := t.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return models.Token{}, repository.ErrTokenNotFound
	}
	return token, nil
}

func (t *Tokens) SetRevoked(_ context.Context, id string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return repository.ErrTokenNotFound
	}
	if !token.IsRevoked {
		token.IsRevoked = true
		s.tokens[id] = token
		s.revokedAt[id] = s.now()
	}
	return nil
}

func (t *Tokens) ListByUser(_ context.Context, userID string) ([]models.Token, error) {
	s := t.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Token
	for _, token := range s.tokens {
		if token.UserID == userID {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *Tokens) RevokeAllForUser(_ context.Context, userID string) ([]models.Token, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeAllLocked(userID), nil
}

func (s *Store) revokeAllLocked(userID string) []models.Token {
	var revoked []models.Token
	for id, token := range s.tokens {
		if token.UserID != userID || token.IsRevoked {
			continue
		}
		token.IsRevoked = true
		s.tokens[id] = token
		s.revokedAt[id] = s.now()
		revoked = append(revoked, token)
	}
	return revoked
}

func (t *Tokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, token := range s.tokens {
		revokedAt, revoked := s.revokedAt[id]
		if token.ExpiresAt.Before(before) || (revoked && revokedAt.Before(before)) {
			delete(s.tokens, id)
			delete(s.revokedAt, id)
			n++
		}
	}
	return n, nil
}

func readable(meta models.CatalogMeta, filter models.ReadFilter) bool {
	if filter.Unrestricted || meta.CreatedBy == filter.OwnerID {
		return true
	}
	for _, v := range filter.Visibilities {
		if meta.Visibility == v {
			return true
		}
	}
	return false
}

func sortByName[M models.CatalogItem](items []M) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Meta(), items[j].Meta()
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

type GameSystems struct{ s *Store }

func (g *GameSystems) Get(_ context.Context, id string) (*models.GameSystem, error) {
	s := g.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	gs, ok := s.gameSystems[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return &gs, nil
}

func (g *GameSystems) List(_ context.Context, filter models.ReadFilter) ([]*models.GameSystem, error) {
	s := g.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.GameSystem
	for _, gs := range s.gameSystems {
		if readable(gs.CatalogMeta, filter) {
			gs := gs
			out = append(out, &gs)
		}
	}
	sortByName(out)
	return out, nil
}

func (g *GameSystems) Create(_ context.Context, gs *models.GameSystem) error {
	s := g.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gameSystems[gs.ID]; ok {
		return repository.ErrDuplicate
	}
	s.gameSystems[gs.ID] = *gs
	return nil
}

func (g *GameSystems) Update(_ context.Context, gs *models.GameSystem) error {
	s := g.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gameSystems[gs.ID]; !ok {
		return repository.ErrItemNotFound
	}
	s.gameSystems[gs.ID] = *gs
	return nil
}

func (g *GameSystems) Delete(_ context.Context, id string) error {
	s := g.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gameSystems[id]; !ok {
		return repository.ErrItemNotFound
	}
	for _, f := range s.factions {
		if f.GameSystemID == id {
			return repository.ErrReferenced
		}
	}
	delete(s.gameSystems, id)
	return nil
}

type Factions struct{ s *Store }

func (f *Factions) Get(_ context.Context, id string) (*models.Faction, error) {
	s := f.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	faction, ok := s.factions[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return &faction, nil
}

func (f *Factions) List(_ context.Context, filter models.ReadFilter) ([]*models.Faction, error) {
	s := f.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Faction
	for _, faction := range s.factions {
		if readable(faction.CatalogMeta, filter) {
			faction := faction
			out = append(out, &faction)
		}
	}
	sortByName(out)
	return out, nil
}

// checkFactionRefs mirrors the foreign keys and the self-parent check constraint.
func (s *Store) checkFactionRefs(faction *models.Faction) error {
	if _, ok := s.gameSystems[faction.GameSystemID]; !ok {
		return repository.ErrInvalidReference
	}
	if faction.ParentID != nil {
		if *faction.ParentID == faction.ID {
			return repository.ErrInvalidReference
		}
		if _, ok := s.factions[*faction.ParentID]; !ok {
			return repository.ErrInvalidReference
		}
	}
	return nil
}

func (f *Factions) Create(_ context.Context, faction *models.Faction) error {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.factions[faction.ID]; ok {
		return repository.ErrDuplicate
	}
	if err := s.checkFactionRefs(faction); err != nil {
		return err
	}
	s.factions[faction.ID] = *faction
	return nil
}

func (f *Factions) Update(_ context.Context, faction *models.Faction) error {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.factions[faction.ID]; !ok {
		return repository.ErrItemNotFound
	}
	if err := s.checkFactionRefs(faction); err != nil {
		return err
	}
	s.factions[faction.ID] = *faction
	return nil
}

func (f *Factions) Delete(_ context.Context, id string) error {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.factions[id]; !ok {
		return repository.ErrItemNotFound
	}
	for _, child := range s.factions {
		if child.ParentID != nil && *child.ParentID == id {
			return repository.ErrReferenced
		}
	}
	delete(s.factions, id)
	return nil
}
