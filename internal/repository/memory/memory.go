// Package memory holds in-process repositories used by tests and by the "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoinTrend/internal/domain/models"
)

type AssetRepository struct {
	mu      sync.RWMutex
	byName  map[string]*models.Asset
	Creates int
}

func NewAssetRepository() *AssetRepository {
	return &AssetRepository{byName: make(map[string]*models.Asset)}
}

func (r *AssetRepository) FindByName(_ context.Context, name string) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AssetRepository) Create(_ context.Context, a *models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[a.Name]; ok {
		return nil
	}
	cp := *a
	r.byName[a.Name] = &cp
	r.Creates++
	return nil
}

type SymbolRepository struct {
	mu    sync.RWMutex
	docs  map[string]*models.SymbolDocument
	Saves int
	Err   error // returned by every call when set
}

func NewSymbolRepository(docs ...*models.SymbolDocument) *SymbolRepository {
	r := &SymbolRepository{docs: make(map[string]*models.SymbolDocument)}
	for _, d := range docs {
		r.docs[d.Symbol.Key()] = d
	}
	return r
}

func (r *SymbolRepository) FindAll(_ context.Context) ([]*models.SymbolDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*models.SymbolDocument, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, copyDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Key() < out[j].Symbol.Key() })
	return out, nil
}

func (r *SymbolRepository) FindByKey(_ context.Context, base, quote string) (*models.SymbolDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	d, ok := r.docs[models.SymbolKey(base, quote)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyDoc(d), nil
}

func (r *SymbolRepository) Save(_ context.Context, doc *models.SymbolDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.docs[doc.Symbol.Key()] = copyDoc(doc)
	r.Saves++
	return nil
}

// Count returns the number of stored documents.
func (r *SymbolRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func copyDoc(d *models.SymbolDocument) *models.SymbolDocument {
	cp := *d
	cp.Preferences = append([]models.PreferenceEntry(nil), d.Preferences...)
	return &cp
}

type EventRepository struct {
	mu     sync.RWMutex
	events []*models.SymbolEvent
}

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Store(_ context.Context, e *models.SymbolEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *EventRepository) FindByID(_ context.Context, id string) (*models.SymbolEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *EventRepository) FindAll(_ context.Context) ([]*models.SymbolEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(append([]*models.SymbolEvent(nil), r.events...)), nil
}

func (r *EventRepository) FindForUser(_ context.Context, userID string, mode models.MatchMode, limit int) ([]*models.SymbolEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.SymbolEvent
	for _, e := range r.events {
		t, ok := e.Preferences[userID]
		if ok && models.ThresholdMatches(mode, t, e.Probability) {
			out = append(out, e)
		}
	}
	out = newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newestFirst(events []*models.SymbolEvent) []*models.SymbolEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].FiredAt.After(events[j].FiredAt) })
	return events
}

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewUserRepository(users ...*models.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) FindByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *UserRepository) MarkNotified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.NotifiedAt = at
	return nil
}
