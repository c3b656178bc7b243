package importer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/utils"
)

// memStore is an in-memory Store with the same last-write-wins and slug rules
// as the GORM-backed store.
type memStore struct {
	mu      sync.Mutex
	order   []string
	recs    map[string]domain.Recipe
	upserts int

	listErr   error
	failAfter int // fail the upsert call after this many records; <0 disables
}

var errStoreDown = errors.New("store unavailable")

func newMemStore(seed ...domain.Recipe) *memStore {
	m := &memStore{recs: map[string]domain.Recipe{}, failAfter: -1}
	for _, r := range seed {
		m.put(r)
	}
	return m
}

func (m *memStore) put(r domain.Recipe) {
	if _, ok := m.recs[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.recs[r.ID] = r
}

func (m *memStore) ListRecipes(_ context.Context) ([]domain.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Recipe, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.recs[id])
	}
	return out, nil
}

func (m *memStore) UpsertRecipes(_ context.Context, rs []domain.Recipe) ([]domain.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	out := make([]domain.UpsertOutcome, 0, len(rs))
	for i, r := range rs {
		if m.failAfter >= 0 && i >= m.failAfter {
			return out, errStoreDown
		}
		o := domain.UpsertOutcome{ID: r.ID, Incoming: r.UpdatedAt}
		ex, exists := m.recs[r.ID]
		if exists && !r.UpdatedAt.After(ex.UpdatedAt) {
			stored := ex.UpdatedAt
			o.Status, o.Stored, o.Slug = domain.UpsertStale, &stored, ex.Slug
			out = append(out, o)
			continue
		}
		if r.Slug == "" && exists && ex.Name == r.Name {
			r.Slug = ex.Slug
		}
		if r.Slug == "" {
			r.Slug = utils.Slugify(r.Name)
		}
		r.Slug = m.uniqueSlug(r.Slug, r.ID)
		o.Slug = r.Slug
		o.Status = domain.UpsertInserted
		if exists {
			o.Status = domain.UpsertUpdated
		}
		m.put(r)
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) uniqueSlug(base, selfID string) string {
	taken := func(s string) bool {
		for id, r := range m.recs {
			if id != selfID && r.Slug == s {
				return true
			}
		}
		return false
	}
	s := base
	for n := 2; taken(s); n++ {
		s = base + "-" + strconv.Itoa(n)
	}
	return s
}

func (m *memStore) get(id string) (domain.Recipe, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

func (m *memStore) snapshot() map[string]domain.Recipe {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Recipe, len(m.recs))
	for k, v := range m.recs {
		out[k] = v
	}
	return out
}

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
