package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

type recallKey struct {
	title  string
	source recall.Source
}

// RecallStore implements recall.Store and recall.AlertStore in memory with the
// same (title, source) uniqueness and email keyed upsert as the SQL store.
type RecallStore struct {
	mu      sync.RWMutex
	recalls []recall.StoredRecall
	index   map[recallKey]string
	alerts  map[string]recall.AlertPreference
	now     func() time.Time
}

// NewRecallStore creates an empty store.
func NewRecallStore() *RecallStore {
	return &RecallStore{
		index:  make(map[recallKey]string),
		alerts: make(map[string]recall.AlertPreference),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *RecallStore) Ping(context.Context) error {
	return nil
}

// Insert stores c, returning recall.ErrDuplicate if (title, source) exists.
func (s *RecallStore) Insert(_ context.Context, c recall.Candidate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recallKey{c.Title, c.Source}
	if _, ok := s.index[key]; ok {
		return "", fmt.Errorf("insert %q: %w", c.Title, recall.ErrDuplicate)
	}
	id := uuid.NewString()
	now := s.now()
	s.recalls = append(s.recalls, recall.StoredRecall{ID: id, Candidate: c, CreatedAt: now, UpdatedAt: now})
	s.index[key] = id
	return id, nil
}

// FindByTitleAndSource reports the ID of an existing recall.
func (s *RecallStore) FindByTitleAndSource(_ context.Context, title string, source recall.Source) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.index[recallKey{title, source}]
	return id, ok, nil
}

// Query filters, sorts and limits the stored recalls.
func (s *RecallStore) Query(_ context.Context, filters recall.Filters, ordering recall.Ordering, limit int) ([]recall.StoredRecall, error) {
	s.mu.RLock()
	out := make([]recall.StoredRecall, 0, len(s.recalls))
	for _, r := range s.recalls {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	less, err := comparator(ordering.Field)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b recall.StoredRecall) int {
		if ordering.Descending {
			return less(b, a)
		}
		return less(a, b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recalls returns every stored recall in insertion order.
func (s *RecallStore) Recalls() []recall.StoredRecall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.recalls)
}

func matches(r recall.StoredRecall, f recall.Filters) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.RiskLevel != "" && r.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	brand := ""
	if r.Brand != nil {
		brand = *r.Brand
	}
	for _, hay := range []string{r.Title, r.ProductName, brand, r.Category} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func comparator(field string) (func(a, b recall.StoredRecall) int, error) {
	switch field {
	case "", "recall_date":
		return func(a, b recall.StoredRecall) int { return strings.Compare(a.RecallDate, b.RecallDate) }, nil
	case "created_at":
		return func(a, b recall.StoredRecall) int { return a.CreatedAt.Compare(b.CreatedAt) }, nil
	case "title":
		return func(a, b recall.StoredRecall) int { return strings.Compare(a.Title, b.Title) }, nil
	default:
		return nil, fmt.Errorf("unsupported ordering field %q", field)
	}
}

// UpsertAlertPreference creates or reactivates the subscription for pref.Email.
func (s *RecallStore) UpsertAlertPreference(_ context.Context, pref recall.AlertPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	existing, ok := s.alerts[pref.Email]
	if !ok {
		existing = recall.AlertPreference{ID: uuid.NewString(), Email: pref.Email, Brands: pref.Brands, CreatedAt: now}
	}
	existing.Categories = nilIfEmpty(pref.Categories)
	existing.IsActive = true
	existing.UpdatedAt = now
	s.alerts[pref.Email] = existing
	return nil
}

// ListActiveAlertPreferences returns active subscriptions covering category,
// or every active subscription when category is empty.
func (s *RecallStore) ListActiveAlertPreferences(_ context.Context, category string) ([]recall.AlertPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []recall.AlertPreference
	for _, pref := range s.alerts {
		if !pref.IsActive {
			continue
		}
		if category != "" && pref.Categories != nil && !slices.Contains(pref.Categories, category) {
			continue
		}
		out = append(out, pref)
	}
	slices.SortFunc(out, func(a, b recall.AlertPreference) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return slices.Clone(values)
}
