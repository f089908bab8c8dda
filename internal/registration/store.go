package registration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dishly/dishly/internal/backend"
)

const (
	DefaultTTL       = time.Hour
	DefaultMaxDrafts = 10000
)

// Step names a wizard step. Steps are completed in declaration order.
type Step string

const (
	StepRestaurant Step = "restaurant"
	StepBranches   Step = "branches"
	StepDocuments  Step = "documents"
	StepSubmit     Step = "submit"
)

var ErrDraftNotFound = errors.New("registration draft not found")

// StepError reports an attempt to skip ahead in the wizard.
type StepError struct {
	Step Step
	Need Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("complete the %s step before %s", e.Need, e.Step)
}

// Draft is a registration in progress. It lives only in memory.
type Draft struct {
	ID         string
	Restaurant *backend.Restaurant
	Branches   []backend.Branch
	Documents  *backend.Documents
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NextStep is the first step not yet completed.
func (d Draft) NextStep() Step {
	switch {
	case d.Restaurant == nil:
		return StepRestaurant
	case len(d.Branches) == 0:
		return StepBranches
	case d.Documents == nil:
		return StepDocuments
	default:
		return StepSubmit
	}
}

// Require returns a StepError unless every step before step is complete.
func (d Draft) Require(step Step) error {
	order := []Step{StepRestaurant, StepBranches, StepDocuments, StepSubmit}
	next := d.NextStep()
	for _, s := range order {
		if s == step {
			return nil
		}
		if s == next {
			return &StepError{Step: step, Need: next}
		}
	}
	return nil
}

// Registration assembles the backend payload of a complete draft.
func (d Draft) Registration() backend.RestaurantRegistration {
	reg := backend.RestaurantRegistration{Branches: d.Branches}
	if d.Restaurant != nil {
		reg.Restaurant = *d.Restaurant
	}
	if d.Documents != nil {
		reg.Documents = *d.Documents
	}
	return reg
}

// Store keeps drafts in a bounded cache. Each write pushes the draft's
// expiry out by the TTL; the least recently used draft is evicted when full.
type Store struct {
	mu     sync.Mutex
	drafts *expirable.LRU[string, Draft]
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultMaxDrafts
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		drafts: expirable.NewLRU[string, Draft](size, nil, ttl),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Create() Draft {
	now := s.now()
	d := Draft{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.drafts.Add(d.ID, d)
	s.mu.Unlock()
	return d
}

func (s *Store) Get(id string) (Draft, bool) {
	if id == "" {
		return Draft{}, false
	}
	return s.drafts.Get(id)
}

// Update applies fn to a copy of the draft and stores the result when fn
// succeeds.
func (s *Store) Update(id string, fn func(d *Draft) error) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts.Get(id)
	if !ok || id == "" {
		return Draft{}, ErrDraftNotFound
	}
	if err := fn(&d); err != nil {
		return Draft{}, err
	}
	d.UpdatedAt = s.now()
	s.drafts.Add(id, d)
	return d, nil
}

func (s *Store) Delete(id string) {
	s.drafts.Remove(id)
}

func (s *Store) Len() int {
	return s.drafts.Len()
}
