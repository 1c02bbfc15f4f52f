package job

import (
	"context"
	"sort"
	"sync"

	"github.com/maauso/clearmedia-api/internal/credit"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Settlement debits go through the given ledger while the repository lock is
// held, so each job is settled at most once.
type MemoryRepository struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	ledger credit.Ledger
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository(ledger credit.Ledger) *MemoryRepository {
	return &MemoryRepository{
		jobs:   make(map[string]*Job),
		ledger: ledger,
	}
}

// Create stores a clone of the job.
func (r *MemoryRepository) Create(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j.Clone()
	return nil
}

// FindByID returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListByOwner returns clones of the owner's jobs, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string, limit int) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Job, 0)
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].CreatedAt.After(result[b].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkSubmitted stores the processor handle of a pending job.
func (r *MemoryRepository) MarkSubmitted(_ context.Context, id, externalTaskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	return j.MarkSubmitted(externalTaskID)
}

// RecordPoll increments the poll counter.
func (r *MemoryRepository) RecordPoll(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return 0, ErrJobNotFound
	}
	if !j.State.IsTerminal() {
		j.PollCount++
	}
	return j.PollCount, nil
}

// Advance raises the progress of an in-flight job.
func (r *MemoryRepository) Advance(_ context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.State.IsTerminal() {
		return nil
	}
	return j.Advance(progress)
}

// Fail moves a non-terminal job to failed.
func (r *MemoryRepository) Fail(_ context.Context, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if j.State.IsTerminal() {
		return false, nil
	}
	if err := j.Fail(reason); err != nil {
		return false, err
	}
	return true, nil
}

// Complete completes and settles the job under the repository lock.
func (r *MemoryRepository) Complete(ctx context.Context, id, outputRef string, charge int) (Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[id]
	if !ok {
		return Settlement{}, ErrJobNotFound
	}
	if stored.State.IsTerminal() {
		return Settlement{}, nil
	}

	next := stored.Clone()
	if err := next.Complete(outputRef); err != nil {
		return Settlement{}, err
	}

	s := Settlement{Completed: true}
	if charge > 0 {
		debited, err := r.ledger.TryDebit(ctx, next.OwnerID, charge)
		if err != nil {
			return Settlement{}, err
		}
		if debited {
			s.Charged = charge
		} else {
			s.Shortfall = charge
		}
	}
	if err := next.Settle(s.Charged, s.Shortfall); err != nil {
		return Settlement{}, err
	}

	r.jobs[id] = next
	return s, nil
}
