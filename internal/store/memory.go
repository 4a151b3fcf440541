package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/serroba/contact-intake/internal/auth"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/export"
)

// MemoryStore is an in-memory implementation of contact.Repository and
// auth.RoleLookup.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions []contact.Submission
	roles       map[string]string // subject -> role
}

// NewMemoryStore creates a new in-memory submission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roles: make(map[string]string)}
}

func (m *MemoryStore) Save(_ context.Context, s *contact.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions = append(m.submissions, *s)

	return nil
}

// FetchPage serves the submissions table ordered by created_at. Rows with
// the same timestamp keep insertion order.
func (m *MemoryStore) FetchPage(_ context.Context, q export.PageQuery) ([]export.Row, error) {
	if q.Table != contact.Table {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, q.Table)
	}

	m.mu.RLock()
	sorted := make([]contact.Submission, len(m.submissions))
	copy(sorted, m.submissions)
	m.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		if q.Order.Descending {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}

		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	if q.Offset >= len(sorted) || q.Limit <= 0 {
		return nil, nil
	}

	end := min(q.Offset+q.Limit, len(sorted))
	rows := make([]export.Row, 0, end-q.Offset)

	for i := q.Offset; i < end; i++ {
		rows = append(rows, project(sorted[i].Row(), q.Columns))
	}

	return rows, nil
}

// SetRole records the profile role of subject.
func (m *MemoryStore) SetRole(subject, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roles[subject] = role
}

func (m *MemoryStore) RoleOf(_ context.Context, subject string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[subject]
	if !ok {
		return "", auth.ErrProfileNotFound
	}

	return role, nil
}

// Len returns the number of stored submissions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.submissions)
}

var (
	_ contact.Repository = (*MemoryStore)(nil)
	_ auth.RoleLookup    = (*MemoryStore)(nil)
)
