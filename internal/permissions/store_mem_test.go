package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opexlabs/formscore/internal/models"
)

// memStore is a slice-backed Store used by evaluator and lifecycle tests.
// Setting failWith makes every call fail, simulating store outage.
type memStore struct {
	mu       sync.Mutex
	grants   []models.PermissionGrant
	failWith error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Insert(ctx context.Context, grant *models.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}
	for i := range s.grants {
		if s.grants[i].ID == grant.ID {
			return fmt.Errorf("mem store: duplicate id %s", grant.ID)
		}
	}
	s.grants = append(s.grants, *grant)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*models.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	for i := range s.grants {
		if s.grants[i].ID == id {
			cpy := s.grants[i]
			return &cpy, nil
		}
	}
	return nil, fmt.Errorf("mem store: %w", ErrGrantNotFound)
}

func (s *memStore) GetBySubject(ctx context.Context, userID string) ([]models.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	var result []models.PermissionGrant
	for i := range s.grants {
		if s.grants[i].UserID == userID {
			result = append(result, s.grants[i])
		}
	}
	return result, nil
}

func (s *memStore) MarkRevoked(ctx context.Context, id, revokedBy string, revokedAt time.Time, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}
	for i := range s.grants {
		if s.grants[i].ID != id {
			continue
		}
		if !s.grants[i].Active {
			return fmt.Errorf("mem store: %w", ErrGrantNotActive)
		}
		s.grants[i].Active = false
		s.grants[i].RevokedBy = &revokedBy
		s.grants[i].RevokedAt = &revokedAt
		if notes != nil {
			s.grants[i].Notes = notes
		}
		return nil
	}
	return fmt.Errorf("mem store: %w", ErrGrantNotFound)
}

func (s *memStore) snapshot(id string) (models.PermissionGrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.grants {
		if s.grants[i].ID == id {
			return s.grants[i], true
		}
	}
	return models.PermissionGrant{}, false
}
