// Package credential stores login credentials keyed by profile.
package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"taskdesk/internal/identity/models"
	"taskdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials indexed by lower-cased email.
type InMemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]models.Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEmail: make(map[string]models.Credential)}
}

func (s *InMemoryStore) Create(_ context.Context, cred models.Credential) error {
	key := strings.ToLower(cred.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("credential email: %w", sentinel.ErrConflict)
	}
	for _, c := range s.byEmail {
		if c.ProfileID == cred.ProfileID {
			return fmt.Errorf("credential %s: %w", cred.ProfileID, sentinel.ErrConflict)
		}
	}
	s.byEmail[key] = cred
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return models.Credential{}, fmt.Errorf("credential: %w", sentinel.ErrNotFound)
	}
	return cred, nil
}
