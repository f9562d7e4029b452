// Package memstore is a mutex-protected in-memory Catalog Store, in the
// style of the platform's own simple in-memory stores. It is the backend
// exercised by the coordinator's unit and scenario tests, since it needs
// no network and its uniqueness check can be asserted directly.
package memstore

import (
	"context"
	"sync"

	"github.com/nodecoord/coordinator/internal/catalog"
	"github.com/nodecoord/coordinator/internal/domain"
)

// Store is an in-memory catalog.Store. The zero value is not usable; call
// New.
type Store struct {
	mu sync.RWMutex

	jobs         map[string]*domain.JobRecord
	bindings     map[string]*domain.RuntimeBinding
	clusters     map[string]domain.Cluster
	commands     map[string]domain.Command
	applications map[string]domain.Application
}

func New() *Store {
	return &Store{
		jobs:         make(map[string]*domain.JobRecord),
		bindings:     make(map[string]*domain.RuntimeBinding),
		clusters:     make(map[string]domain.Cluster),
		commands:     make(map[string]domain.Command),
		applications: make(map[string]domain.Application),
	}
}

// SeedCluster, SeedCommand, SeedApplication populate the read-only catalog
// entities a test or a small deployment needs ahead of time; the coordinator
// itself never writes these.

func (s *Store) SeedCluster(c domain.Cluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[c.ID] = c
}

func (s *Store) SeedCommand(c domain.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[c.ID] = c
}

func (s *Store) SeedApplication(a domain.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.ID] = a
}

func (s *Store) CreateJob(ctx context.Context, record domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[record.ID]; exists {
		return catalog.ErrAlreadyExists
	}
	cp := record
	s.jobs[record.ID] = &cp
	return nil
}

func (s *Store) GetCluster(ctx context.Context, id string) (domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clusters[id]
	if !ok {
		return domain.Cluster{}, catalog.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCommand(ctx context.Context, id string) (domain.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commands[id]
	if !ok {
		return domain.Command{}, catalog.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[id]
	if !ok {
		return domain.Application{}, catalog.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateJobWithRuntimeEnvironment(ctx context.Context, binding domain.RuntimeBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := binding
	s.bindings[binding.JobID] = &cp
	return nil
}

func (s *Store) GetActiveJobCountForUser(ctx context.Context, user string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, job := range s.jobs {
		if job.User != user {
			continue
		}
		switch job.Status {
		case domain.StatusFailed, domain.StatusInvalid, domain.StatusKilled, domain.StatusSucceeded:
			// terminal, does not count against the quota
		default:
			active++
		}
	}
	return active, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status domain.Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ErrNotFound
	}
	job.Status = status
	job.StatusMessage = message
	return nil
}

// GetJob is a test-only accessor for asserting on the stored JobRecord
// directly; it is not part of the catalog.Store interface.
func (s *Store) GetJob(jobID string) (domain.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.JobRecord{}, false
	}
	return *job, true
}

// GetBinding is a test-only accessor for asserting on the stored
// RuntimeBinding directly.
func (s *Store) GetBinding(jobID string) (domain.RuntimeBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.bindings[jobID]
	if !ok {
		return domain.RuntimeBinding{}, false
	}
	return *binding, true
}
