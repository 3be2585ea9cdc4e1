package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dataset"
)

// Loader produces a dataset
type Loader interface {
	Load(ctx context.Context) (*dataset.Dataset, error)
}

// Snapshot is a loaded dataset and the version it was published under
type Snapshot struct {
	Dataset *dataset.Dataset
	Version uint64
}

// Store holds the current dataset. It loads on first use and is replaced
// only by Reload; readers share the published snapshot.
type Store struct {
	loader   Loader
	logger   *logrus.Logger
	mu       sync.RWMutex
	current  *Snapshot
	onReload []func(Snapshot)
}

// NewStore creates a new dataset store
func NewStore(loader Loader, logger *logrus.Logger) *Store {
	return &Store{loader: loader, logger: logger}
}

// OnReload registers fn to run after each successful load
func (s *Store) OnReload(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Get returns the current snapshot, loading it if nothing is loaded yet
func (s *Store) Get(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return *current, nil
	}

	s.mu.Lock()
	if s.current != nil {
		snap := *s.current
		s.mu.Unlock()
		return snap, nil
	}
	snap, hooks, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	runHooks(hooks, snap)
	return snap, nil
}

// Reload reads the dataset again and publishes it under a new version. On
// failure the previous snapshot stays current.
func (s *Store) Reload(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	snap, hooks, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	runHooks(hooks, snap)
	return snap, nil
}

// Version returns the published version, zero before the first load
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.Version
}

func (s *Store) loadLocked(ctx context.Context) (Snapshot, []func(Snapshot), error) {
	ds, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load dataset")
		return Snapshot{}, nil, err
	}

	var version uint64 = 1
	if s.current != nil {
		version = s.current.Version + 1
	}
	snap := Snapshot{Dataset: ds, Version: version}
	s.current = &snap

	s.logger.WithFields(logrus.Fields{
		"version":      version,
		"mode":         ds.Mode,
		"source":       ds.Source,
		"observations": ds.Len(),
		"dropped_rows": ds.DroppedRows,
	}).Info("Dataset published")

	hooks := append(([]func(Snapshot))(nil), s.onReload...)
	return snap, hooks, nil
}

func runHooks(hooks []func(Snapshot), snap Snapshot) {
	for _, fn := range hooks {
		fn(snap)
	}
}
