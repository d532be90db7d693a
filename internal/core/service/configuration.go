package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/converge/internal/core/domain"
)

// ConfigRepository persists configuration revisions.
type ConfigRepository interface {
	// LoadCurrent returns the latest revision, or nil if none was saved.
	LoadCurrent(ctx context.Context) (*domain.Revision, error)

	// Append stores rev as the current revision and adds it to history.
	Append(ctx context.Context, rev *domain.Revision) error

	// History returns every revision, oldest first.
	History(ctx context.Context) ([]*domain.Revision, error)
}

// ConfigurationService owns the desired configuration.
//
// The Deployment returned by Get is shared with every caller and must not
// be modified. Save replaces it wholesale.
type ConfigurationService struct {
	repo   ConfigRepository
	logger *slog.Logger

	saveMu sync.Mutex // serializes Save

	mu      sync.RWMutex
	current *domain.Revision

	cbMu      sync.Mutex
	callbacks []func()
}

// NewConfigurationService loads the persisted configuration from repo.
// A nil repo keeps configuration in memory only. With nothing persisted
// the service starts from an empty Deployment at revision 0.
func NewConfigurationService(ctx context.Context, repo ConfigRepository, logger *slog.Logger) (*ConfigurationService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConfigurationService{
		repo:    repo,
		logger:  logger,
		current: &domain.Revision{Deployment: domain.NewDeployment()},
	}

	if repo == nil {
		return s, nil
	}
	rev, err := repo.LoadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if rev != nil {
		s.current = rev
		logger.Info("loaded persisted configuration",
			"revision", rev.Seq,
			"nodes", len(rev.Deployment.Nodes),
			"applications", rev.Deployment.ApplicationCount(),
		)
	}
	return s, nil
}

// Get returns the current desired configuration.
func (s *ConfigurationService) Get() *domain.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Deployment
}

// Revision returns the sequence number of the current configuration.
func (s *ConfigurationService) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Seq
}

// Register subscribes fn to configuration changes. fn runs on the
// goroutine that called Save, after the new value is visible through Get.
func (s *ConfigurationService) Register(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Save validates d, persists it and makes it the current configuration.
// Subscribers are notified only after the write succeeded.
func (s *ConfigurationService) Save(ctx context.Context, d *domain.Deployment) (*domain.Revision, error) {
	// 1. Validate
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s.saveMu.Lock()

	// 2. Persist
	rev := &domain.Revision{
		Seq:        s.Revision() + 1,
		SavedAt:    time.Now(),
		Deployment: d,
	}
	if s.repo != nil {
		if err := s.repo.Append(ctx, rev); err != nil {
			s.saveMu.Unlock()
			s.logger.Error("failed to persist configuration", "revision", rev.Seq, "error", err)
			return nil, err
		}
	}

	// 3. Swap
	s.mu.Lock()
	s.current = rev
	s.mu.Unlock()
	s.saveMu.Unlock()

	s.logger.Info("configuration saved",
		"revision", rev.Seq,
		"nodes", len(d.Nodes),
		"applications", d.ApplicationCount(),
	)

	// 4. Notify
	s.cbMu.Lock()
	callbacks := append([]func(){}, s.callbacks...)
	s.cbMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	return rev, nil
}

// History returns every saved revision, oldest first. Without a
// repository only the current revision is known.
func (s *ConfigurationService) History(ctx context.Context) ([]*domain.Revision, error) {
	if s.repo == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.current.Seq == 0 {
			return nil, nil
		}
		return []*domain.Revision{s.current}, nil
	}
	return s.repo.History(ctx)
}
