package service

import (
	"sort"
	"sync"
	"time"

	"github.com/yndnr/converge/internal/core/domain"
)

// ClusterStateService aggregates the node states reported by agents.
// A node is identified by its hostname; a new report for the same
// hostname replaces the old one.
type ClusterStateService struct {
	mu      sync.RWMutex
	nodes   map[string]*domain.NodeState
	updated map[string]time.Time
}

// NewClusterStateService returns an empty aggregation store.
func NewClusterStateService() *ClusterStateService {
	return &ClusterStateService{
		nodes:   make(map[string]*domain.NodeState),
		updated: make(map[string]time.Time),
	}
}

// UpdateNodeState records ns as the latest state of its node.
func (s *ClusterStateService) UpdateNodeState(ns *domain.NodeState) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[ns.Hostname] = ns
	s.updated[ns.Hostname] = time.Now()
	return nil
}

// AsDeployment materializes the aggregated state in the configuration
// shape. The result is built fresh on every call and owned by the caller.
func (s *ClusterStateService) AsDeployment() *domain.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := domain.NewDeployment()
	for hostname, ns := range s.nodes {
		d.Nodes[hostname] = ns.ToNode()
	}
	return d
}

// Nodes returns the hostnames of every node that has reported, sorted.
func (s *ClusterStateService) Nodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.nodes))
	for name := range s.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastUpdate returns when hostname last reported.
func (s *ClusterStateService) LastUpdate(hostname string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.updated[hostname]
	return t, ok
}
