// Package memory - in-process реализация хранилища (dev-режим без PostgreSQL и тесты).
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/deception-core/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	rules      map[string]domain.RoutingRule
	indicators map[string]domain.ThreatIndicator
	decoys     map[string]domain.DecoyDestination
	honeypots  map[string]domain.HoneypotService

	decisions   []domain.RoutingDecision
	metrics     []domain.MetricSample
	predictions []domain.PredictionRecord
	deployments []domain.DeploymentRecord
	activity    []domain.ActivityLogEntry

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		rules:      make(map[string]domain.RoutingRule),
		indicators: make(map[string]domain.ThreatIndicator),
		decoys:     make(map[string]domain.DecoyDestination),
		honeypots:  make(map[string]domain.HoneypotService),
		now:        time.Now,
	}
}

func indicatorKey(typ, value string) string { return typ + "|" + value }

// --- Наполнение (dev seed, тесты) ---

func (s *Store) PutRule(r domain.RoutingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
}

func (s *Store) PutIndicator(i domain.ThreatIndicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators[indicatorKey(i.Type, i.Value)] = i
}

func (s *Store) PutDecoy(d domain.DecoyDestination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoys[d.ID] = d
}

func (s *Store) PutHoneypot(h domain.HoneypotService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Status == "" {
		h.Status = domain.StatusStopped
	}
	s.honeypots[h.ID] = cloneHoneypot(h)
}

// --- Engine side ---

func (s *Store) ActiveRules(ctx context.Context) ([]domain.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RoutingRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) LookupIndicator(ctx context.Context, indicatorType, value string) (domain.ThreatIndicator, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.indicators[indicatorKey(indicatorType, value)]
	return i, ok, nil
}

func (s *Store) ActiveDecoys(ctx context.Context) ([]domain.DecoyDestination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DecoyDestination, 0, len(s.decoys))
	for _, d := range s.decoys {
		if d.Active {
			out = append(out, d)
		}
	}
	// стабильный порядок для воспроизводимого выбора в тестах
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendRoutingDecision(ctx context.Context, d domain.RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, cloneDecision(d))
	return nil
}

func (s *Store) AppendMetric(ctx context.Context, m domain.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *Store) AppendPrediction(ctx context.Context, p domain.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, p)
	return nil
}

// RoutingDecision читает решение из журнала по ID.
func (s *Store) RoutingDecision(ctx context.Context, id string) (domain.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.decisions {
		if d.ID == id {
			return cloneDecision(d), nil
		}
	}
	return domain.RoutingDecision{}, fmt.Errorf("%w: routing decision %s", domain.ErrNotFound, id)
}

func (s *Store) Metrics() []domain.MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MetricSample(nil), s.metrics...)
}

func (s *Store) Predictions() []domain.PredictionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PredictionRecord(nil), s.predictions...)
}

// --- Orchestrator side ---

func (s *Store) GetHoneypot(ctx context.Context, id string) (domain.HoneypotService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.honeypots[id]
	if !ok {
		return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s", domain.ErrNotFound, id)
	}
	return cloneHoneypot(h), nil
}

// TransitionHoneypot - compare-and-transition: статус меняется только если текущий равен from.
func (s *Store) TransitionHoneypot(ctx context.Context, id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (domain.HoneypotService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.honeypots[id]
	if !ok {
		return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s", domain.ErrNotFound, id)
	}
	if h.Status != from {
		return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s is %s, expected %s", domain.ErrConflict, id, h.Status, from)
	}

	h = cloneHoneypot(h)
	h.Status = to
	if patch != nil {
		patch.Apply(&h)
	}
	h.UpdatedAt = s.now().UTC()
	s.honeypots[id] = h
	return cloneHoneypot(h), nil
}

func (s *Store) InsertDeploymentRecord(ctx context.Context, rec domain.DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.deployments {
		if r.HoneypotID == rec.HoneypotID && r.Open() {
			return fmt.Errorf("%w: honeypot %s already has open deployment %s", domain.ErrConflict, rec.HoneypotID, r.ID)
		}
	}
	s.deployments = append(s.deployments, rec)
	return nil
}

func (s *Store) CloseDeploymentRecord(ctx context.Context, honeypotID string, at time.Time, health domain.HealthStatus) (domain.DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.deployments {
		if r.HoneypotID == honeypotID && r.Open() {
			t := at
			r.TerminatedAt = &t
			r.Health = health
			s.deployments[i] = r
			return r, nil
		}
	}
	return domain.DeploymentRecord{}, fmt.Errorf("%w: no open deployment for honeypot %s", domain.ErrNotFound, honeypotID)
}

func (s *Store) ListDeploymentRecords(ctx context.Context, honeypotID string) ([]domain.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DeploymentRecord
	for _, r := range s.deployments {
		if r.HoneypotID == honeypotID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AppendActivityLogs(ctx context.Context, entries []domain.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entries...)
	return nil
}

func (s *Store) ActivityLog() []domain.ActivityLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ActivityLogEntry(nil), s.activity...)
}

// cloneDecision - журнал не делит срезы, карты и указатели с вызывающим.
func cloneDecision(d domain.RoutingDecision) domain.RoutingDecision {
	out := d
	out.RiskIndicators = slices.Clone(d.RiskIndicators)
	out.Headers = maps.Clone(d.Headers)
	out.GeoLocation = maps.Clone(d.GeoLocation)
	if d.RedirectURL != nil {
		v := *d.RedirectURL
		out.RedirectURL = &v
	}
	return out
}

func cloneHoneypot(h domain.HoneypotService) domain.HoneypotService {
	out := h
	out.ResourceLimits = h.ResourceLimits.Clone()
	if h.ContainerID != nil {
		v := *h.ContainerID
		out.ContainerID = &v
	}
	if h.Configuration != nil {
		out.Configuration = make(map[string]string, len(h.Configuration))
		for k, v := range h.Configuration {
			out.Configuration[k] = v
		}
	}
	return out
}
