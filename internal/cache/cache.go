// Package cache keeps computed schedules for a short time so repeated API
// calls for the same day do not re-read the backend.
package cache

import (
	"log/slog"
	"time"

	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/scheduler"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// PlanKey identifies a plan by strategy and the day it was computed for.
func PlanKey(strategy scheduler.StrategyName, today core.Date) string {
	return string(strategy) + "|" + today.String()
}

// PlanCache stores plans under PlanKey.
type PlanCache struct {
	*LRUCache[scheduler.Plan]
}

func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	return &PlanCache{LRUCache: NewLRUCache[scheduler.Plan](maxSize, ttl)}
}

func (c *PlanCache) GetPlan(strategy scheduler.StrategyName, today core.Date) (scheduler.Plan, bool) {
	return c.Get(PlanKey(strategy, today))
}

func (c *PlanCache) SetPlan(plan scheduler.Plan) {
	c.Set(PlanKey(plan.Strategy, plan.Today), plan)
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	started     bool
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.Debug("Expired cache entries removed", log.FieldComponent, log.ComponentCache, "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanNow runs one cleanup pass and returns the number of removed entries.
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup routine started by StartCleanup.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	<-m.cleanupDone
}
