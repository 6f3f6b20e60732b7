// Package registry holds the collaborator surfaces the settlement
// pipeline consumes but does not own: diet plans, member profiles, daily
// logs, and the insurer directory. The core components depend only on
// the narrow interfaces here; in-memory and sqlite implementations are
// provided for deployments and tests.
package registry

import (
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// PlanRegistry resolves diet plans by id.
// Plan returns (nil, nil) when the plan does not exist.
type PlanRegistry interface {
	Plan(id uint64) (*contracts.PlanDetails, error)
}

// ProfileStore resolves a member's subscribed plan id.
// SubscribedPlan returns ok=false when the member has no profile.
type ProfileStore interface {
	SubscribedPlan(user contracts.Principal) (planID uint64, ok bool, err error)
}

// LogStore resolves daily logs by (member, block height).
// Log returns (nil, nil) when no log exists for that day.
type LogStore interface {
	Log(user contracts.Principal, height uint64) (*contracts.DailyLog, error)
}

// InsurerDirectory tracks the insurers approved to settle claims.
// Registration is terminal: no removal operation exists.
type InsurerDirectory interface {
	IsRegistered(p contracts.Principal) bool
	Register(p contracts.Principal)
}

// MemPlans is a thread-safe in-memory PlanRegistry.
type MemPlans struct {
	mu    sync.RWMutex
	plans map[uint64]contracts.PlanDetails
}

func NewMemPlans() *MemPlans {
	return &MemPlans{plans: make(map[uint64]contracts.PlanDetails)}
}

func (m *MemPlans) SetPlan(id uint64, plan contracts.PlanDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[id] = plan
}

func (m *MemPlans) Plan(id uint64) (*contracts.PlanDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

// MemProfiles is a thread-safe in-memory ProfileStore.
type MemProfiles struct {
	mu       sync.RWMutex
	profiles map[contracts.Principal]uint64
}

func NewMemProfiles() *MemProfiles {
	return &MemProfiles{profiles: make(map[contracts.Principal]uint64)}
}

// Subscribe records the member's subscribed plan id.
func (m *MemProfiles) Subscribe(user contracts.Principal, planID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[user] = planID
}

func (m *MemProfiles) SubscribedPlan(user contracts.Principal) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	planID, ok := m.profiles[user]
	return planID, ok, nil
}

// MemLogs is a thread-safe in-memory LogStore.
type MemLogs struct {
	mu   sync.RWMutex
	logs map[logKey]contracts.DailyLog
}

type logKey struct {
	user   contracts.Principal
	height uint64
}

func NewMemLogs() *MemLogs {
	return &MemLogs{logs: make(map[logKey]contracts.DailyLog)}
}

func (m *MemLogs) PutLog(user contracts.Principal, height uint64, log contracts.DailyLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[logKey{user, height}] = log
}

func (m *MemLogs) Log(user contracts.Principal, height uint64) (*contracts.DailyLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log, ok := m.logs[logKey{user, height}]
	if !ok {
		return nil, nil
	}
	return &log, nil
}

// MemInsurers is a thread-safe in-memory InsurerDirectory.
type MemInsurers struct {
	mu       sync.RWMutex
	insurers map[contracts.Principal]bool
}

func NewMemInsurers() *MemInsurers {
	return &MemInsurers{insurers: make(map[contracts.Principal]bool)}
}

func (m *MemInsurers) Register(p contracts.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insurers[p] = true
}

func (m *MemInsurers) IsRegistered(p contracts.Principal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.insurers[p]
}
