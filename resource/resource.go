// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sentinel errors for the manager's failure modes. All are recoverable
// by the caller; none is fatal to the manager.
var (
	// ErrNotFound means the app id is not registered.
	ErrNotFound = errors.New("resource: app not registered")

	// ErrAlreadyExists means a duplicate registration was attempted.
	ErrAlreadyExists = errors.New("resource: app already registered")

	// ErrOutOfSlots means a fixed table (accounts or callbacks) is full.
	ErrOutOfSlots = errors.New("resource: table full")

	// ErrQuotaExceeded means a request would push usage past quota.
	// The request is rejected without any state change. An expected
	// steady-state condition, not a crash-worthy error.
	ErrQuotaExceeded = errors.New("resource: quota exceeded")
)

// warningThresholdPercent is the usage/quota ratio at which a
// successful request fires EventQuotaWarning.
const warningThresholdPercent = 80

// DefaultMaxApps bounds the account table when Config leaves it zero.
const DefaultMaxApps = 16

// maxCallbacks bounds the event callback table.
const maxCallbacks = 4

// account tracks one app's quota and consumption.
type account struct {
	appID uint32
	quota Amounts
	usage Amounts
}

// Manager tracks per-app resource usage against quotas and enforces
// them atomically: a request either fits entirely within quota and is
// applied, or is rejected with no state change.
//
// All mutation is serialized under one mutex. Event callbacks run
// after the mutex is released, so a callback may safely call back into
// the Manager.
type Manager struct {
	mu           sync.Mutex
	accounts     map[uint32]*account
	maxApps      int
	defaultQuota Amounts
	system       Amounts
	callbacks    []Callback
	logger       *slog.Logger
}

// Config holds parameters for creating a Manager.
type Config struct {
	// MaxApps bounds the account table. Zero means DefaultMaxApps.
	MaxApps int

	// DefaultQuota applies to apps registered without an explicit
	// quota. Nil means DefaultQuota().
	DefaultQuota *Amounts

	// Logger receives quota events and registration lines. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// NewManager creates a Manager with no registered apps.
func NewManager(config Config) *Manager {
	maxApps := config.MaxApps
	if maxApps <= 0 {
		maxApps = DefaultMaxApps
	}
	quota := DefaultQuota()
	if config.DefaultQuota != nil {
		quota = *config.DefaultQuota
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		accounts:     make(map[uint32]*account, maxApps),
		maxApps:      maxApps,
		defaultQuota: quota,
		logger:       logger,
	}
}

// Register creates an account for appID. A nil quota applies the
// manager's default. Usage starts at zero.
func (m *Manager) Register(appID uint32, quota *Amounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[appID]; ok {
		return fmt.Errorf("app %d: %w", appID, ErrAlreadyExists)
	}
	if len(m.accounts) >= m.maxApps {
		return fmt.Errorf("app %d: %w", appID, ErrOutOfSlots)
	}

	applied := m.defaultQuota
	if quota != nil {
		applied = *quota
	}
	m.accounts[appID] = &account{appID: appID, quota: applied}

	m.logger.Info("registered app",
		"app_id", appID,
		"memory_quota", applied.MemoryBytes,
		"cpu_quota_us", applied.CPUTimeMicros,
	)
	return nil
}

// Unregister removes an app's account. Its outstanding usage is
// subtracted from the system totals.
func (m *Manager) Unregister(appID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	for _, k := range Kinds() {
		m.system.set(k, saturatingSub(m.system.Value(k), acct.usage.Value(k)))
	}
	delete(m.accounts, appID)

	m.logger.Info("unregistered app", "app_id", appID)
	return nil
}

// SetDefaultQuota replaces the quota applied to future registrations.
// Existing accounts are unaffected.
func (m *Manager) SetDefaultQuota(quota Amounts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultQuota = quota
}

// UpdateQuota replaces an app's quota. Usage is untouched; if the new
// quota is below current usage, further requests fail until enough is
// released.
func (m *Manager) UpdateQuota(appID uint32, quota Amounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	acct.quota = quota
	return nil
}

// Request atomically charges amount of kind k to the app. If the
// charge would exceed quota, nothing changes and ErrQuotaExceeded is
// returned (with an EventQuotaExceeded fired). Crossing the warning
// threshold on a successful charge fires EventQuotaWarning.
func (m *Manager) Request(appID uint32, k Kind, amount uint64) error {
	if k < 0 || k >= kindCount {
		return fmt.Errorf("resource: invalid kind %d", k)
	}

	m.mu.Lock()

	acct, ok := m.accounts[appID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}

	current := acct.usage.Value(k)
	quota := acct.quota.Value(k)
	next := current + amount

	if next > quota || next < current {
		callbacks := m.callbacksLocked()
		m.mu.Unlock()

		m.logger.Warn("quota exceeded",
			"app_id", appID,
			"resource", k,
			"requested", amount,
			"usage", current,
			"quota", quota,
		)
		fire(callbacks, Event{AppID: appID, Resource: k, Kind: EventQuotaExceeded})
		return fmt.Errorf("app %d %s (usage %d + %d > quota %d): %w",
			appID, k, current, amount, quota, ErrQuotaExceeded)
	}

	acct.usage.set(k, next)
	m.system.set(k, m.system.Value(k)+amount)

	// quota - quota/5 is the smallest usage at or above
	// warningThresholdPercent of quota, computed without the
	// multiplication that would overflow for quotas near MaxUint64.
	threshold := quota - quota/5
	crossedWarning := quota > 0 && current < threshold && next >= threshold
	var callbacks []Callback
	if crossedWarning {
		callbacks = m.callbacksLocked()
	}
	m.mu.Unlock()

	if crossedWarning {
		m.logger.Warn("quota warning threshold crossed",
			"app_id", appID,
			"resource", k,
			"usage", next,
			"quota", quota,
		)
		fire(callbacks, Event{AppID: appID, Resource: k, Kind: EventQuotaWarning})
	}
	return nil
}

// Release returns amount of kind k to the app's budget. Releasing more
// than is held clamps usage at zero; a double release is tolerated,
// not punished.
func (m *Manager) Release(appID uint32, k Kind, amount uint64) error {
	if k < 0 || k >= kindCount {
		return fmt.Errorf("resource: invalid kind %d", k)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}

	current := acct.usage.Value(k)
	released := amount
	if released > current {
		released = current
	}
	acct.usage.set(k, current-released)
	m.system.set(k, saturatingSub(m.system.Value(k), released))
	return nil
}

// Available reports whether a request of amount would currently fit
// within quota. Advisory only: the answer may be stale by the time the
// caller acts on it, so enforcement always happens in Request.
func (m *Manager) Available(appID uint32, k Kind, amount uint64) bool {
	if k < 0 || k >= kindCount {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return false
	}
	next := acct.usage.Value(k) + amount
	return next >= acct.usage.Value(k) && next <= acct.quota.Value(k)
}

// Usage returns a snapshot of the app's current consumption.
func (m *Manager) Usage(appID uint32) (Amounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return Amounts{}, fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	return acct.usage, nil
}

// QuotaOf returns the app's quota.
func (m *Manager) QuotaOf(appID uint32) (Amounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[appID]
	if !ok {
		return Amounts{}, fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	return acct.quota, nil
}

// ResetUsage zeroes one app's counters and fires EventReset. Used for
// periodic quotas (per-day network budgets and the like).
func (m *Manager) ResetUsage(appID uint32) error {
	m.mu.Lock()

	acct, ok := m.accounts[appID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	for _, k := range Kinds() {
		m.system.set(k, saturatingSub(m.system.Value(k), acct.usage.Value(k)))
	}
	acct.usage = Amounts{}
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("reset resource usage", "app_id", appID)
	fire(callbacks, Event{AppID: appID, Kind: EventReset})
	return nil
}

// ResetAll zeroes every account and the system totals, firing one
// EventReset per registered app.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	var events []Event
	for _, acct := range m.accounts {
		acct.usage = Amounts{}
		events = append(events, Event{AppID: acct.appID, Kind: EventReset})
	}
	m.system = Amounts{}
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("reset resource usage for all apps")
	// Deterministic delivery order for tests and log readers.
	sort.Slice(events, func(i, j int) bool { return events[i].AppID < events[j].AppID })
	for _, event := range events {
		fire(callbacks, event)
	}
}

// SystemUsage returns the system-wide consumption totals.
func (m *Manager) SystemUsage() Amounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.system
}

// AccountReport is one app's row in a manager report.
type AccountReport struct {
	AppID uint32  `cbor:"app_id"`
	Quota Amounts `cbor:"quota"`
	Usage Amounts `cbor:"usage"`
}

// Report returns per-app accounts ordered by app id, plus the system
// totals. This is the structured form of the debug report and feeds
// kernel snapshots.
func (m *Manager) Report() (accounts []AccountReport, system Amounts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acct := range m.accounts {
		accounts = append(accounts, AccountReport{
			AppID: acct.appID,
			Quota: acct.quota,
			Usage: acct.usage,
		})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].AppID < accounts[j].AppID })
	return accounts, m.system
}

// saturatingSub returns a-b, clamped at zero.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
