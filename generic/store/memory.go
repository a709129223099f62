// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/coaching-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every aggregate as a private copy: callers never share
// pointers with the store.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[generic.SessionID]*generic.Session
	payments    map[generic.PaymentID]*generic.Payment
	coaches     map[generic.CoachID]generic.Coach
	occurrences map[string]generic.SessionID  // template@date -> instance
	pairs       map[pairKey]generic.PaymentID // (session, coach) -> payment
}

type pairKey struct {
	SessionID generic.SessionID
	CoachID   generic.CoachID
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[generic.SessionID]*generic.Session),
		payments:    make(map[generic.PaymentID]*generic.Payment),
		coaches:     make(map[generic.CoachID]generic.Coach),
		occurrences: make(map[string]generic.SessionID),
		pairs:       make(map[pairKey]generic.PaymentID),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) GetSession(_ context.Context, id generic.SessionID) (*generic.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionLocked(id)
}

func (m *Memory) getSessionLocked(id generic.SessionID) (*generic.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, generic.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) SaveSession(_ context.Context, s *generic.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionLocked(s)
}

func (m *Memory) saveSessionLocked(s *generic.Session) error {
	current, exists := m.sessions[s.ID]
	key := s.OccurrenceKey()
	if _, taken := m.occurrences[key]; key != "" && taken && s.Version == 0 {
		// Instance ids derive from the occurrence key, so a second insert of
		// the same date is a duplicate occurrence rather than a stale write.
		return generic.ErrDuplicateOccurrence
	}
	switch {
	case s.Version == 0 && exists:
		return generic.ErrConcurrentModification
	case s.Version != 0 && !exists:
		return generic.ErrSessionNotFound
	case exists && current.Version != s.Version:
		return generic.ErrConcurrentModification
	}

	if key != "" {
		if owner, taken := m.occurrences[key]; taken && owner != s.ID {
			return generic.ErrDuplicateOccurrence
		}
		m.occurrences[key] = s.ID
	}

	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) ListSessions(_ context.Context, filter generic.SessionFilter) ([]*generic.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSessionsLocked(filter), nil
}

func (m *Memory) listSessionsLocked(filter generic.SessionFilter) []*generic.Session {
	var result []*generic.Session
	for _, s := range m.sessions {
		if filter.Matches(s) {
			result = append(result, s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Window.Start.Equal(result[j].Window.Start) {
			return result[i].Window.Start.Before(result[j].Window.Start)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) DeleteSession(_ context.Context, id generic.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSessionLocked(id)
}

func (m *Memory) deleteSessionLocked(id generic.SessionID) error {
	s, ok := m.sessions[id]
	if !ok {
		return generic.ErrSessionNotFound
	}
	if key := s.OccurrenceKey(); key != "" {
		delete(m.occurrences, key)
	}
	delete(m.sessions, id)
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) GetPayment(_ context.Context, id generic.PaymentID) (*generic.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPaymentLocked(id)
}

func (m *Memory) getPaymentLocked(id generic.PaymentID) (*generic.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, generic.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) SavePayment(_ context.Context, p *generic.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePaymentLocked(p)
}

func (m *Memory) savePaymentLocked(p *generic.Payment) error {
	current, exists := m.payments[p.ID]
	switch {
	case p.Version == 0 && exists:
		return generic.ErrConcurrentModification
	case p.Version != 0 && !exists:
		return generic.ErrPaymentNotFound
	case exists && current.Version != p.Version:
		return generic.ErrConcurrentModification
	}

	pk := pairKey{SessionID: p.SessionID, CoachID: p.CoachID}
	if owner, taken := m.pairs[pk]; taken && owner != p.ID {
		return generic.ErrDuplicatePayment
	}
	m.pairs[pk] = p.ID

	p.Version++
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *Memory) ListPayments(_ context.Context, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaymentsLocked(filter), nil
}

func (m *Memory) listPaymentsLocked(filter generic.PaymentFilter) []*generic.Payment {
	var result []*generic.Payment
	for _, p := range m.payments {
		if filter.Matches(p) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) DeletePayment(_ context.Context, id generic.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePaymentLocked(id)
}

func (m *Memory) deletePaymentLocked(id generic.PaymentID) error {
	p, ok := m.payments[id]
	if !ok {
		return generic.ErrPaymentNotFound
	}
	delete(m.pairs, pairKey{SessionID: p.SessionID, CoachID: p.CoachID})
	delete(m.payments, id)
	return nil
}

func (m *Memory) DeletePaymentsBySession(_ context.Context, id generic.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePaymentsBySessionLocked(id)
	return nil
}

func (m *Memory) deletePaymentsBySessionLocked(id generic.SessionID) {
	for pid, p := range m.payments {
		if p.SessionID == id {
			delete(m.pairs, pairKey{SessionID: p.SessionID, CoachID: p.CoachID})
			delete(m.payments, pid)
		}
	}
}

// =============================================================================
// COACHES
// =============================================================================

func (m *Memory) GetCoach(_ context.Context, id generic.CoachID) (generic.Coach, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCoachLocked(id)
}

func (m *Memory) getCoachLocked(id generic.CoachID) (generic.Coach, error) {
	c, ok := m.coaches[id]
	if !ok {
		return generic.Coach{}, generic.ErrCoachNotFound
	}
	return c, nil
}

func (m *Memory) ListCoaches(_ context.Context) ([]generic.Coach, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCoachesLocked(), nil
}

func (m *Memory) listCoachesLocked() []generic.Coach {
	result := make([]generic.Coach, 0, len(m.coaches))
	for _, c := range m.coaches {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) SaveCoach(_ context.Context, c generic.Coach) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coaches[c.ID] = c
	return nil
}

// Reset drops every aggregate.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := NewMemory()
	m.sessions = fresh.sessions
	m.payments = fresh.payments
	m.coaches = fresh.coaches
	m.occurrences = fresh.occurrences
	m.pairs = fresh.pairs
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole of fn, so transactions are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Repository) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snapshot)
		view.rollbackVersions()
		return err
	}
	return nil
}

type memorySnapshot struct {
	sessions    map[generic.SessionID]*generic.Session
	payments    map[generic.PaymentID]*generic.Payment
	coaches     map[generic.CoachID]generic.Coach
	occurrences map[string]generic.SessionID
	pairs       map[pairKey]generic.PaymentID
}

// snapshot copies the maps only. Stored aggregates are replaced on write,
// never mutated in place, so sharing the pointers is safe.
func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		sessions:    make(map[generic.SessionID]*generic.Session, len(tm.sessions)),
		payments:    make(map[generic.PaymentID]*generic.Payment, len(tm.payments)),
		coaches:     make(map[generic.CoachID]generic.Coach, len(tm.coaches)),
		occurrences: make(map[string]generic.SessionID, len(tm.occurrences)),
		pairs:       make(map[pairKey]generic.PaymentID, len(tm.pairs)),
	}
	for k, v := range tm.sessions {
		s.sessions[k] = v
	}
	for k, v := range tm.payments {
		s.payments[k] = v
	}
	for k, v := range tm.coaches {
		s.coaches[k] = v
	}
	for k, v := range tm.occurrences {
		s.occurrences[k] = v
	}
	for k, v := range tm.pairs {
		s.pairs[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.sessions = s.sessions
	tm.payments = s.payments
	tm.coaches = s.coaches
	tm.occurrences = s.occurrences
	tm.pairs = s.pairs
}

// txMemoryView is the Repository handed to WithTx callbacks. The parent lock
// is already held, so it calls the *Locked variants directly.
type txMemoryView struct {
	parent *Memory
	undo   []func()
}

// rollbackVersions puts back the Version of every aggregate saved through
// the view, newest first, so callers can retry with the same pointers.
func (tv *txMemoryView) rollbackVersions() {
	for i := len(tv.undo) - 1; i >= 0; i-- {
		tv.undo[i]()
	}
	tv.undo = nil
}

func (tv *txMemoryView) GetSession(_ context.Context, id generic.SessionID) (*generic.Session, error) {
	return tv.parent.getSessionLocked(id)
}

func (tv *txMemoryView) SaveSession(_ context.Context, s *generic.Session) error {
	version := s.Version
	if err := tv.parent.saveSessionLocked(s); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() { s.Version = version })
	return nil
}

func (tv *txMemoryView) ListSessions(_ context.Context, filter generic.SessionFilter) ([]*generic.Session, error) {
	return tv.parent.listSessionsLocked(filter), nil
}

func (tv *txMemoryView) DeleteSession(_ context.Context, id generic.SessionID) error {
	return tv.parent.deleteSessionLocked(id)
}

func (tv *txMemoryView) GetPayment(_ context.Context, id generic.PaymentID) (*generic.Payment, error) {
	return tv.parent.getPaymentLocked(id)
}

func (tv *txMemoryView) SavePayment(_ context.Context, p *generic.Payment) error {
	version := p.Version
	if err := tv.parent.savePaymentLocked(p); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() { p.Version = version })
	return nil
}

func (tv *txMemoryView) ListPayments(_ context.Context, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	return tv.parent.listPaymentsLocked(filter), nil
}

func (tv *txMemoryView) DeletePayment(_ context.Context, id generic.PaymentID) error {
	return tv.parent.deletePaymentLocked(id)
}

func (tv *txMemoryView) DeletePaymentsBySession(_ context.Context, id generic.SessionID) error {
	tv.parent.deletePaymentsBySessionLocked(id)
	return nil
}

func (tv *txMemoryView) GetCoach(_ context.Context, id generic.CoachID) (generic.Coach, error) {
	return tv.parent.getCoachLocked(id)
}

func (tv *txMemoryView) ListCoaches(_ context.Context) ([]generic.Coach, error) {
	return tv.parent.listCoachesLocked(), nil
}

func (tv *txMemoryView) SaveCoach(_ context.Context, c generic.Coach) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tv.parent.coaches[c.ID] = c
	return nil
}
