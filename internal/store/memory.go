package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

type memoryState struct {
	applications map[uuid.UUID]model.Application
	units        map[uuid.UUID]model.Unit
	tenancies    map[uuid.UUID]model.Tenancy
	profiles     map[uuid.UUID]model.Profile
	transitions  []model.Transition
}

func newMemoryState() memoryState {
	return memoryState{
		applications: make(map[uuid.UUID]model.Application),
		units:        make(map[uuid.UUID]model.Unit),
		tenancies:    make(map[uuid.UUID]model.Tenancy),
		profiles:     make(map[uuid.UUID]model.Profile),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.applications {
		out.applications[k] = v
	}
	for k, v := range s.units {
		out.units[k] = v
	}
	for k, v := range s.tenancies {
		out.tenancies[k] = v
	}
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	out.transitions = append([]model.Transition(nil), s.transitions...)
	return out
}

// Memory is an in-process Store. Transactions are serialised: each one
// works on a private copy of the state that replaces the shared state only
// when fn succeeds.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PutUnit seeds or replaces a unit. Units are owned by property setup,
// which is outside the allocation core.
func (m *Memory) PutUnit(u model.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.units[u.ID] = u
}

// PutApplication seeds or replaces an application submitted by intake.
func (m *Memory) PutApplication(a model.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.applications[a.ID] = a
}

// PutTenancy writes a tenancy row without any checks. Intended for
// importing existing data and for building inconsistent fixtures.
func (m *Memory) PutTenancy(t model.Tenancy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tenancies[t.ID] = t
}

// GetUnit reads a unit outside any transaction.
func (m *Memory) GetUnit(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{state: &m.state}).GetUnit(ctx, id)
}

// ActiveTenancies returns every active tenancy on a unit.
func (m *Memory) ActiveTenancies(unitID uuid.UUID) []model.Tenancy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tenancy
	for _, t := range m.state.tenancies {
		if t.UnitID == unitID && t.Status == model.TenancyActive {
			out = append(out, t)
		}
	}
	return out
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// WithTx implements Store.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	working := m.state.clone()
	if err := fn(&memTx{state: &working, now: m.now}); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *Memory) GetApplication(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{state: &m.state}).GetApplication(ctx, id)
}

func (m *Memory) GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{state: &m.state}).GetTenancy(ctx, id)
}

func (m *Memory) ListApplications(_ context.Context, propertyID uuid.UUID, status model.ApplicationStatus) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Application
	for _, a := range m.state.applications {
		if a.PropertyID == propertyID && a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListUnits(_ context.Context, propertyID uuid.UUID, status model.UnitStatus) ([]model.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Unit
	for _, u := range m.state.units {
		if u.PropertyID == propertyID && u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitNumber < out[j].UnitNumber })
	return out, nil
}

func (m *Memory) FindProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findProfile(model.NormalizeEmail(email)), nil
}

func (m *Memory) findProfile(email string) *model.Profile {
	for _, p := range m.state.profiles {
		if p.Email == email {
			found := p
			return &found
		}
	}
	return nil
}

func (m *Memory) CreateProfile(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.Email = model.NormalizeEmail(p.Email)
	if m.findProfile(p.Email) != nil {
		return fmt.Errorf("%w: profile %s", model.ErrDuplicate, p.Email)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	m.state.profiles[p.ID] = *p
	return nil
}

func (m *Memory) ListTransitions(_ context.Context, entity string, entityID uuid.UUID) ([]model.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Transition
	for _, tr := range m.state.transitions {
		if tr.Entity == entity && tr.EntityID == entityID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *Memory) UnitOccupancyAnomalies(_ context.Context) ([]model.UnitOccupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make(map[uuid.UUID]int)
	for _, t := range m.state.tenancies {
		if t.Status == model.TenancyActive {
			active[t.UnitID]++
		}
	}

	var out []model.UnitOccupancy
	for _, u := range m.state.units {
		n := active[u.ID]
		if (u.Status == model.UnitOccupied && n != 1) || (u.Status != model.UnitOccupied && n > 0) {
			out = append(out, model.UnitOccupancy{
				UnitID:          u.ID,
				PropertyID:      u.PropertyID,
				Status:          u.Status,
				ActiveTenancies: n,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID.String() < out[j].UnitID.String() })
	return out, nil
}

func (m *Memory) ApprovedWithoutTenancy(_ context.Context) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	produced := make(map[uuid.UUID]bool)
	for _, t := range m.state.tenancies {
		if t.ApplicationID != nil {
			produced[*t.ApplicationID] = true
		}
	}

	var out []model.Application
	for _, a := range m.state.applications {
		if a.Status == model.ApplicationApproved && !produced[a.ID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memTx struct {
	state *memoryState
	now   func() time.Time
}

func (t *memTx) GetApplication(_ context.Context, id uuid.UUID) (*model.Application, error) {
	a, ok := t.state.applications[id]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", model.ErrNotFound, id)
	}
	return &a, nil
}

func (t *memTx) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, from, to model.ApplicationStatus) (*model.Application, error) {
	a, err := t.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, fmt.Errorf("%w: application %s is %s, expected %s", model.ErrInvalidTransition, id, a.Status, from)
	}
	a.Status = to
	a.UpdatedAt = t.now()
	t.state.applications[id] = *a
	return a, nil
}

func (t *memTx) GetUnit(_ context.Context, id uuid.UUID) (*model.Unit, error) {
	u, ok := t.state.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: unit %s", model.ErrNotFound, id)
	}
	return &u, nil
}

func (t *memTx) UpdateUnitStatus(ctx context.Context, id uuid.UUID, expected, status model.UnitStatus) (*model.Unit, error) {
	u, err := t.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status != expected {
		return nil, fmt.Errorf("%w: unit %s is %s, expected %s", model.ErrConflict, id, u.Status, expected)
	}
	u.Status = status
	u.Version++
	u.UpdatedAt = t.now()
	t.state.units[id] = *u
	return u, nil
}

func (t *memTx) GetTenancy(_ context.Context, id uuid.UUID) (*model.Tenancy, error) {
	tn, ok := t.state.tenancies[id]
	if !ok {
		return nil, fmt.Errorf("%w: tenancy %s", model.ErrNotFound, id)
	}
	return &tn, nil
}

func (t *memTx) hasOtherActive(unitID, except uuid.UUID) bool {
	for _, tn := range t.state.tenancies {
		if tn.ID != except && tn.UnitID == unitID && tn.Status == model.TenancyActive {
			return true
		}
	}
	return false
}

func (t *memTx) InsertTenancy(_ context.Context, tn *model.Tenancy) error {
	if tn.ID == uuid.Nil {
		tn.ID = uuid.New()
	}
	if tn.Status == model.TenancyActive && t.hasOtherActive(tn.UnitID, tn.ID) {
		return fmt.Errorf("%w: unit %s already has an active tenancy", model.ErrConflict, tn.UnitID)
	}
	t.state.tenancies[tn.ID] = *tn
	return nil
}

func (t *memTx) UpdateTenancy(_ context.Context, tn *model.Tenancy, expected model.TenancyStatus) error {
	current, ok := t.state.tenancies[tn.ID]
	if !ok || current.Status != expected {
		return fmt.Errorf("%w: tenancy %s is no longer %s", model.ErrConflict, tn.ID, expected)
	}
	if tn.Status == model.TenancyActive && t.hasOtherActive(tn.UnitID, tn.ID) {
		return fmt.Errorf("%w: unit %s already has an active tenancy", model.ErrConflict, tn.UnitID)
	}
	// Only the mutable columns change, matching the SQL update.
	current.UnitID = tn.UnitID
	current.MonthlyRent = tn.MonthlyRent
	current.Status = tn.Status
	current.EndedAt = tn.EndedAt
	current.UpdatedAt = tn.UpdatedAt
	t.state.tenancies[tn.ID] = current
	return nil
}

func (t *memTx) CountActiveTenancies(_ context.Context, unitID uuid.UUID) (int, error) {
	n := 0
	for _, tn := range t.state.tenancies {
		if tn.UnitID == unitID && tn.Status == model.TenancyActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertTransition(_ context.Context, tr *model.Transition) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	t.state.transitions = append(t.state.transitions, *tr)
	return nil
}
